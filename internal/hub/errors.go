package hub

import (
	"errors"
	"fmt"
)

// DeliveryError reports that one client could not be sent a message.
type DeliveryError struct {
	ClientID string
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("hub: deliver to client %s: %v", e.ClientID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// IsDeliveryError reports whether err wraps a [DeliveryError].
func IsDeliveryError(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de)
}
