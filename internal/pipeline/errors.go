package pipeline

import (
	"errors"
	"fmt"
)

// Capability names used in [CapabilityError].
const (
	CapabilityVAD = "vad"
	CapabilitySTT = "stt"
	CapabilityLLM = "llm"
)

// CapabilityError reports that an external capability failed for one
// segment or transcript. Seq identifies the segment within its stream. The
// cycle or worker iteration is skipped; the caller stays usable.
type CapabilityError struct {
	Capability string
	Seq        uint64
	Err        error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s failed for segment %d: %v", e.Capability, e.Seq, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// IsCapabilityError reports whether err wraps a [CapabilityError].
func IsCapabilityError(err error) bool {
	var ce *CapabilityError
	return errors.As(err, &ce)
}
