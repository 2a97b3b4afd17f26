package audio

import (
	"bytes"
	"errors"
	"fmt"
)

// DecodeError reports a payload that cannot be interpreted as PCM in the
// expected format. The cycle that produced it is abandoned; the connection
// stays open.
type DecodeError struct {
	Reason string
	Size   int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("audio: undecodable payload (%d bytes): %s", e.Size, e.Reason)
}

// IsDecodeError reports whether err is or wraps a [*DecodeError].
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// Decode converts one client payload into raw PCM in format want.
//
// Payloads starting with a RIFF/WAVE header are parsed as WAV; a 16-bit
// stereo WAV is down-mixed when want is mono. Any other payload is taken as
// raw PCM and must be a whole number of sample frames. Sample rate conversion
// is not performed: a WAV with a different rate is rejected.
func Decode(payload []byte, want Format) ([]byte, error) {
	if len(payload) == 0 {
		return nil, &DecodeError{Reason: "empty payload"}
	}
	if isWAV(payload) {
		return decodeWAV(payload, want)
	}
	if fs := want.FrameSize(); fs > 0 && len(payload)%fs != 0 {
		return nil, &DecodeError{
			Reason: fmt.Sprintf("length is not a multiple of the %d-byte frame size", fs),
			Size:   len(payload),
		}
	}
	return payload, nil
}

func isWAV(b []byte) bool {
	return len(b) >= 12 && bytes.Equal(b[0:4], []byte("RIFF")) && bytes.Equal(b[8:12], []byte("WAVE"))
}

func decodeWAV(payload []byte, want Format) ([]byte, error) {
	h, pcm, err := parseWAV(payload)
	if err != nil {
		return nil, &DecodeError{Reason: err.Error(), Size: len(payload)}
	}
	if h.bitsPerSample != 16 {
		return nil, &DecodeError{
			Reason: fmt.Sprintf("unsupported bit depth %d", h.bitsPerSample),
			Size:   len(payload),
		}
	}
	if h.sampleRate != want.SampleRate {
		return nil, &DecodeError{
			Reason: fmt.Sprintf("sample rate %d does not match %d", h.sampleRate, want.SampleRate),
			Size:   len(payload),
		}
	}
	switch {
	case h.channels == want.Channels:
	case h.channels == 2 && want.Channels == 1:
		pcm = StereoToMono(pcm)
	default:
		return nil, &DecodeError{
			Reason: fmt.Sprintf("channel count %d does not match %d", h.channels, want.Channels),
			Size:   len(payload),
		}
	}
	if fs := want.FrameSize(); fs > 0 && len(pcm)%fs != 0 {
		pcm = pcm[:len(pcm)-len(pcm)%fs]
	}
	return pcm, nil
}
