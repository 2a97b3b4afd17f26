package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const wavHeaderSize = 44

type wavHeader struct {
	audioFormat   uint16
	channels      int
	sampleRate    int
	bitsPerSample int
}

// EncodeWAV wraps 16-bit PCM in a canonical 44-byte RIFF/WAV header.
func EncodeWAV(pcm []byte, f Format) []byte {
	byteRate := f.BytesPerSecond()
	blockAlign := f.FrameSize()
	dataSize := len(pcm)

	buf := make([]byte, wavHeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], BytesPerSample*8)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[wavHeaderSize:], pcm)

	return buf
}

// parseWAV walks the RIFF chunk list and returns the fmt header and the data
// chunk. Unknown chunks (LIST, fact, ...) are skipped.
func parseWAV(b []byte) (wavHeader, []byte, error) {
	var h wavHeader
	if !isWAV(b) {
		return h, nil, errors.New("missing RIFF/WAVE header")
	}
	var (
		haveFmt bool
		off     = 12
	)
	for off+8 <= len(b) {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(b) {
			if id == "data" && haveFmt {
				// Streamed WAVs often carry a placeholder size; take what arrived.
				return h, b[body:], nil
			}
			return h, nil, fmt.Errorf("chunk %q overruns payload", id)
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return h, nil, fmt.Errorf("fmt chunk too short (%d bytes)", size)
			}
			h.audioFormat = binary.LittleEndian.Uint16(b[body : body+2])
			h.channels = int(binary.LittleEndian.Uint16(b[body+2 : body+4]))
			h.sampleRate = int(binary.LittleEndian.Uint32(b[body+4 : body+8]))
			h.bitsPerSample = int(binary.LittleEndian.Uint16(b[body+14 : body+16]))
			if h.audioFormat != 1 {
				return h, nil, fmt.Errorf("unsupported WAV encoding %d", h.audioFormat)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return h, nil, errors.New("data chunk before fmt chunk")
			}
			return h, b[body : body+size], nil
		}
		off = body + size + size%2
	}
	return h, nil, errors.New("no data chunk")
}
