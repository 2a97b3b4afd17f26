package audio_test

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/MrWong99/jarvis/pkg/audio"
)

// samplesToBytes converts int16 samples to little-endian PCM.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestFormat_Duration(t *testing.T) {
	f := audio.DefaultFormat
	if got := f.Duration(make([]byte, 3200)); got != 100*time.Millisecond {
		t.Errorf("Duration(3200) = %v, want 100ms", got)
	}
	if got := f.BytesFor(time.Second); got != 32000 {
		t.Errorf("BytesFor(1s) = %d, want 32000", got)
	}
	if got := (audio.Format{}).Duration(make([]byte, 10)); got != 0 {
		t.Errorf("zero format Duration = %v, want 0", got)
	}
}

func TestFormat_Validate(t *testing.T) {
	if err := audio.DefaultFormat.Validate(); err != nil {
		t.Fatalf("default format invalid: %v", err)
	}
	if err := (audio.Format{SampleRate: 16000}).Validate(); err == nil {
		t.Fatal("expected error for zero channels")
	}
}

func TestDecode_RawPCM(t *testing.T) {
	pcm := samplesToBytes([]int16{1, 2, 3})
	got, err := audio.Decode(pcm, audio.DefaultFormat)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != len(pcm) {
		t.Fatalf("len = %d, want %d", len(got), len(pcm))
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"odd length", []byte{1, 2, 3}},
		{"truncated wav", []byte("RIFF\x00\x00\x00\x00WAVEfmt ")},
		{"8-bit wav", wavWithBits(8)},
		{"wrong rate", audio.EncodeWAV(make([]byte, 8), audio.Format{SampleRate: 44100, Channels: 1})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := audio.Decode(tt.payload, audio.DefaultFormat)
			if err == nil {
				t.Fatal("expected error")
			}
			if !audio.IsDecodeError(err) {
				t.Fatalf("err = %T %v, want *DecodeError", err, err)
			}
		})
	}
}

func TestDecode_WAVRoundTrip(t *testing.T) {
	pcm := samplesToBytes([]int16{100, -100, 32767, -32768})
	wav := audio.EncodeWAV(pcm, audio.DefaultFormat)
	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(pcm))
	}
	got, err := audio.Decode(wav, audio.DefaultFormat)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := bytesToSamples(pcm)
	for i, s := range bytesToSamples(got) {
		if s != want[i] {
			t.Errorf("sample %d = %d, want %d", i, s, want[i])
		}
	}
}

func TestDecode_StereoWAVDownmix(t *testing.T) {
	stereo := samplesToBytes([]int16{100, 200, -100, -200})
	wav := audio.EncodeWAV(stereo, audio.Format{SampleRate: 16000, Channels: 2})
	got, err := audio.Decode(wav, audio.DefaultFormat)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	samples := bytesToSamples(got)
	if len(samples) != 2 || samples[0] != 150 || samples[1] != -150 {
		t.Fatalf("samples = %v, want [150 -150]", samples)
	}
}

func TestStereoToMono_Clamping(t *testing.T) {
	got := bytesToSamples(audio.StereoToMono(samplesToBytes([]int16{32767, 32767})))
	if len(got) != 1 || got[0] != 32767 {
		t.Fatalf("got %v, want [32767]", got)
	}
}

func TestPCMToFloat32(t *testing.T) {
	got := audio.PCMToFloat32(samplesToBytes([]int16{16384, -32768}), 1)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0] != 0.5 || got[1] != -1 {
		t.Errorf("got %v, want [0.5 -1]", got)
	}

	mono := audio.PCMToFloat32(samplesToBytes([]int16{16384, 0}), 2)
	if len(mono) != 1 || mono[0] != 0.25 {
		t.Errorf("stereo downmix = %v, want [0.25]", mono)
	}
}

func TestRMS(t *testing.T) {
	if got := audio.RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
	got := audio.RMS([]float32{0.5, -0.5, 0.5, -0.5})
	if math.Abs(got-0.5) > 1e-9 {
		t.Errorf("RMS = %v, want 0.5", got)
	}
}

func wavWithBits(bits uint16) []byte {
	wav := audio.EncodeWAV(make([]byte, 8), audio.DefaultFormat)
	binary.LittleEndian.PutUint16(wav[34:36], bits)
	return wav
}
