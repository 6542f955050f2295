package audio

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// encodeWAV renders mono samples as a 16-bit WAV blob, optionally duplicated
// across channels.
func encodeWAV(t *testing.T, samples []float32, rate, channels int) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create temp wav: %v", err)
	}
	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	data := make([]int, len(samples)*channels)
	for i, s := range samples {
		v := int(s * 32767)
		for c := 0; c < channels; c++ {
			data[i*channels+c] = v
		}
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	f.Close()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read temp wav: %v", err)
	}
	return b
}

func sine(freq float64, amp float32, rate int, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = amp * float32(math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func TestNormalizeMatchingRate(t *testing.T) {
	in := sine(440, 0.5, SampleRate, SampleRate/4)
	norm, err := Normalize(encodeWAV(t, in, SampleRate, 1))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(norm.Samples) != len(in) {
		t.Fatalf("expected %d samples, got %d", len(in), len(norm.Samples))
	}
	for i := 0; i < len(in); i += 97 {
		if d := math.Abs(float64(norm.Samples[i] - in[i])); d > 0.01 {
			t.Fatalf("sample %d differs by %f", i, d)
		}
	}
}

func TestNormalizeResamples(t *testing.T) {
	in := sine(200, 0.5, 8000, 4000) // half a second at 8 kHz
	norm, err := Normalize(encodeWAV(t, in, 8000, 1))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := 8000
	if got := len(norm.Samples); got < want-16 || got > want+16 {
		t.Fatalf("expected ~%d samples after resample, got %d", want, got)
	}
}

func TestNormalizeDownmixesStereo(t *testing.T) {
	in := sine(440, 0.5, SampleRate, SampleRate/10)
	norm, err := Normalize(encodeWAV(t, in, SampleRate, 2))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(norm.Samples) != len(in) {
		t.Fatalf("expected %d mono samples, got %d", len(in), len(norm.Samples))
	}
	// Both channels carry the same signal, so the average must match it.
	for i := 0; i < len(in); i += 101 {
		if d := math.Abs(float64(norm.Samples[i] - in[i])); d > 0.01 {
			t.Fatalf("sample %d differs by %f", i, d)
		}
	}
}

func TestNormalizeEmptyInput(t *testing.T) {
	if _, err := Normalize(nil); !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestNormalizeGarbage(t *testing.T) {
	_, err := Normalize([]byte("definitely not audio data at all"))
	if err == nil {
		t.Fatal("expected an error for undecodable input")
	}
	if !errors.Is(err, ErrDecode) && !errors.Is(err, ErrConversion) {
		t.Fatalf("expected a decode or conversion error, got %v", err)
	}
}

func TestNormalizePCM16(t *testing.T) {
	raw := []byte{0x00, 0x40, 0x00, 0xC0} // +0.5, -0.5
	norm, err := NormalizePCM16(raw, SampleRate)
	if err != nil {
		t.Fatalf("NormalizePCM16: %v", err)
	}
	if len(norm.Samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(norm.Samples))
	}
	if math.Abs(float64(norm.Samples[0]-0.5)) > 0.001 || math.Abs(float64(norm.Samples[1]+0.5)) > 0.001 {
		t.Fatalf("unexpected samples: %v", norm.Samples)
	}
}

func TestNormalizePCM16OddLength(t *testing.T) {
	if _, err := NormalizePCM16([]byte{0x01}, SampleRate); !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestDuration(t *testing.T) {
	n := Normalized{Samples: make([]float32, SampleRate*2)}
	if got := n.Duration().Seconds(); got != 2 {
		t.Fatalf("expected 2s, got %v", got)
	}
}

func TestWriteWAV16Roundtrip(t *testing.T) {
	in := sine(440, 0.5, SampleRate, SampleRate/5)
	path := filepath.Join(t.TempDir(), "out.wav")
	if err := WriteWAV16(path, in); err != nil {
		t.Fatalf("WriteWAV16: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	norm, err := Normalize(b)
	if err != nil {
		t.Fatalf("Normalize round trip: %v", err)
	}
	if len(norm.Samples) != len(in) {
		t.Fatalf("expected %d samples, got %d", len(in), len(norm.Samples))
	}
}
