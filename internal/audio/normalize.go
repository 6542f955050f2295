// Package audio normalizes arbitrary input audio into the engine's native
// shape: mono float32 PCM at 16 kHz.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// SampleRate is the fixed rate of normalized audio.
const SampleRate = 16000

var (
	ErrDecode     = errors.New("audio decode failed")
	ErrConversion = errors.New("audio conversion failed")
)

// Normalized is mono float32 PCM at SampleRate. Immutable once produced.
type Normalized struct {
	Samples []float32
}

func (n Normalized) Duration() time.Duration {
	return time.Duration(len(n.Samples)) * time.Second / SampleRate
}

// Normalize decodes audio bytes into Normalized. WAV is decoded natively;
// other containers go through ffmpeg when it is installed. Empty or
// zero-frame input is an error, never an empty result.
func Normalize(b []byte) (Normalized, error) {
	if len(b) == 0 {
		return Normalized{}, fmt.Errorf("%w: empty input", ErrDecode)
	}
	if isWAV(b) {
		return decodeWAV(b)
	}
	return ffmpegDecode(b)
}

// NormalizePCM16 converts raw little-endian PCM16 at the given rate. Used by
// the realtime endpoint, which negotiates its own sample format.
func NormalizePCM16(b []byte, sampleRate int) (Normalized, error) {
	if len(b) == 0 || len(b)%2 != 0 {
		return Normalized{}, fmt.Errorf("%w: pcm16 length must be even and non-zero", ErrDecode)
	}
	if sampleRate <= 0 {
		sampleRate = SampleRate
	}
	samples := make([]float32, len(b)/2)
	for i := range samples {
		v := int16(uint16(b[2*i]) | uint16(b[2*i+1])<<8)
		samples[i] = float32(v) / 32768.0
	}
	if sampleRate != SampleRate {
		r := newResampler(sampleRate, SampleRate)
		out := r.process(samples)
		samples = append(out, r.flush()...)
	}
	if len(samples) == 0 {
		return Normalized{}, fmt.Errorf("%w: no audio frames", ErrDecode)
	}
	return Normalized{Samples: samples}, nil
}

func isWAV(b []byte) bool {
	return len(b) >= 12 && bytes.Equal(b[0:4], []byte("RIFF")) && bytes.Equal(b[8:12], []byte("WAVE"))
}

// windowFrames bounds per-pass memory for the decode-downmix-resample
// pipeline so it scales with the window, not the file.
const windowFrames = 16384

func decodeWAV(b []byte) (Normalized, error) {
	dec := wav.NewDecoder(bytes.NewReader(b))
	if !dec.IsValidFile() {
		return Normalized{}, fmt.Errorf("%w: invalid wav file", ErrDecode)
	}
	if err := dec.FwdToPCM(); err != nil {
		return Normalized{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	sr := int(dec.SampleRate)
	if sr <= 0 {
		sr = SampleRate
	}
	channels := int(dec.NumChans)
	if channels <= 0 {
		channels = 1
	}
	bitDepth := int(dec.BitDepth)
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(int(1) << (bitDepth - 1))

	var rs *resampler
	if sr != SampleRate {
		rs = newResampler(sr, SampleRate)
	}

	out := make([]float32, 0, windowFrames)
	buf := &goaudio.IntBuffer{Data: make([]int, windowFrames*channels)}
	for {
		n, err := dec.PCMBuffer(buf)
		if n > 0 {
			mono := downmix(buf.Data[:n], channels, scale)
			if rs != nil {
				out = append(out, rs.process(mono)...)
			} else {
				out = append(out, mono...)
			}
		}
		if err != nil || n == 0 {
			break
		}
	}
	if rs != nil {
		out = append(out, rs.flush()...)
	}
	if len(out) == 0 {
		return Normalized{}, fmt.Errorf("%w: no audio frames", ErrDecode)
	}
	return Normalized{Samples: out}, nil
}

// downmix averages interleaved channels into mono float32 in [-1, 1].
func downmix(data []int, channels int, scale float32) []float32 {
	frames := len(data) / channels
	out := make([]float32, frames)
	for f := 0; f < frames; f++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += float32(data[f*channels+c]) / scale
		}
		out[f] = sum / float32(channels)
	}
	return out
}

// resampler is a streaming linear interpolator. It carries the last sample
// of the previous window so interpolation stays continuous across windows.
type resampler struct {
	step     float64
	t        float64 // absolute fractional input index of the next output
	consumed int
	prev     float32
}

func newResampler(inRate, outRate int) *resampler {
	return &resampler{step: float64(inRate) / float64(outRate)}
}

func (r *resampler) process(win []float32) []float32 {
	if len(win) == 0 {
		return nil
	}
	base := r.consumed
	out := make([]float32, 0, int(float64(len(win))/r.step)+2)
	for {
		i0 := int(math.Floor(r.t))
		if i0 >= base+len(win)-1 {
			break
		}
		var s0, s1 float32
		if i0 < base {
			s0, s1 = r.prev, win[0]
		} else {
			s0, s1 = win[i0-base], win[i0-base+1]
		}
		frac := float32(r.t - float64(i0))
		out = append(out, s0+(s1-s0)*frac)
		r.t += r.step
	}
	r.consumed += len(win)
	r.prev = win[len(win)-1]
	return out
}

// flush emits the tail positions that fall past the last interpolation pair,
// clamped to the final sample.
func (r *resampler) flush() []float32 {
	var out []float32
	for r.t < float64(r.consumed) {
		out = append(out, r.prev)
		r.t += r.step
	}
	return out
}
