// Package vad performs energy-based voice-activity detection over normalized
// audio and turns detected speech regions into decodable chunks.
package vad

import (
	"math"
	"time"

	"github.com/whispergate/whispergate/internal/audio"
)

type Config struct {
	EnergyThreshold float64       // RMS threshold marking speech
	MinSilence      time.Duration // silence needed to confirm a speech end
	MinSpeech       time.Duration // shorter candidate segments are discarded
	Window          time.Duration // RMS window size
	Hop             time.Duration // window advance
	Pad             time.Duration // synthetic silence between spliced segments
}

func DefaultConfig() Config {
	return Config{
		EnergyThreshold: 0.02,
		MinSilence:      500 * time.Millisecond,
		MinSpeech:       300 * time.Millisecond,
		Window:          20 * time.Millisecond,
		Hop:             10 * time.Millisecond,
		Pad:             100 * time.Millisecond,
	}
}

// Segment is a detected speech region in source-audio coordinates.
// Segments are emitted in order and never overlap.
type Segment struct {
	Start       time.Duration
	End         time.Duration
	StartSample int
	EndSample   int
}

// Chunk is a renderable unit of audio submitted to an engine. OriginalStart
// is the chunk's offset in the source audio, used to translate decode-local
// times back to absolute times.
type Chunk struct {
	Samples       []float32
	Start         time.Duration
	End           time.Duration
	OriginalStart time.Duration
}

func samplesFor(d time.Duration) int {
	return int(d * audio.SampleRate / time.Second)
}

func timeAt(sample int) time.Duration {
	return time.Duration(sample) * time.Second / audio.SampleRate
}

// Detect runs the two-state silence/speech machine over the samples.
// It never fails: silence-only input simply yields no segments.
func Detect(samples []float32, cfg Config) []Segment {
	window := samplesFor(cfg.Window)
	hop := samplesFor(cfg.Hop)
	if window <= 0 || hop <= 0 || len(samples) < window {
		return nil
	}

	var (
		segs          []Segment
		inSpeech      bool
		segStart      int
		lastSpeechEnd int
	)
	closeSegment := func() {
		if !inSpeech {
			return
		}
		inSpeech = false
		if timeAt(lastSpeechEnd-segStart) >= cfg.MinSpeech {
			segs = append(segs, Segment{
				Start:       timeAt(segStart),
				End:         timeAt(lastSpeechEnd),
				StartSample: segStart,
				EndSample:   lastSpeechEnd,
			})
		}
	}

	for i := 0; i+window <= len(samples); i += hop {
		if rms(samples[i:i+window]) > cfg.EnergyThreshold {
			if !inSpeech {
				inSpeech = true
				segStart = i
			}
			lastSpeechEnd = i + window
		} else if inSpeech {
			// Confirm the end only after silence persists, so short dips
			// inside a phrase do not split it.
			if timeAt(i+window-lastSpeechEnd) >= cfg.MinSilence {
				closeSegment()
			}
		}
	}
	closeSegment()
	return segs
}

// Chunks slices one chunk per segment out of the source audio.
func Chunks(samples []float32, segs []Segment) []Chunk {
	out := make([]Chunk, 0, len(segs))
	for _, s := range segs {
		out = append(out, Chunk{
			Samples:       samples[s.StartSample:s.EndSample],
			Start:         s.Start,
			End:           s.End,
			OriginalStart: s.Start,
		})
	}
	return out
}

// Splice strips surrounding silence by joining all segments into a single
// chunk, inserting a short silence pad between them to preserve prosody.
// With no segments the whole audio becomes one chunk.
func Splice(samples []float32, segs []Segment, cfg Config) Chunk {
	if len(segs) == 0 {
		return Whole(samples)
	}
	pad := make([]float32, samplesFor(cfg.Pad))
	total := 0
	for _, s := range segs {
		total += s.EndSample - s.StartSample
	}
	joined := make([]float32, 0, total+len(pad)*(len(segs)-1))
	for i, s := range segs {
		if i > 0 {
			joined = append(joined, pad...)
		}
		joined = append(joined, samples[s.StartSample:s.EndSample]...)
	}
	return Chunk{
		Samples:       joined,
		Start:         segs[0].Start,
		End:           segs[len(segs)-1].End,
		OriginalStart: segs[0].Start,
	}
}

// Whole wraps the entire audio as a single chunk, the fallback when no
// speech region qualifies.
func Whole(samples []float32) Chunk {
	return Chunk{
		Samples:       samples,
		Start:         0,
		End:           timeAt(len(samples)),
		OriginalStart: 0,
	}
}

func rms(window []float32) float64 {
	var sum float64
	for _, s := range window {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(window)))
}
