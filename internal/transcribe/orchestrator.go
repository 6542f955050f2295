package transcribe

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/whispergate/whispergate/internal/audio"
	"github.com/whispergate/whispergate/internal/engine"
	"github.com/whispergate/whispergate/internal/vad"
)

// Orchestrator drives normalizer, segmenter and engine manager to a full
// result or an ordered stream of segments.
type Orchestrator struct {
	vadCfg vad.Config
}

func NewOrchestrator(cfg vad.Config) *Orchestrator {
	return &Orchestrator{vadCfg: cfg}
}

// Transcribe produces the complete buffered result for one request.
func (o *Orchestrator) Transcribe(ctx context.Context, b Backend, req Request) (Result, error) {
	return o.run(ctx, b, req, nil)
}

// TranscribeStream additionally emits each segment, in non-decreasing
// start-time order, as soon as it is decoded. If emit fails (client gone)
// the orchestration is abandoned after the current chunk.
func (o *Orchestrator) TranscribeStream(ctx context.Context, b Backend, req Request, emit func(Segment) error) (Result, error) {
	return o.run(ctx, b, req, emit)
}

func (o *Orchestrator) run(ctx context.Context, b Backend, req Request, emit func(Segment) error) (Result, error) {
	norm, err := audio.Normalize(req.Audio)
	if err != nil {
		return Result{}, err
	}
	opts := engine.Options{
		Language:    req.Language,
		Prompt:      req.Prompt,
		Temperature: req.Temperature,
	}

	if req.Format.Timestamped() && b.SupportsTimestamps() {
		return o.runSegmented(ctx, b, norm, opts, emit)
	}
	return o.runWhole(ctx, b, norm, opts, emit)
}

// runSegmented decodes one chunk per detected speech region and translates
// each chunk's local timing into absolute source-audio time.
func (o *Orchestrator) runSegmented(ctx context.Context, b Backend, norm audio.Normalized, opts engine.Options, emit func(Segment) error) (Result, error) {
	speech := vad.Detect(norm.Samples, o.vadCfg)
	chunks := vad.Chunks(norm.Samples, speech)
	if len(chunks) == 0 {
		chunks = []vad.Chunk{vad.Whole(norm.Samples)}
	}
	log.Debug().Int("chunks", len(chunks)).Dur("duration", norm.Duration()).Msg("transcribing segmented")

	var (
		parts    []string
		segments []Segment
	)
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrTranscription, err)
		}
		res, err := b.DecodeChunk(ctx, chunk.Samples, opts)
		if err != nil {
			return Result{}, decodeError(err)
		}
		for _, seg := range chunkSegments(res, chunk) {
			segments = append(segments, seg)
			if emit != nil {
				if err := emit(seg); err != nil {
					return Result{}, fmt.Errorf("%w: stream write: %v", ErrTranscription, err)
				}
			}
		}
		if res.Text != "" {
			parts = append(parts, res.Text)
		}
	}
	return Result{Text: strings.Join(parts, " "), Segments: segments}, nil
}

// runWhole decodes in one pass. The timestamp-capable family gets silence
// stripped via splicing; the text-only family chunks internally and receives
// the audio untouched.
func (o *Orchestrator) runWhole(ctx context.Context, b Backend, norm audio.Normalized, opts engine.Options, emit func(Segment) error) (Result, error) {
	samples := norm.Samples
	if b.SupportsTimestamps() {
		speech := vad.Detect(norm.Samples, o.vadCfg)
		samples = vad.Splice(norm.Samples, speech, o.vadCfg).Samples
	}
	res, err := b.DecodeWhole(ctx, samples, opts)
	if err != nil {
		return Result{}, decodeError(err)
	}
	out := Result{Text: res.Text}
	if emit != nil {
		if err := emit(Segment{Start: 0, End: norm.Duration(), Text: res.Text}); err != nil {
			return Result{}, fmt.Errorf("%w: stream write: %v", ErrTranscription, err)
		}
	}
	return out, nil
}

// chunkSegments maps a decode result into absolute-time segments. An engine
// result without timing still yields one segment spanning the chunk so the
// format contract stays satisfiable.
func chunkSegments(res engine.Result, chunk vad.Chunk) []Segment {
	if len(res.Segments) == 0 {
		if res.Text == "" {
			return nil
		}
		return []Segment{{Start: chunk.OriginalStart, End: chunk.OriginalStart + chunk.End - chunk.Start, Text: res.Text}}
	}
	out := make([]Segment, 0, len(res.Segments))
	for _, s := range res.Segments {
		out = append(out, Segment{
			Start: chunk.OriginalStart + s.Start,
			End:   chunk.OriginalStart + s.End,
			Text:  s.Text,
		})
	}
	return out
}

// decodeError keeps resolver and init failures distinguishable for status
// mapping while tagging everything else as a transcription failure.
func decodeError(err error) error {
	if isInfrastructure(err) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrTranscription, err)
}
