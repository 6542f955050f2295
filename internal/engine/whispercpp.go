//go:build whisper_cpp

package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"

	whisperpkg "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/rs/zerolog/log"

	"github.com/whispergate/whispergate/internal/model"
)

// NewWhisperFactory builds whisper.cpp contexts. Each Context holds one
// loaded model; each Decode spins up a fresh whisper context over it.
func NewWhisperFactory(gpu bool) Factory {
	threads := uint(runtime.NumCPU())
	if v := os.Getenv("WHISPER_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			threads = uint(n)
		}
	}
	return func(paths model.Paths) (Context, error) {
		if _, err := os.Stat(paths.BinaryPath); err != nil {
			return nil, fmt.Errorf("model artifact: %w", err)
		}
		m, err := whisperpkg.New(paths.BinaryPath)
		if err != nil {
			return nil, fmt.Errorf("load model: %w", err)
		}
		log.Info().Str("model", paths.BinaryPath).Bool("gpu", gpu).Uint("threads", threads).Msg("whisper model loaded")
		return &whisperContext{model: m, threads: threads}, nil
	}
}

type whisperContext struct {
	model   whisperpkg.Model
	threads uint
}

func (w *whisperContext) Decode(ctx context.Context, samples []float32, opts Options) (Result, error) {
	if len(samples) == 0 {
		return Result{}, nil
	}

	wctx, err := w.model.NewContext()
	if err != nil {
		return Result{}, fmt.Errorf("create context: %w", err)
	}
	wctx.SetThreads(w.threads)
	lang := opts.Language
	if lang == "" {
		lang = "auto"
	}
	_ = wctx.SetLanguage(lang)
	wctx.SetSplitOnWord(true)
	wctx.SetTokenTimestamps(true)
	wctx.SetMaxSegmentLength(0)
	wctx.SetMaxTokensPerSegment(0)
	wctx.SetAudioCtx(0)
	if opts.Prompt != "" {
		wctx.SetInitialPrompt(opts.Prompt)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return Result{}, fmt.Errorf("process audio: %w", err)
	}

	var (
		segments []Segment
		parts    []string
	)
	for {
		seg, err := wctx.NextSegment()
		if err != nil {
			if err != io.EOF {
				log.Warn().Err(err).Msg("whisper: error reading segment")
			}
			break
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		segments = append(segments, Segment{Start: seg.Start, End: seg.End, Text: text})
		parts = append(parts, text)
	}
	return Result{Text: strings.Join(parts, " "), Segments: segments}, nil
}

func (w *whisperContext) Close() error {
	if w.model != nil {
		w.model.Close()
	}
	return nil
}
