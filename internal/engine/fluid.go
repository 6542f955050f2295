package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/whispergate/whispergate/internal/audio"
	"github.com/whispergate/whispergate/internal/model"
)

// NewFluidFactory builds contexts for the fluid recognizer, an external CLI
// that performs its own internal chunking and returns text only. The context
// verifies the command and artifact up front; each Decode is one invocation.
func NewFluidFactory(command string) Factory {
	return func(paths model.Paths) (Context, error) {
		bin, err := exec.LookPath(command)
		if err != nil {
			return nil, fmt.Errorf("fluid command %q: %w", command, err)
		}
		if _, err := os.Stat(paths.BinaryPath); err != nil {
			return nil, fmt.Errorf("model artifact: %w", err)
		}
		return &fluidContext{bin: bin, paths: paths}, nil
	}
}

type fluidContext struct {
	bin   string
	paths model.Paths
}

// fluidOutput is the CLI's JSON result. Timing comes back as decimal
// seconds; parsing through decimal avoids float drift on the ms conversion.
type fluidOutput struct {
	Text     string          `json:"text"`
	Duration decimal.Decimal `json:"duration"`
}

func (f *fluidContext) Decode(ctx context.Context, samples []float32, opts Options) (Result, error) {
	tmp, err := os.CreateTemp("", "whispergate-fluid-*.wav")
	if err != nil {
		return Result{}, fmt.Errorf("fluid scratch: %w", err)
	}
	scratch := tmp.Name()
	tmp.Close()
	if err := audio.WriteWAV16(scratch, samples); err != nil {
		return Result{}, err
	}
	defer os.Remove(scratch)

	args := []string{"--model", f.paths.BinaryPath, "--input", scratch, "--output", "json"}
	if f.paths.AuxiliaryDir != "" {
		args = append(args, "--aux", f.paths.AuxiliaryDir)
	}
	if opts.Language != "" {
		args = append(args, "--language", opts.Language)
	}
	cmd := exec.CommandContext(ctx, f.bin, args...)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	stderr, _ := cmd.StderrPipe()
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("fluid start: %w", err)
	}
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			log.Debug().Str("fluid", scanner.Text()).Msg("recognizer output")
		}
	}()
	if err := cmd.Wait(); err != nil {
		return Result{}, fmt.Errorf("fluid decode: %w", err)
	}

	var out fluidOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return Result{}, fmt.Errorf("fluid decode: parsing result: %w", err)
	}
	durMs := out.Duration.Mul(decimal.NewFromInt(1000)).IntPart()
	log.Debug().Int64("duration_ms", durMs).Msg("fluid decode complete")
	return Result{Text: strings.TrimSpace(out.Text)}, nil
}

func (f *fluidContext) Close() error { return nil }
