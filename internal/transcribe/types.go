// Package transcribe routes transcription requests to a backend engine
// family and drives the normalize-segment-decode-aggregate pipeline.
package transcribe

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidRequest         = errors.New("invalid request")
	ErrUnsupportedCombination = errors.New("format not supported by provider")
	ErrTranscription          = errors.New("transcription failed")
)

type Provider string

const (
	ProviderWhisper Provider = "whisper"
	ProviderFluid   Provider = "fluid"
)

// ParseProvider resolves a request's provider field. Empty falls back to the
// default; anything unrecognized is rejected rather than silently remapped.
func ParseProvider(s string, def Provider) (Provider, error) {
	switch Provider(s) {
	case "":
		return def, nil
	case ProviderWhisper:
		return ProviderWhisper, nil
	case ProviderFluid:
		return ProviderFluid, nil
	default:
		return "", fmt.Errorf("%w: unknown provider %q", ErrInvalidRequest, s)
	}
}

type Format string

const (
	FormatJSON        Format = "json"
	FormatText        Format = "text"
	FormatSRT         Format = "srt"
	FormatVTT         Format = "vtt"
	FormatVerboseJSON Format = "verbose_json"
)

// ParseFormat defaults to json on empty or unrecognized values.
func ParseFormat(s string) Format {
	switch Format(s) {
	case FormatText, FormatSRT, FormatVTT, FormatVerboseJSON:
		return Format(s)
	default:
		return FormatJSON
	}
}

// Timestamped reports whether the format needs per-segment timing.
func (f Format) Timestamped() bool {
	switch f {
	case FormatSRT, FormatVTT, FormatVerboseJSON:
		return true
	}
	return false
}

type Request struct {
	Audio       []byte
	Language    string
	Prompt      string
	Format      Format
	Stream      bool
	Model       string
	Temperature float64
}

// Segment is a timed piece of the final transcription, in absolute
// source-audio time.
type Segment struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

type Result struct {
	Text     string
	Segments []Segment
}
