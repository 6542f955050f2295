// Package format renders transcription results as wire bytes in one of five
// formats, buffered or incrementally, with optional SSE framing.
package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/whispergate/whispergate/internal/transcribe"
)

// ContentType maps a logical format to its media type. An active SSE stream
// advertises text/event-stream instead; see StreamEncoder.ContentType.
func ContentType(f transcribe.Format) string {
	switch f {
	case transcribe.FormatText:
		return "text/plain"
	case transcribe.FormatSRT:
		return "application/x-subrip"
	case transcribe.FormatVTT:
		return "text/vtt"
	default:
		return "application/json"
	}
}

// Render produces the complete buffered body for a result.
func Render(f transcribe.Format, res transcribe.Result) ([]byte, error) {
	switch f {
	case transcribe.FormatText:
		return []byte(res.Text), nil
	case transcribe.FormatSRT:
		var buf bytes.Buffer
		idx := 1
		for _, seg := range res.Segments {
			if seg.Text == "" {
				continue
			}
			writeSRTCue(&buf, idx, seg)
			idx++
		}
		return buf.Bytes(), nil
	case transcribe.FormatVTT:
		var buf bytes.Buffer
		buf.WriteString("WEBVTT\n\n")
		for _, seg := range res.Segments {
			if seg.Text == "" {
				continue
			}
			writeVTTCue(&buf, seg)
		}
		return buf.Bytes(), nil
	case transcribe.FormatVerboseJSON:
		type jsonSegment struct {
			Start float64 `json:"start"`
			End   float64 `json:"end"`
			Text  string  `json:"text"`
		}
		out := struct {
			Text     string        `json:"text"`
			Segments []jsonSegment `json:"segments"`
		}{Text: res.Text, Segments: make([]jsonSegment, 0, len(res.Segments))}
		for _, seg := range res.Segments {
			out.Segments = append(out.Segments, jsonSegment{
				Start: seg.Start.Seconds(),
				End:   seg.End.Seconds(),
				Text:  seg.Text,
			})
		}
		return json.Marshal(out)
	default:
		return json.Marshal(struct {
			Text string `json:"text"`
		}{Text: res.Text})
	}
}

// StreamEncoder frames incremental segments for one streamed response.
// Not safe for concurrent use; one response owns one encoder.
type StreamEncoder struct {
	format transcribe.Format
	sse    bool
	index  int
	header bool
}

func NewStreamEncoder(f transcribe.Format, sse bool) *StreamEncoder {
	return &StreamEncoder{format: f, sse: sse}
}

// ContentType is the media type the response must advertise.
func (e *StreamEncoder) ContentType() string {
	if e.sse {
		return "text/event-stream"
	}
	return ContentType(e.format)
}

// Segment renders one increment. Empty-text cues are skipped for the
// subtitle formats.
func (e *StreamEncoder) Segment(seg transcribe.Segment) []byte {
	var payload []byte
	switch e.format {
	case transcribe.FormatText:
		payload = []byte(seg.Text)
	case transcribe.FormatSRT:
		if seg.Text == "" {
			return nil
		}
		var buf bytes.Buffer
		e.index++
		writeSRTCue(&buf, e.index, seg)
		payload = buf.Bytes()
	case transcribe.FormatVTT:
		if seg.Text == "" {
			return nil
		}
		var buf bytes.Buffer
		if !e.header {
			e.header = true
			buf.WriteString("WEBVTT\n\n")
		}
		writeVTTCue(&buf, seg)
		payload = buf.Bytes()
	case transcribe.FormatVerboseJSON:
		b, _ := json.Marshal(struct {
			Start float64 `json:"start"`
			End   float64 `json:"end"`
			Text  string  `json:"text"`
		}{Start: seg.Start.Seconds(), End: seg.End.Seconds(), Text: seg.Text})
		payload = append(b, '\n')
	default:
		b, _ := json.Marshal(struct {
			Text string `json:"text"`
		}{Text: seg.Text})
		payload = append(b, '\n')
	}
	if e.sse {
		// The newline-delimited payload variants keep their delimiter only
		// on the wire they own; SSE frames end with the blank line alone.
		return wrapSSE(bytes.TrimRight(payload, "\n"))
	}
	return payload
}

// End returns the end-of-stream marker: an SSE sentinel event, or nothing
// for plain chunked delivery, where the stream simply closes.
func (e *StreamEncoder) End() []byte {
	if e.sse {
		return []byte("event: end\ndata: \n\n")
	}
	return nil
}

func wrapSSE(payload []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("data: ")
	buf.Write(payload)
	buf.WriteString("\n\n")
	return buf.Bytes()
}

func writeSRTCue(buf *bytes.Buffer, index int, seg transcribe.Segment) {
	fmt.Fprintf(buf, "%d\n%s --> %s\n%s\n\n", index, srtTimestamp(seg.Start), srtTimestamp(seg.End), seg.Text)
}

func writeVTTCue(buf *bytes.Buffer, seg transcribe.Segment) {
	fmt.Fprintf(buf, "%s --> %s\n%s\n\n", vttTimestamp(seg.Start), vttTimestamp(seg.End), seg.Text)
}

func srtTimestamp(d time.Duration) string {
	h, m, s, ms := clockParts(d)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

func vttTimestamp(d time.Duration) string {
	h, m, s, ms := clockParts(d)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

func clockParts(d time.Duration) (h, m, s, ms int) {
	if d < 0 {
		d = 0
	}
	h = int(d / time.Hour)
	d -= time.Duration(h) * time.Hour
	m = int(d / time.Minute)
	d -= time.Duration(m) * time.Minute
	s = int(d / time.Second)
	d -= time.Duration(s) * time.Second
	ms = int(d / time.Millisecond)
	return h, m, s, ms
}
