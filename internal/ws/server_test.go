package ws

import (
	"context"
	"encoding/binary"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/whispergate/whispergate/internal/audio"
	"github.com/whispergate/whispergate/internal/engine"
	"github.com/whispergate/whispergate/internal/transcribe"
	"github.com/whispergate/whispergate/internal/vad"
)

type fakeBackend struct{}

func (fakeBackend) Provider() transcribe.Provider  { return transcribe.ProviderWhisper }
func (fakeBackend) SupportsTimestamps() bool       { return true }
func (fakeBackend) SupportsSegmentStreaming() bool { return true }
func (fakeBackend) Shutdown()                      {}

func (fakeBackend) DecodeChunk(ctx context.Context, samples []float32, opts engine.Options) (engine.Result, error) {
	return engine.Result{Text: "hi"}, nil
}

func (fakeBackend) DecodeWhole(ctx context.Context, samples []float32, opts engine.Options) (engine.Result, error) {
	return engine.Result{Text: "hi"}, nil
}

func pcm16(samples []float32) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(s*32767)))
	}
	return out
}

func toneThenSilence(tone, silence time.Duration) []float32 {
	n := int(tone * audio.SampleRate / time.Second)
	m := int(silence * audio.SampleRate / time.Second)
	out := make([]float32, n+m)
	for i := 0; i < n; i++ {
		out[i] = 0.5 * float32(math.Sin(2*math.Pi*440*float64(i)/audio.SampleRate))
	}
	return out
}

type serverMessage struct {
	Type  string  `json:"type"`
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func dialTestServer(t *testing.T) *websocket.Conn {
	t.Helper()
	router := transcribe.NewRouter(transcribe.ProviderWhisper, fakeBackend{})
	srv := httptest.NewServer(NewServer(router, vad.DefaultConfig()))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	return conn
}

func readTranscript(t *testing.T, conn *websocket.Conn) serverMessage {
	t.Helper()
	for {
		var msg serverMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type == "transcript" {
			return msg
		}
		if msg.Type == "error" {
			t.Fatalf("server error: %+v", msg)
		}
	}
}

func TestRealtimeUtteranceTimesStayAbsolute(t *testing.T) {
	conn := dialTestServer(t)

	// First utterance: one second of tone, enough trailing silence for the
	// detector to settle it.
	if err := conn.WriteMessage(websocket.BinaryMessage, pcm16(toneThenSilence(time.Second, time.Second))); err != nil {
		t.Fatalf("write: %v", err)
	}
	first := readTranscript(t, conn)
	if first.Text != "hi" {
		t.Fatalf("unexpected transcript %q", first.Text)
	}
	if first.End <= first.Start {
		t.Fatalf("transcript has no span: %+v", first)
	}

	// The first utterance's audio has been dropped from the buffer by now;
	// the second one's reported times must still be in absolute session time.
	if err := conn.WriteMessage(websocket.BinaryMessage, pcm16(toneThenSilence(time.Second, time.Second))); err != nil {
		t.Fatalf("write: %v", err)
	}
	second := readTranscript(t, conn)
	if second.Start <= first.End {
		t.Fatalf("second utterance not offset past the first: first=%+v second=%+v", first, second)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"stop"}`)); err != nil {
		t.Fatalf("write stop: %v", err)
	}
	for {
		var msg serverMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read after stop: %v", err)
		}
		if msg.Type == "done" {
			break
		}
	}
}

func TestRealtimeInvalidFrameReported(t *testing.T) {
	conn := dialTestServer(t)

	// Odd-length payload is not valid little-endian PCM16.
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0x01}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var msg serverMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "error" {
		t.Fatalf("expected an error frame, got %+v", msg)
	}
}
