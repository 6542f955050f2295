// Package ws serves a realtime transcription socket: raw PCM16 frames in,
// transcript events out. Utterances are cut by the same voice-activity
// detector the HTTP pipeline uses.
package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/whispergate/whispergate/internal/audio"
	"github.com/whispergate/whispergate/internal/engine"
	"github.com/whispergate/whispergate/internal/transcribe"
	"github.com/whispergate/whispergate/internal/vad"
)

const readTimeout = 60 * time.Second

type Server struct {
	router   *transcribe.Router
	vadCfg   vad.Config
	upgrader websocket.Upgrader
}

func NewServer(router *transcribe.Router, vadCfg vad.Config) *Server {
	return &Server{
		router: router,
		vadCfg: vadCfg,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024 * 16,
			WriteBufferSize: 1024 * 16,
		},
	}
}

type controlMessage struct {
	Type     string `json:"type"`
	Language string `json:"language"`
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	backend, err := s.router.Resolve("", transcribe.FormatText, false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	var (
		samples  []float32
		language string
		base     int // source-audio sample index of samples[0]
	)
	baseTime := func() time.Duration {
		return time.Duration(base) * time.Second / audio.SampleRate
	}

	emit := func(start, end time.Duration, chunk []float32) {
		res, err := backend.DecodeChunk(r.Context(), chunk, engine.Options{Language: language})
		if err != nil {
			log.Warn().Err(err).Msg("realtime decode failed")
			_ = conn.WriteJSON(map[string]any{"type": "error", "detail": "decode failed"})
			return
		}
		if res.Text == "" {
			return
		}
		_ = conn.WriteJSON(map[string]any{
			"type":  "transcript",
			"text":  res.Text,
			"start": start.Seconds(),
			"end":   end.Seconds(),
		})
	}

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("ws read error")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		switch mt {
		case websocket.BinaryMessage:
			norm, err := audio.NormalizePCM16(data, audio.SampleRate)
			if err != nil {
				_ = conn.WriteJSON(map[string]any{"type": "error", "detail": "invalid pcm frame"})
				continue
			}
			samples = append(samples, norm.Samples...)

			// Transcribe every utterance whose trailing silence has settled;
			// the last detected segment may still be growing. Settled audio
			// is dropped afterwards so the buffer, and each detection pass
			// over it, stays bounded by one open utterance.
			segs := vad.Detect(samples, s.vadCfg)
			bufEnd := time.Duration(len(samples)) * time.Second / audio.SampleRate
			cut := 0
			for _, seg := range segs {
				if bufEnd-seg.End < s.vadCfg.MinSilence {
					break
				}
				emit(baseTime()+seg.Start, baseTime()+seg.End, samples[seg.StartSample:seg.EndSample])
				cut = seg.EndSample
			}
			if cut > 0 {
				samples = append(samples[:0:0], samples[cut:]...)
				base += cut
			}

		case websocket.TextMessage:
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				_ = conn.WriteJSON(map[string]any{"type": "error", "detail": "invalid json"})
				continue
			}
			switch msg.Type {
			case "start":
				language = msg.Language
				_ = conn.WriteJSON(map[string]any{"type": "started"})
			case "stop":
				if len(samples) > 0 {
					end := baseTime() + time.Duration(len(samples))*time.Second/audio.SampleRate
					emit(baseTime(), end, samples)
				}
				_ = conn.WriteJSON(map[string]any{"type": "done"})
				return
			default:
				_ = conn.WriteJSON(map[string]any{"type": "error", "detail": "unknown message type"})
			}
		}
	}
}
