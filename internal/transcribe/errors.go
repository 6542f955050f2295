package transcribe

import (
	"errors"

	"github.com/whispergate/whispergate/internal/engine"
	"github.com/whispergate/whispergate/internal/model"
)

// isInfrastructure reports errors that must surface with their own identity
// (model unavailable, engine init) rather than as a transcription failure.
func isInfrastructure(err error) bool {
	return errors.Is(err, model.ErrNotReady) || errors.Is(err, engine.ErrInit)
}
