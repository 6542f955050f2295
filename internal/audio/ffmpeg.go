package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"os/exec"

	"github.com/rs/zerolog/log"
)

// ffmpegDecode converts a non-WAV container to mono 16 kHz float32 via an
// ffmpeg subprocess. Decoding of arbitrary codecs is delegated to the host
// platform rather than reimplemented.
func ffmpegDecode(b []byte) (Normalized, error) {
	bin, err := exec.LookPath("ffmpeg")
	if err != nil {
		return Normalized{}, fmt.Errorf("%w: unsupported container and ffmpeg not installed", ErrDecode)
	}

	in, err := os.CreateTemp("", "whispergate-in-*")
	if err != nil {
		return Normalized{}, fmt.Errorf("%w: %v", ErrConversion, err)
	}
	defer os.Remove(in.Name())
	if _, err := in.Write(b); err != nil {
		in.Close()
		return Normalized{}, fmt.Errorf("%w: %v", ErrConversion, err)
	}
	in.Close()

	cmd := exec.Command(bin,
		"-hide_banner", "-loglevel", "error",
		"-i", in.Name(),
		"-f", "f32le", "-ac", "1", "-ar", "16000",
		"pipe:1",
	)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		log.Debug().Err(err).Str("stderr", stderr.String()).Msg("ffmpeg decode failed")
		return Normalized{}, fmt.Errorf("%w: ffmpeg: %v", ErrConversion, err)
	}

	raw := out.Bytes()
	if len(raw) < 4 {
		return Normalized{}, fmt.Errorf("%w: no audio frames", ErrConversion)
	}
	samples := make([]float32, len(raw)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return Normalized{Samples: samples}, nil
}
