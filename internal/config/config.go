package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr             string
	DefaultProvider  string
	WhisperModelPath string
	FluidModelPath   string
	FluidCommand     string
	IdleTimeoutSec   int
	GPUEnabled       bool
	IsolatedDecodes  bool
	HistoryPath      string
	RealtimeEnabled  bool
}

// MinIdleTimeoutSec is the floor for the engine idle-eviction timer.
const MinIdleTimeoutSec = 5

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch v {
		case "0", "false", "no", "off", "False", "FALSE":
			return false
		default:
			return true
		}
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func Load() Config {
	// A missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	cfg := Config{
		Addr:             getenv("WHISPERGATE_ADDR", ":8080"),
		DefaultProvider:  getenv("WHISPERGATE_PROVIDER", "whisper"),
		WhisperModelPath: getenv("WHISPERGATE_WHISPER_MODEL", "./models/ggml-base.en.bin"),
		FluidModelPath:   getenv("WHISPERGATE_FLUID_MODEL", ""),
		FluidCommand:     getenv("WHISPERGATE_FLUID_COMMAND", "fluid-asr"),
		IdleTimeoutSec:   getenvInt("WHISPERGATE_IDLE_TIMEOUT", 30),
		GPUEnabled:       getenvBool("WHISPERGATE_GPU", true),
		IsolatedDecodes:  getenvBool("WHISPERGATE_ISOLATED_DECODES", false),
		HistoryPath:      getenv("WHISPERGATE_HISTORY_DB", ""),
		RealtimeEnabled:  getenvBool("WHISPERGATE_REALTIME", true),
	}
	if cfg.IdleTimeoutSec < MinIdleTimeoutSec {
		cfg.IdleTimeoutSec = MinIdleTimeoutSec
	}
	return cfg
}
