// SPDX-License-Identifier: MIT

// Package config loads and validates the daemon configuration from the
// environment. All variables use the CLIPD_ prefix.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds all runtime settings for the clip service.
type Config struct {
	// ListenAddr is the HTTP listen address, e.g. ":8080".
	ListenAddr string

	// StoreDir is the canonical store directory for finalized clips.
	StoreDir string

	// FFmpegBin is the ffmpeg binary path or name.
	FFmpegBin string

	// FFprobeBin is the ffprobe binary path or name. When empty it is
	// derived from FFmpegBin, falling back to PATH resolution.
	FFprobeBin string

	// EngineTimeout bounds every single ffmpeg/ffprobe invocation.
	// An expired deadline kills the subprocess.
	EngineTimeout time.Duration

	// RateLimitPerMinute caps mutating API requests per client IP.
	// Zero disables rate limiting.
	RateLimitPerMinute int

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration

	// LogLevel is the zerolog level name ("debug", "info", ...).
	LogLevel string
}

// FromEnv builds a Config from CLIPD_* environment variables.
func FromEnv() Config {
	cfg := Config{
		ListenAddr:         ParseString("CLIPD_LISTEN", ":8080"),
		StoreDir:           ParseString("CLIPD_STORE_DIR", "data"),
		FFmpegBin:          ParseString("CLIPD_FFMPEG_BIN", "ffmpeg"),
		FFprobeBin:         ParseString("CLIPD_FFPROBE_BIN", ""),
		EngineTimeout:      ParseDuration("CLIPD_ENGINE_TIMEOUT", 2*time.Minute),
		RateLimitPerMinute: ParseInt("CLIPD_RATE_LIMIT_PER_MINUTE", 60),
		ShutdownTimeout:    ParseDuration("CLIPD_SHUTDOWN_TIMEOUT", 10*time.Second),
		LogLevel:           ParseString("CLIPD_LOG_LEVEL", "info"),
	}
	cfg.FFprobeBin = ResolveFFprobeBin(cfg.FFprobeBin, cfg.FFmpegBin)
	return cfg
}

// Validate checks the configuration for obviously broken values.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.StoreDir == "" {
		return fmt.Errorf("store directory must not be empty")
	}
	if c.FFmpegBin == "" {
		return fmt.Errorf("ffmpeg binary must not be empty")
	}
	if c.EngineTimeout <= 0 {
		return fmt.Errorf("engine timeout must be positive, got %s", c.EngineTimeout)
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("rate limit must not be negative, got %d", c.RateLimitPerMinute)
	}
	return nil
}

// ResolveFFprobeBin returns an effective ffprobe binary path based on
// configured values.
//
// Resolution order:
// 1) Explicit ffprobeBin (CLIPD_FFPROBE_BIN)
// 2) Derive from ffmpegBin (.../ffmpeg -> .../ffprobe) if the derived binary exists
// 3) "ffprobe" (PATH resolution)
func ResolveFFprobeBin(ffprobeBin, ffmpegBin string) string {
	return resolveFFprobeBinWithStat(ffprobeBin, ffmpegBin, os.Stat)
}

func resolveFFprobeBinWithStat(ffprobeBin, ffmpegBin string, stat func(string) (os.FileInfo, error)) string {
	ffprobeBin = strings.TrimSpace(ffprobeBin)
	if ffprobeBin != "" {
		return ffprobeBin
	}

	ffmpegBin = strings.TrimSpace(ffmpegBin)

	// Only derive from a concrete ffmpeg path (.../ffmpeg -> .../ffprobe).
	// If ffmpegBin is just "ffmpeg" (PATH), we intentionally do not guess.
	if strings.ContainsRune(ffmpegBin, '/') && filepath.Base(ffmpegBin) == "ffmpeg" {
		candidate := filepath.Join(filepath.Dir(ffmpegBin), "ffprobe")
		if fi, err := stat(candidate); err == nil && fi != nil && !fi.IsDir() {
			return candidate
		}
	}
	return "ffprobe"
}
