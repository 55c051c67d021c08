// SPDX-License-Identifier: MIT

package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/clipworks/clipd/internal/metrics"
	"github.com/rs/zerolog"
)

// maxDiagnosticLen bounds the stderr tail carried in diagnostics.
const maxDiagnosticLen = 500

// FFmpeg implements Engine by spawning ffmpeg/ffprobe subprocesses.
// Every invocation runs under the configured deadline; expiry kills the
// subprocess and reports a failed Completion.
type FFmpeg struct {
	ffmpegBin  string
	ffprobeBin string
	timeout    time.Duration
	log        zerolog.Logger
}

// NewFFmpeg builds an FFmpeg engine. Empty binary names fall back to PATH
// resolution ("ffmpeg"/"ffprobe").
func NewFFmpeg(ffmpegBin, ffprobeBin string, timeout time.Duration, logger zerolog.Logger) *FFmpeg {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}
	return &FFmpeg{
		ffmpegBin:  ffmpegBin,
		ffprobeBin: ffprobeBin,
		timeout:    timeout,
		log:        logger,
	}
}

// Trim extracts a fixed-length clip. The start offset is applied as an
// input-side coarse seek combined with -accurate_seek and an explicit output
// duration cap, because naive single-phase seeking on compressed formats can
// overshoot.
func (f *FFmpeg) Trim(ctx context.Context, input string, offsetSeconds float64, output string) Completion {
	args := trimArgs(input, offsetSeconds, output)
	c := f.run(ctx, "trim", args)
	metrics.IncEngineInvocation("trim", c.OK())
	return c
}

// Concat concatenates the manifest entries into output with stream-copy
// semantics: all video/audio/subtitle streams mapped, global metadata taken
// from the first input, and a tolerant muxing queue so independent timestamp
// bases across inputs do not abort the merge.
func (f *FFmpeg) Concat(ctx context.Context, manifest, output string) Completion {
	args := concatArgs(manifest, output)
	c := f.run(ctx, "concat", args)
	metrics.IncEngineInvocation("concat", c.OK())
	return c
}

func trimArgs(input string, offsetSeconds float64, output string) []string {
	return []string{
		"-ss", strconv.FormatFloat(offsetSeconds, 'f', -1, 64),
		"-accurate_seek",
		"-i", input,
		"-t", "1.0",
		"-f", "mp4",
		"-y", output,
	}
}

func concatArgs(manifest, output string) []string {
	return []string{
		"-f", "concat",
		"-safe", "0",
		"-vsync", "2",
		"-i", manifest,
		"-map", "0:v?",
		"-map", "0:a?",
		"-map", "0:s?",
		"-map_metadata", "0:g",
		"-c:v", "copy",
		"-c:a", "copy",
		"-max_muxing_queue_size", "9999",
		"-y", output,
	}
}

// run executes ffmpeg with the given args under the engine deadline.
func (f *FFmpeg) run(ctx context.Context, command string, args []string) Completion {
	runCtx := ctx
	var cancel context.CancelFunc
	if f.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	fullArgs := append([]string{"-nostdin", "-hide_banner", "-loglevel", "error"}, args...)
	cmd := exec.CommandContext(runCtx, f.ffmpegBin, fullArgs...)

	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return failure(1, "", fmt.Errorf("start %s: %w", f.ffmpegBin, err))
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-runCtx.Done():
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-done
		waitErr = runCtx.Err()
	}

	exitCode := 1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	diagnostic := truncateForLog(stderrBuf.String(), maxDiagnosticLen)

	logger := f.log.With().
		Str("command", command).
		Int("exit_code", exitCode).
		Dur("elapsed", time.Since(start)).
		Logger()

	if waitErr != nil {
		if errors.Is(waitErr, context.DeadlineExceeded) {
			logger.Error().Str("event", "engine.timeout").Msg("engine invocation exceeded deadline, killed")
			return failure(exitCode, diagnostic, fmt.Errorf("%s timed out after %s", command, f.timeout))
		}
		logger.Error().Str("event", "engine.failed").Str("stderr", diagnostic).Msg("engine invocation failed")
		return failure(exitCode, diagnostic, fmt.Errorf("%s: %w", command, waitErr))
	}

	logger.Debug().Str("event", "engine.completed").Msg("engine invocation completed")
	return Completion{ExitCode: exitCode}
}

// truncateForLog bounds engine output carried into errors and log fields.
func truncateForLog(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
