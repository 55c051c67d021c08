// SPDX-License-Identifier: MIT

package engine

import (
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"time"

	"github.com/clipworks/clipd/internal/metrics"
)

// Inspect probes path with ffprobe and returns its metadata. Any failure
// (missing file, unreadable media, malformed JSON) yields nil — never an
// error — so callers can treat metadata as best-effort.
func (f *FFmpeg) Inspect(ctx context.Context, path string) *Metadata {
	runCtx := ctx
	var cancel context.CancelFunc
	if f.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	// -v quiet suppresses decode noise; corrupted frames are skipped during probing.
	cmd := exec.CommandContext(runCtx, f.ffprobeBin,
		"-v", "quiet",
		"-fflags", "+discardcorrupt",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	start := time.Now()
	out, err := cmd.Output()
	if err != nil {
		f.log.Debug().
			Err(err).
			Str("event", "engine.probe_failed").
			Str("path", path).
			Dur("elapsed", time.Since(start)).
			Msg("ffprobe failed, treating metadata as absent")
		metrics.IncEngineInvocation("inspect", false)
		return nil
	}

	meta, perr := parseProbeOutput(out)
	if perr != nil {
		f.log.Debug().
			Err(perr).
			Str("event", "engine.probe_parse_failed").
			Str("path", path).
			Msg("ffprobe output unparseable, treating metadata as absent")
		metrics.IncEngineInvocation("inspect", false)
		return nil
	}
	metrics.IncEngineInvocation("inspect", true)
	return meta
}

// parseProbeOutput decodes the ffprobe JSON document into Metadata.
func parseProbeOutput(out []byte) (*Metadata, error) {
	var doc struct {
		Format struct {
			Duration string `json:"duration"`
			Size     string `json:"size"`
		} `json:"format"`
		Streams []struct {
			CodecType string `json:"codec_type"`
			CodecName string `json:"codec_name"`
			Width     int    `json:"width"`
			Height    int    `json:"height"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &doc); err != nil {
		return nil, err
	}

	meta := &Metadata{}
	if d, err := strconv.ParseFloat(doc.Format.Duration, 64); err == nil {
		meta.Duration = d
	}
	if s, err := strconv.ParseInt(doc.Format.Size, 10, 64); err == nil {
		meta.SizeBytes = s
	}
	for _, st := range doc.Streams {
		switch st.CodecType {
		case "video":
			if meta.VideoCodec == "" {
				meta.VideoCodec = st.CodecName
				meta.Width = st.Width
				meta.Height = st.Height
			}
		case "audio":
			if meta.AudioCodec == "" {
				meta.AudioCodec = st.CodecName
			}
		}
	}
	return meta, nil
}
