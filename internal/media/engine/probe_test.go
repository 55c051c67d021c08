// SPDX-License-Identifier: MIT

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProbeJSON = `{
  "streams": [
    {"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080},
    {"codec_type": "audio", "codec_name": "aac"},
    {"codec_type": "video", "codec_name": "mjpeg", "width": 320, "height": 180}
  ],
  "format": {"duration": "1.023000", "size": "482113"}
}`

func TestParseProbeOutput(t *testing.T) {
	meta, err := parseProbeOutput([]byte(sampleProbeJSON))
	require.NoError(t, err)

	want := &Metadata{
		Duration:   1.023,
		Width:      1920,
		Height:     1080,
		VideoCodec: "h264",
		AudioCodec: "aac",
		SizeBytes:  482113,
	}
	if diff := cmp.Diff(want, meta); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestParseProbeOutputMissingFields(t *testing.T) {
	meta, err := parseProbeOutput([]byte(`{"format": {}, "streams": []}`))
	require.NoError(t, err)
	assert.Zero(t, meta.Duration)
	assert.Empty(t, meta.VideoCodec)
}

func TestParseProbeOutputInvalidJSON(t *testing.T) {
	_, err := parseProbeOutput([]byte("not json"))
	assert.Error(t, err)
}

func TestInspectMissingFileReturnsNil(t *testing.T) {
	// A nonexistent binary makes the subprocess fail immediately; Inspect
	// must swallow that and report absent metadata.
	f := NewFFmpeg("ffmpeg", "/nonexistent/ffprobe", time.Second, zerolog.Nop())
	meta := f.Inspect(context.Background(), "/no/such/file.mp4")
	assert.Nil(t, meta)
}
