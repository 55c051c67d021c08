// SPDX-License-Identifier: MIT

package log

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-123")
	if got := RequestIDFromContext(ctx); got != "req-123" {
		t.Fatalf("expected req-123, got %q", got)
	}
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty id from bare context, got %q", got)
	}
}

func TestWithContextAttachesCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	ctx := ContextWithRequestID(context.Background(), "req-9")
	ctx = ContextWithJobID(ctx, "job-7")

	enriched := WithContext(ctx, logger)
	enriched.Info().Msg("hello")

	out := buf.String()
	if !strings.Contains(out, `"request_id":"req-9"`) {
		t.Errorf("missing request_id field: %s", out)
	}
	if !strings.Contains(out, `"job_id":"job-7"`) {
		t.Errorf("missing job_id field: %s", out)
	}
}

func TestWithContextNoFieldsIsPassthrough(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	passthrough := WithContext(context.Background(), logger)
	passthrough.Info().Msg("plain")

	if strings.Contains(buf.String(), "request_id") {
		t.Errorf("unexpected correlation field: %s", buf.String())
	}
}
