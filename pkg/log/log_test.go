package log_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/relay/pkg/log"
)

func TestCreateHandlerWithStrings(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		err      error
		level    string
		format   string
		contains string
	}{
		"json": {
			level:    "debug",
			format:   "json",
			contains: `"msg":"hello"`,
		},
		"logfmt": {
			level:    "INFO",
			format:   "logfmt",
			contains: "msg=hello",
		},
		"text": {
			level:    "warning",
			format:   "text",
			contains: "hello",
		},
		"unknown level": {
			level:  "loud",
			format: "json",
			err:    log.ErrUnknownLogLevel,
		},
		"unknown format": {
			level:  "info",
			format: "xml",
			err:    log.ErrUnknownLogFormat,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer

			h, err := log.CreateHandlerWithStrings(&buf, tc.level, tc.format)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				require.ErrorIs(t, err, log.ErrInvalidArgument)

				return
			}

			require.NoError(t, err)

			slog.New(h).Error("hello")
			assert.Contains(t, buf.String(), tc.contains)
		})
	}
}

func TestWithContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := log.NewContext(t.Context(), logger)

	assert.Same(t, logger, log.WithContext(ctx))

	traceID, err := trace.TraceIDFromHex("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	spanID, err := trace.SpanIDFromHex("0123456789abcdef")
	require.NoError(t, err)

	ctx = trace.ContextWithSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	log.WithContext(ctx).Info("traced")
	assert.Contains(t, buf.String(), `"trace_id":"01234567"`)
}
