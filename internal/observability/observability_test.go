package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracing_Disabled(t *testing.T) {
	shutdown, err := InitTracing(TracingConfig{ServiceName: "blogger-test"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSpan_RecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := Tracer
	Tracer = tp.Tracer("test")
	defer func() { Tracer = prev }()

	span, ctx := NewSpan(context.Background(), "profile.upload_avatar")
	require.NotNil(t, ctx)
	assert.NotEmpty(t, span.TraceID())
	span.SetError(errors.New("disk full"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "profile.upload_avatar", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
}

func TestTrackStep_ObservesLatency(t *testing.T) {
	before := testutil.CollectAndCount(ProfileEditStepLatency)
	done := TrackStep("observability_test")
	done()
	assert.Equal(t, before+1, testutil.CollectAndCount(ProfileEditStepLatency))
}
