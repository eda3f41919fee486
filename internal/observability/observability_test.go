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

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "error", Outcome(errors.New("boom")))
}

func TestTrackQuery_ObservesLatency(t *testing.T) {
	before := testutil.CollectAndCount(DatabaseQueryLatency)
	TrackQuery("select", "listings_test")()
	assert.Equal(t, before+1, testutil.CollectAndCount(DatabaseQueryLatency))
}

func TestInitTracing_Disabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{ServiceName: "rentonmap-test"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestTraceLayer_EndSpanRecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	layer := NewTraceLayer(tp.Tracer("test"))

	_, span := layer.TraceExternalCall(context.Background(), "s3", "PutObject")
	EndSpan(span, errors.New("access denied"))
	_, span = layer.TraceRepositoryMethod(context.Background(), "Search", "listings")
	EndSpan(span, nil)

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "s3.PutObject", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "db.listings.Search", ended[1].Name())
	assert.Equal(t, codes.Unset, ended[1].Status().Code)
}

func TestNewSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), newSampler(1).Description())
	assert.Contains(t, newSampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, newSampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}
