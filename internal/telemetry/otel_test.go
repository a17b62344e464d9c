package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_DisabledIsNoop(t *testing.T) {
	tests := []Settings{
		{ServiceName: "anchor", Enabled: false, Endpoint: "http://localhost:4318"},
		{ServiceName: "anchor", Enabled: true},
	}
	for _, s := range tests {
		shutdown, err := Setup(context.Background(), s)
		require.NoError(t, err)
		require.NotNil(t, shutdown)
		assert.NoError(t, shutdown(context.Background()))
	}
}

func TestTracer_StartsSpans(t *testing.T) {
	_, span := Tracer().Start(context.Background(), "GET /v1/snapshot")
	defer span.End()
	assert.NotNil(t, span.SpanContext())
}
