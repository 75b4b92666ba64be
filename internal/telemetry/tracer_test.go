// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{ServiceName: "livetv", ExporterType: ExporterGRPC})
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Shutdown(context.Background()))

	_, span := otel.Tracer("test").Start(context.Background(), "noop-check")
	defer span.End()
	assert.False(t, span.IsRecording())
}

func TestNewProvider_InvalidExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, ExporterType: "zipkin"})
	require.Error(t, err)
	assert.Equal(t, "unsupported exporter type: zipkin (supported: grpc, http)", err.Error())
}

func TestNewProvider_HTTPExporter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	p, err := NewProvider(ctx, Config{
		Enabled:      true,
		ServiceName:  "livetv",
		ExporterType: ExporterHTTP,
		Endpoint:     "127.0.0.1:1",
		SamplingRate: 1,
	})
	require.NoError(t, err)
	assert.True(t, p.Enabled())

	_, span := Tracer("test").Start(ctx, "recorded")
	assert.True(t, span.IsRecording())
	span.End()

	// The collector is unreachable; only the shutdown path matters here.
	_ = p.Shutdown(ctx)
	otel.SetTracerProvider(noop.NewTracerProvider())
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{rate: 1, want: "AlwaysOnSampler"},
		{rate: 2, want: "AlwaysOnSampler"},
		{rate: 0, want: "AlwaysOffSampler"},
		{rate: -1, want: "AlwaysOffSampler"},
		{rate: 0.25, want: "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, samplerFor(tt.rate).Description(), "rate %v", tt.rate)
	}
}

func TestChannelAttributes_OmitsEmpty(t *testing.T) {
	attrs := ChannelAttributes("p1", "", "ZDF", "")
	assert.Equal(t, []attribute.KeyValue{
		attribute.String(PlayerIDKey, "p1"),
		attribute.String(ChannelKey, "ZDF"),
	}, attrs)
}

func TestCatalogAttributes(t *testing.T) {
	attrs := CatalogAttributes("channels", "de", 12)
	require.Len(t, attrs, 3)
	assert.Equal(t, attribute.String(PlaylistIDKey, "de"), attrs[2])
	assert.Len(t, CatalogAttributes("playlists", "", 3), 2)
}
