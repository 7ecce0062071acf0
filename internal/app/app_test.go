package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffrey-bowles/uspto/internal/config"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/prometheus"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/storage/artifact"
)

func TestNewArtifactBackend_File(t *testing.T) {
	cfg := &config.Config{Artifacts: config.ArtifactsConfig{Backend: "file", Dir: t.TempDir()}}

	backend, closer, err := newArtifactBackend(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, closer)
	assert.IsType(t, &artifact.FileStore{}, backend)

	require.NoError(t, backend.Write(context.Background(), "meta/probe", []byte(`{}`)))
	ok, err := backend.Exists(context.Background(), "meta/probe")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewArtifactBackend_Unknown(t *testing.T) {
	cfg := &config.Config{Artifacts: config.ArtifactsConfig{Backend: "s3"}}
	_, _, err := newArtifactBackend(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestApp_CloseReverseOrder(t *testing.T) {
	var order []string
	boom := errors.New("boom")
	a := &App{closers: []func() error{
		func() error { order = append(order, "db"); return nil },
		func() error { order = append(order, "redis"); return boom },
		func() error { order = append(order, "kafka"); return nil },
	}}

	assert.ErrorIs(t, a.Close(), boom)
	assert.Equal(t, []string{"kafka", "redis", "db"}, order)
	assert.NoError(t, a.Close())
}

func TestApp_ConsumerRequiresKafka(t *testing.T) {
	a := &App{Config: &config.Config{}}
	_, err := a.Consumer("g", "t", true)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger(config.LogConfig{Level: "debug", Format: "console", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)
	assert.NotNil(t, l.Named("app"))
}

func TestApp_ExposedCollector(t *testing.T) {
	a := &App{Config: &config.Config{}, Collector: prometheus.NewNoopCollector()}
	assert.Nil(t, a.ExposedCollector())

	a.Config.Metrics.Enabled = true
	assert.NotNil(t, a.ExposedCollector())
}
