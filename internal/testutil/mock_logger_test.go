package testutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/internal/testutil"
)

func TestMockLogger_RecordsLevels(t *testing.T) {
	logger := testutil.NewMockLogger()

	logger.Info("archive applied", logging.String("archive", "ad20240101.zip"))
	logger.Error("join failed")

	msgs := logger.GetMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "info", msgs[0].Level)
	v, ok := msgs[0].Field("archive")
	assert.True(t, ok)
	assert.Equal(t, "ad20240101.zip", v)
	assert.True(t, logger.HasMessage("error", "join failed"))
	assert.False(t, logger.HasMessage("info", "join failed"))

	logger.Clear()
	assert.Empty(t, logger.GetMessages())
}

func TestMockLogger_DerivedLoggersShareBuffer(t *testing.T) {
	logger := testutil.NewMockLogger()

	logger.Named("fees").With(logging.Int("n", 1)).Warn("skipped", logging.String("line", "x"))
	logger.Warn("skipped")

	assert.Equal(t, 2, logger.Count("warn", "skipped"))
	first := logger.GetMessages()[0]
	_, hasN := first.Field("n")
	_, hasLine := first.Field("line")
	assert.True(t, hasN)
	assert.True(t, hasLine)
	_, ok := logger.GetMessages()[1].Field("n")
	assert.False(t, ok)
}
