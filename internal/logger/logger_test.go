package logger_test

import (
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daddykev/stardust-distro-sub000/internal/logger"
)

func TestNew_WithFieldsReturnsDistinctLogger(t *testing.T) {
	base, err := logger.New(logger.Config{Level: "warn", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)

	enriched := base.With(logger.String("job_id", "job-1"))
	assert.NotSame(t, base, enriched)

	enriched.Info("filtered below warn")
	enriched.Warn("visible", logger.Error(errors.New("boom")), logger.Int("attempt", 2))
}

func TestNop_IsUsable(t *testing.T) {
	l := logger.NewNop()
	l.Error("nothing happens")
	assert.Same(t, l, l.With(logger.Bool("x", true)))
	assert.NoError(t, l.Sync())
}

func TestAsynqLogger_SatisfiesAsynq(t *testing.T) {
	var l asynq.Logger = logger.NewAsynqLogger(logger.NewNop())
	l.Debug("task", " started")
	l.Info("processing")
	l.Warn("slow")
	l.Error("failed")
}
