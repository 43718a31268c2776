package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/AlekseyZapadovnikov/tracker-analytics/conf"
	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/models"
)

type fakeRunner struct {
	runFn func(ctx context.Context, q models.Query) (*models.AnalysisResult, error)
	calls []models.Query
}

func (f *fakeRunner) Run(ctx context.Context, q models.Query) (*models.AnalysisResult, error) {
	f.calls = append(f.calls, q)
	if f.runFn != nil {
		return f.runFn(ctx, q)
	}
	return &models.AnalysisResult{RunID: "run-1"}, nil
}

type fakeLocker struct {
	ok       bool
	err      error
	keys     []int64
	released int
}

func (f *fakeLocker) TryLock(_ context.Context, key int64) (func(), bool, error) {
	f.keys = append(f.keys, key)
	if f.err != nil || !f.ok {
		return nil, false, f.err
	}
	return func() { f.released++ }, true, nil
}

func testScheduleConf() conf.ScheduleConf {
	return conf.ScheduleConf{
		Cron:     "0 6 * * *",
		Projects: []string{"PROJ", "OPS"},
		Timeout:  conf.Duration{Duration: time.Minute},
	}
}

func TestNewSchedulerRejectsInvalidSpec(t *testing.T) {
	cfg := testScheduleConf()
	cfg.Cron = "every day"

	_, err := NewScheduler(cfg, "", nil, &fakeRunner{}, nil, zerolog.Nop())
	require.Error(t, err)
}

func TestSchedulerTickRunsEveryProject(t *testing.T) {
	runner := &fakeRunner{}
	s, err := NewScheduler(testScheduleConf(), "type = Bug", time.UTC, runner, nil, zerolog.Nop())
	require.NoError(t, err)

	s.tick()

	require.Equal(t, []models.Query{
		{Project: "PROJ", JQL: "type = Bug"},
		{Project: "OPS", JQL: "type = Bug"},
	}, runner.calls)
}

func TestSchedulerRunProjectAppliesTimeout(t *testing.T) {
	runner := &fakeRunner{runFn: func(ctx context.Context, q models.Query) (*models.AnalysisResult, error) {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		require.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
		return nil, errors.New("tracker down")
	}}
	s, err := NewScheduler(testScheduleConf(), "", time.UTC, runner, nil, zerolog.Nop())
	require.NoError(t, err)

	s.RunProject(context.Background(), "PROJ")

	require.Len(t, runner.calls, 1)
}

func TestSchedulerRunProjectLocking(t *testing.T) {
	t.Run("acquired lock is released", func(t *testing.T) {
		runner := &fakeRunner{}
		locker := &fakeLocker{ok: true}
		s, err := NewScheduler(testScheduleConf(), "", time.UTC, runner, locker, zerolog.Nop())
		require.NoError(t, err)

		s.RunProject(context.Background(), "PROJ")

		require.Len(t, runner.calls, 1)
		require.Equal(t, 1, locker.released)
		require.Equal(t, []int64{lockKey("PROJ")}, locker.keys)
	})

	t.Run("busy lock skips run", func(t *testing.T) {
		runner := &fakeRunner{}
		s, err := NewScheduler(testScheduleConf(), "", time.UTC, runner, &fakeLocker{ok: false}, zerolog.Nop())
		require.NoError(t, err)

		s.RunProject(context.Background(), "PROJ")

		require.Empty(t, runner.calls)
	})

	t.Run("lock error skips run", func(t *testing.T) {
		runner := &fakeRunner{}
		s, err := NewScheduler(testScheduleConf(), "", time.UTC, runner, &fakeLocker{err: errors.New("db down")}, zerolog.Nop())
		require.NoError(t, err)

		s.RunProject(context.Background(), "PROJ")

		require.Empty(t, runner.calls)
	})
}

func TestLockKeyIsStablePerProject(t *testing.T) {
	require.Equal(t, lockKey("PROJ"), lockKey("PROJ"))
	require.NotEqual(t, lockKey("PROJ"), lockKey("OPS"))
}
