package cronrunner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRunnerRunsJobsWithBaseContext(t *testing.T) {
	type ctxKey struct{}
	base := context.WithValue(context.Background(), ctxKey{}, "base")
	r := New(zap.NewNop(), base)

	got := make(chan any, 1)
	_, err := r.Add("probe", "* * * * * *", func(ctx context.Context) error {
		select {
		case got <- ctx.Value(ctxKey{}):
		default:
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, r.Len())

	r.Start()
	defer r.Stop()

	select {
	case v := <-got:
		require.Equal(t, "base", v)
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}
}

func TestRunnerLogsFailuresAndRecovers(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := New(zap.New(core), nil)

	failed := make(chan struct{}, 1)
	panicked := make(chan struct{}, 1)
	notify := func(ch chan struct{}) {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	_, err := r.Add("failing", "* * * * * *", func(context.Context) error {
		defer notify(failed)
		return errors.New("boom")
	})
	require.NoError(t, err)
	_, err = r.Add("panicking", "* * * * * *", func(context.Context) error {
		defer notify(panicked)
		panic("kaboom")
	})
	require.NoError(t, err)

	r.Start()
	for _, ch := range []chan struct{}{failed, panicked} {
		select {
		case <-ch:
		case <-time.After(3 * time.Second):
			t.Fatal("jobs did not run")
		}
	}
	r.Stop()

	require.NotEmpty(t, logs.FilterMessage("cron job failed").FilterField(zap.String("job", "failing")).All())
	require.NotEmpty(t, logs.FilterMessage("panic").All())
}

func TestRunnerRejectsBadSpec(t *testing.T) {
	r := New(nil, context.Background())
	_, err := r.Add("bad", "not a spec", func(context.Context) error { return nil })
	require.Error(t, err)
}
