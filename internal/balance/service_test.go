package balance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-rewards/internal/cache"
	"github.com/noah-isme/storefront-rewards/internal/common"
	"github.com/noah-isme/storefront-rewards/internal/obs"
	"github.com/noah-isme/storefront-rewards/internal/rewards"
)

type stubFetcher struct {
	points int64
	err    error
	calls  int
}

func (f *stubFetcher) Balance(context.Context, string) (rewards.PointsBalance, error) {
	f.calls++
	if f.err != nil {
		return rewards.PointsBalance{}, f.err
	}
	return rewards.PointsBalance{TotalPoints: f.points}, nil
}

type stubTasks struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (s *stubTasks) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	s.opts = append(s.opts, opts)
	if s.err != nil {
		return nil, s.err
	}
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "t"}, nil
}

func newService(t *testing.T, f Fetcher) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &Service{
		Fetcher: f,
		Store:   cache.NewStore(client, "test:", time.Minute),
		Now:     func() time.Time { return fixed },
	}, mr
}

func TestGetCachesSnapshot(t *testing.T) {
	fetcher := &stubFetcher{points: 400}
	svc, _ := newService(t, fetcher)
	ctx := context.Background()

	snap, err := svc.Get(ctx, "u-1", false)
	require.NoError(t, err)
	require.Equal(t, int64(400), snap.TotalPoints)

	fetcher.points = 900
	snap, err = svc.Get(ctx, "u-1", false)
	require.NoError(t, err)
	require.Equal(t, int64(400), snap.TotalPoints)
	require.Equal(t, 1, fetcher.calls)

	snap, err = svc.Get(ctx, "u-1", true)
	require.NoError(t, err)
	require.Equal(t, int64(900), snap.TotalPoints)
}

func TestGetFallsBackToStale(t *testing.T) {
	fetcher := &stubFetcher{points: 120}
	svc, _ := newService(t, fetcher)
	ctx := context.Background()

	_, err := svc.Get(ctx, "u-1", false)
	require.NoError(t, err)

	fetcher.err = errors.New("boom")
	snap, err := svc.Get(ctx, "u-1", true)
	require.NoError(t, err)
	require.True(t, snap.Stale)
	require.Equal(t, int64(120), snap.TotalPoints)

	_, err = svc.Get(ctx, "u-2", false)
	require.Error(t, err)

	_, err = svc.Get(ctx, "", false)
	require.ErrorIs(t, err, ErrNoUser)
}

func TestSnapshotExpires(t *testing.T) {
	fetcher := &stubFetcher{points: 10}
	svc, mr := newService(t, fetcher)
	ctx := context.Background()

	_, err := svc.Get(ctx, "u-1", false)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	_, err = svc.Get(ctx, "u-1", false)
	require.NoError(t, err)
	require.Equal(t, 2, fetcher.calls)
}

func TestRefreshOrDeferQueuesOnFailure(t *testing.T) {
	fetcher := &stubFetcher{points: 50}
	svc, mr := newService(t, fetcher)
	tasks := &stubTasks{}
	svc.Queue = &Enqueuer{Client: tasks, MaxRetry: 3}
	ctx := context.Background()

	snap, ok := svc.RefreshOrDefer(ctx, "u-1", SourceRedeem)
	require.True(t, ok)
	require.Equal(t, int64(50), snap.TotalPoints)
	require.Empty(t, tasks.tasks)

	fetcher.err = errors.New("upstream down")
	_, ok = svc.RefreshOrDefer(ctx, "u-1", SourceRedeem)
	require.False(t, ok)
	require.False(t, mr.Exists("test:"+cache.KeyBalance("u-1")))
	require.Len(t, tasks.tasks, 1)
	require.Equal(t, TaskRefresh, tasks.tasks[0].Type())

	tasks.err = asynq.ErrDuplicateTask
	require.NoError(t, svc.Queue.EnqueueRefresh(ctx, "u-1"))
}

func TestEnqueueRefreshUsesExpiringUniqueness(t *testing.T) {
	tasks := &stubTasks{}
	q := &Enqueuer{Client: tasks, MaxRetry: 2}
	ctx := context.Background()

	require.NoError(t, q.EnqueueRefresh(ctx, "u-1"))
	require.Len(t, tasks.opts, 1)
	var unique time.Duration
	for _, opt := range tasks.opts[0] {
		require.NotEqual(t, asynq.TaskIDOpt, opt.Type())
		if opt.Type() == asynq.UniqueOpt {
			unique = opt.Value().(time.Duration)
		}
	}
	require.Equal(t, DefaultUniqueFor, unique)

	tasks.err = asynq.ErrTaskIDConflict
	require.ErrorIs(t, q.EnqueueRefresh(ctx, "u-1"), asynq.ErrTaskIDConflict)
}

func TestRefreshOrDeferRecordsSource(t *testing.T) {
	obs.MustRegisterDomainMetrics("storefront", prometheus.NewRegistry())
	svc, _ := newService(t, &stubFetcher{points: 20})
	ctx := context.Background()

	checkout := obs.BalanceRefreshTotal.WithLabelValues(SourceCheckout, "ok")
	redeem := obs.BalanceRefreshTotal.WithLabelValues(SourceRedeem, "ok")
	beforeCheckout, beforeRedeem := testutil.ToFloat64(checkout), testutil.ToFloat64(redeem)

	_, ok := svc.RefreshOrDefer(ctx, "u-1", SourceCheckout)
	require.True(t, ok)
	require.Equal(t, beforeCheckout+1, testutil.ToFloat64(checkout))
	require.Equal(t, beforeRedeem, testutil.ToFloat64(redeem))
}

func TestHandleRefreshTask(t *testing.T) {
	fetcher := &stubFetcher{points: 75}
	svc, _ := newService(t, fetcher)
	ctx := context.Background()

	task, err := NewRefreshTask("u-9")
	require.NoError(t, err)
	require.NoError(t, svc.HandleRefreshTask(ctx, task))

	snap, err := svc.Get(ctx, "u-9", false)
	require.NoError(t, err)
	require.Equal(t, int64(75), snap.TotalPoints)
	require.Equal(t, 1, fetcher.calls)

	err = svc.HandleRefreshTask(ctx, asynq.NewTask(TaskRefresh, []byte(`{}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandlerGet(t *testing.T) {
	fetcher := &stubFetcher{points: 310}
	svc, _ := newService(t, fetcher)
	h := &Handler{Svc: svc}

	req := httptest.NewRequest(http.MethodGet, "/points/balance?refresh=true", nil)
	req = req.WithContext(common.WithSession(req.Context(), common.Session{ID: "s", UserID: "u-1"}))
	rr := httptest.NewRecorder()
	h.Get(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"data":{"total_points":310,"fetched_at":"2026-01-02T03:04:05Z","stale":false}}`, rr.Body.String())

	fetcher.err = errors.New("down")
	req = httptest.NewRequest(http.MethodGet, "/points/balance", nil)
	req = req.WithContext(common.WithSession(req.Context(), common.Session{ID: "s", UserID: "u-2"}))
	rr = httptest.NewRecorder()
	h.Get(rr, req)
	require.Equal(t, http.StatusBadGateway, rr.Code)
}
