package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bher20/kwhmedio/internal/alerting"
	"github.com/bher20/kwhmedio/internal/aneel"
	"github.com/bher20/kwhmedio/internal/rates"
	"github.com/bher20/kwhmedio/internal/storage"
)

type fakeSource struct {
	mu         sync.Mutex
	flagCalls  int
	queries    []aneel.TariffQuery
	flagErr    error
	failSubCls string
}

func (f *fakeSource) FlagActivations(ctx context.Context) ([]aneel.FlagActivation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flagCalls++
	return nil, f.flagErr
}

func (f *fakeSource) ApplicableTariffs(ctx context.Context, q aneel.TariffQuery) ([]aneel.TariffRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.failSubCls != "" && q.SubClass == f.failSubCls {
		return nil, aneel.ErrUpstreamUnavailable
	}
	return nil, nil
}

func (f *fakeSource) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flagCalls, len(f.queries)
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []alerting.WarmupAlert
}

func (n *fakeNotifier) SendWarmupAlert(ctx context.Context, a alerting.WarmupAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return nil
}

// lockingStore is a memory store with a single advisory lock.
type lockingStore struct {
	*storage.MemoryStorage

	mu       sync.Mutex
	held     bool
	acquired int
	released int
}

func (s *lockingStore) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held {
		return false, nil
	}
	s.held = true
	s.acquired++
	return true, nil
}

func (s *lockingStore) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held = false
	s.released++
	return true, nil
}

func testDistributors() []rates.DistributorDescriptor {
	return []rates.DistributorDescriptor{
		{
			Key:   "copel",
			TaxID: "04368898000106",
			Profiles: []rates.Profile{
				{SubGroup: "B1", Modality: "Convencional", SubClass: "Residencial"},
				{SubGroup: "B3", Modality: "Convencional"},
			},
		},
		{
			Key:        "neoenergia-pe",
			TaxID:      "10835932000108",
			AgentAlias: "Neoenergia PE",
			Profiles:   []rates.Profile{{SubGroup: "B1", Modality: "Branca", SubClass: "Baixa renda"}},
		},
	}
}

func newTestWarmer(src rates.Source, st storage.Storage, n Notifier) *Warmer {
	w := NewWarmer(src, st, n)
	w.distributors = testDistributors
	w.tick = 5 * time.Millisecond
	return w
}

func TestNextRun(t *testing.T) {
	last := time.Date(2025, 4, 7, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, last.Add(15*time.Minute), NextRun("900", last))
	assert.Equal(t, time.Date(2025, 4, 8, 6, 0, 0, 0, time.UTC), NextRun("0 6 * * *", last))
	assert.Equal(t, time.Date(2025, 4, 7, 11, 0, 0, 0, time.UTC), NextRun("*/30 * * * *", last))
	assert.Equal(t, last.Add(time.Hour), NextRun("whenever", last))
	assert.Equal(t, last.Add(time.Hour), NextRun("-5", last))
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule("900"))
	assert.NoError(t, ValidateSchedule("0 6 * * *"))
	assert.Error(t, ValidateSchedule("0"))
	assert.Error(t, ValidateSchedule("-5"))
	assert.Error(t, ValidateSchedule("whenever"))
	assert.Error(t, ValidateSchedule(""))
}

func TestRunOnce_Success(t *testing.T) {
	src := &fakeSource{}
	st := &lockingStore{MemoryStorage: storage.NewMemory()}
	n := &fakeNotifier{}

	report, err := newTestWarmer(src, st, n).RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Skipped)
	assert.Equal(t, 4, report.Total)
	assert.Empty(t, report.Failures)
	assert.NotEmpty(t, report.RunID)

	flags, tariffs := src.counts()
	assert.Equal(t, 1, flags)
	assert.Equal(t, 3, tariffs)
	assert.Equal(t, "Neoenergia PE", src.queries[2].AgentAlias)

	job, ok := st.ScheduledJob(JobName)
	require.True(t, ok)
	assert.Equal(t, 1, job.LastSuccess)
	assert.Empty(t, job.LastError)

	assert.Equal(t, 1, st.acquired)
	assert.Equal(t, 1, st.released)
	assert.Empty(t, n.alerts)
}

func TestRunOnce_FailuresAreReportedAndAlerted(t *testing.T) {
	src := &fakeSource{flagErr: errors.New("status 503"), failSubCls: "Baixa renda"}
	st := storage.NewMemory()
	n := &fakeNotifier{}

	report, err := newTestWarmer(src, st, n).RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, aneel.ErrUpstreamUnavailable)
	assert.ErrorContains(t, err, "status 503")

	require.Len(t, report.Failures, 2)
	assert.Equal(t, "flags", report.Failures[0].Target)
	assert.Equal(t, "neoenergia-pe B1/Branca/Baixa renda", report.Failures[1].Target)

	_, tariffs := src.counts()
	assert.Equal(t, 3, tariffs, "one failing target must not stop the others")

	job, ok := st.ScheduledJob(JobName)
	require.True(t, ok)
	assert.Equal(t, 0, job.LastSuccess)
	assert.Contains(t, job.LastError, "status 503")

	require.Len(t, n.alerts, 1)
	assert.Equal(t, 4, n.alerts[0].TotalCount)
	assert.Equal(t, 2, n.alerts[0].FailedCount)
	assert.Equal(t, 2, n.alerts[0].SuccessCount)
	assert.Equal(t, report.RunID, n.alerts[0].RunID)
}

func TestRunOnce_SkipsWhenLockHeld(t *testing.T) {
	src := &fakeSource{}
	st := &lockingStore{MemoryStorage: storage.NewMemory(), held: true}

	report, err := newTestWarmer(src, st, nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)

	flags, tariffs := src.counts()
	assert.Zero(t, flags+tariffs)
	_, ok := st.ScheduledJob(JobName)
	assert.False(t, ok)
}

func TestRunOnce_WithoutStorage(t *testing.T) {
	report, err := newTestWarmer(&fakeSource{}, nil, nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, report.Total)
}

func TestRun_RunsImmediatelyAndStops(t *testing.T) {
	src := &fakeSource{}
	st := storage.NewMemory()
	w := newTestWarmer(src, st, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, "0 6 * * *") }()

	require.Eventually(t, func() bool {
		flags, _ := src.counts()
		return flags == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}

	flags, _ := src.counts()
	assert.Equal(t, 1, flags)
}

func TestRun_ScheduleSettingOverride(t *testing.T) {
	src := &fakeSource{}
	st := storage.NewMemory()
	require.NoError(t, st.SetSetting(context.Background(), ScheduleSetting, "1"))
	w := newTestWarmer(src, st, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, "0 6 * * *")

	require.Eventually(t, func() bool {
		flags, _ := src.counts()
		return flags >= 2
	}, 4*time.Second, 10*time.Millisecond)
}
