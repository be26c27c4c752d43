package analytics

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/unwind/pkg/usage"
)

type fakeSnapshotStore struct {
	*fakeUsage

	mu        sync.Mutex
	users     []int64
	written   map[int64]Snapshot
	failFor   int64
	usersErr  error
	usersFrom usage.Date
}

func newFakeSnapshotStore() *fakeSnapshotStore {
	return &fakeSnapshotStore{
		fakeUsage: newFakeUsage(),
		written:   make(map[int64]Snapshot),
	}
}

func (f *fakeSnapshotStore) ActiveUsers(_ context.Context, from, _ usage.Date) ([]int64, error) {
	f.usersFrom = from
	return f.users, f.usersErr
}

func (f *fakeSnapshotStore) UpsertSnapshot(_ context.Context, s *Snapshot) error {
	if s.UserID == f.failFor {
		return errors.New("constraint violation")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written[s.UserID] = *s
	return nil
}

func TestSnapshotJobRun(t *testing.T) {
	store := newFakeSnapshotStore()
	date := usage.NewDate(2026, 3, 15)

	for i := 0; i < 7; i++ {
		store.add(1, usage.Entry{AppName: "Instagram", MinutesSpent: 300, Date: date.AddDays(-i)})
	}
	store.add(2, usage.Entry{AppName: "YouTube", MinutesSpent: 400, Date: date.AddDays(-2)})
	store.add(3, usage.Entry{AppName: "Reddit", MinutesSpent: 20, Date: date.AddDays(-40)})
	store.users = []int64{1, 2, 3}

	job := NewSnapshotJob(nil, store, 2, nil)
	job.clock = func() time.Time { return time.Date(2026, 3, 16, 0, 5, 0, 0, time.UTC) }

	result, err := job.Run(context.Background(), date)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Users)
	assert.Equal(t, 3, result.Written)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, "2026-01-15", store.usersFrom.String())

	high := store.written[1]
	assert.Equal(t, 80.0, high.Value)
	assert.Equal(t, RiskHigh, high.Level)
	assert.Equal(t, 2100.0, high.WeeklyTotalMinutes)
	assert.Equal(t, 300.0, high.AverageDailyMinutes)
	assert.True(t, high.Date.Equal(date))
	assert.Equal(t, 2026, high.CreatedAt.Year())

	assert.Equal(t, RiskModerate, store.written[2].Level)

	// active in the history window but not this week
	assert.Equal(t, RiskLow, store.written[3].Level)
	assert.Equal(t, 0.0, store.written[3].Value)
}

func TestSnapshotJobContinuesPastFailures(t *testing.T) {
	store := newFakeSnapshotStore()
	date := usage.NewDate(2026, 3, 15)
	for _, id := range []int64{1, 2, 3, 4} {
		store.add(id, usage.Entry{AppName: "A", MinutesSpent: 10, Date: date})
	}
	store.users = []int64{1, 2, 3, 4}
	store.failFor = 3

	result, err := NewSnapshotJob(nil, store, 0, nil).Run(context.Background(), date)
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 3, result.Written)
	assert.Equal(t, 1, result.Failed)

	var ids []int64
	for id := range store.written {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	assert.Equal(t, []int64{1, 2, 4}, ids)
}

func TestSnapshotJobListError(t *testing.T) {
	store := newFakeSnapshotStore()
	store.usersErr = errors.New("db down")

	_, err := NewSnapshotJob(nil, store, 1, nil).Run(context.Background(), usage.NewDate(2026, 3, 15))
	assert.Error(t, err)
}

func TestSnapshotJobCancelled(t *testing.T) {
	store := newFakeSnapshotStore()
	store.users = []int64{1, 2}
	store.gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	close(store.gate)

	result, err := NewSnapshotJob(nil, store, 1, nil).Run(ctx, usage.NewDate(2026, 3, 15))
	require.Error(t, err)
	assert.Equal(t, 0, result.Failed)
}
