package followup

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeJobStore keeps jobs in a map keyed by job id, mirroring the primary-key
// upsert semantics of the real storage.
type fakeJobStore struct {
	jobs       map[string]*Job
	upsertErr  error
	deleteErr  error
	upsertted  []string
	deletedIDs []string
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]*Job)}
}

func (f *fakeJobStore) UpsertJob(ctx context.Context, job *Job) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upsertted = append(f.upsertted, job.JobID)
	if existing, ok := f.jobs[job.JobID]; ok && existing.Status != JobStatusPending {
		// Job already fired: upsert is a no-op
		return nil
	}
	copied := *job
	f.jobs[job.JobID] = &copied
	return nil
}

func (f *fakeJobStore) DeleteJobs(ctx context.Context, ids []string) (int64, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	var removed int64
	for _, id := range ids {
		f.deletedIDs = append(f.deletedIDs, id)
		if _, ok := f.jobs[id]; ok {
			delete(f.jobs, id)
			removed++
		}
	}
	return removed, nil
}

func testProfile() *Profile {
	return &Profile{
		Steps: []Step{
			{Name: "first", Offset: 24 * time.Hour},
			{Name: "second", Offset: 48 * time.Hour},
			{Name: "third", Offset: 72 * time.Hour},
		},
		Variants: 3,
	}
}

func newTestScheduler(store JobStore) *Scheduler {
	s := NewScheduler(store, testProfile(), slog.New(slog.DiscardHandler))
	s.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestScheduler_Schedule(t *testing.T) {
	t.Run("one job per step with normalized phone", func(t *testing.T) {
		store := newFakeJobStore()
		s := newTestScheduler(store)

		err := s.Schedule(context.Background(), "+34 600 111 222", "Ana", 1)
		require.NoError(t, err)
		require.Len(t, store.jobs, 3)

		job, ok := store.jobs["followup:v1:34600111222:first"]
		require.True(t, ok)
		assert.Equal(t, "34600111222", job.Phone)
		assert.Equal(t, "Ana", job.ContactName)
		assert.Equal(t, 1, job.Variant)
		assert.Equal(t, JobStatusPending, job.Status)
		assert.Equal(t, s.now().Add(24*time.Hour), job.FireAt)
	})

	t.Run("scheduling twice keeps one job per step", func(t *testing.T) {
		store := newFakeJobStore()
		s := newTestScheduler(store)

		require.NoError(t, s.Schedule(context.Background(), "34600111222", "Ana", 0))
		require.NoError(t, s.Schedule(context.Background(), "34 600 111 222", "Ana", 2))

		assert.Len(t, store.jobs, 3)
		// Reschedule replaced the variant on the pending jobs
		assert.Equal(t, 2, store.jobs["followup:v1:34600111222:second"].Variant)
	})

	t.Run("invalid phone schedules nothing", func(t *testing.T) {
		store := newFakeJobStore()
		s := newTestScheduler(store)

		err := s.Schedule(context.Background(), "---", "Ana", 0)
		require.ErrorIs(t, err, ErrInvalidPhone)
		assert.Empty(t, store.jobs)
	})

	t.Run("invalid variant schedules nothing", func(t *testing.T) {
		store := newFakeJobStore()
		s := newTestScheduler(store)

		err := s.Schedule(context.Background(), "34600111222", "Ana", 3)
		require.ErrorIs(t, err, ErrInvalidVariant)
		assert.Empty(t, store.jobs)
	})

	t.Run("store failure is surfaced", func(t *testing.T) {
		store := newFakeJobStore()
		store.upsertErr = errors.New("connection refused")
		s := newTestScheduler(store)

		err := s.Schedule(context.Background(), "34600111222", "Ana", 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestScheduler_Cancel(t *testing.T) {
	t.Run("removes every step job", func(t *testing.T) {
		store := newFakeJobStore()
		s := newTestScheduler(store)

		require.NoError(t, s.Schedule(context.Background(), "+34 600 111 222", "Ana", 1))

		removed, err := s.Cancel(context.Background(), "34600111222")
		require.NoError(t, err)
		assert.Equal(t, int64(3), removed)
		assert.Empty(t, store.jobs)
	})

	t.Run("idempotent for unknown phone", func(t *testing.T) {
		store := newFakeJobStore()
		s := newTestScheduler(store)

		removed, err := s.Cancel(context.Background(), "34900333444")
		require.NoError(t, err)
		assert.Zero(t, removed)
	})

	t.Run("invalid phone rejected", func(t *testing.T) {
		store := newFakeJobStore()
		s := newTestScheduler(store)

		_, err := s.Cancel(context.Background(), "")
		require.ErrorIs(t, err, ErrInvalidPhone)
	})
}

func TestProfile_Validate(t *testing.T) {
	tests := []struct {
		name      string
		profile   Profile
		wantErr   bool
		errString string
	}{
		{
			name:    "valid profile",
			profile: *testProfile(),
			wantErr: false,
		},
		{
			name:      "no steps",
			profile:   Profile{Variants: 1},
			wantErr:   true,
			errString: "no steps",
		},
		{
			name: "duplicate step name",
			profile: Profile{
				Steps:    []Step{{Name: "first", Offset: time.Hour}, {Name: "first", Offset: 2 * time.Hour}},
				Variants: 1,
			},
			wantErr:   true,
			errString: "duplicate campaign step",
		},
		{
			name: "non-positive offset",
			profile: Profile{
				Steps:    []Step{{Name: "first", Offset: 0}},
				Variants: 1,
			},
			wantErr:   true,
			errString: "non-positive offset",
		},
		{
			name: "no variants",
			profile: Profile{
				Steps: []Step{{Name: "first", Offset: time.Hour}},
			},
			wantErr:   true,
			errString: "at least one template variant",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
