package schedulersvc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tathmini/core/evaluation"
)

type enqueued struct {
	typ    string
	evalID string
	at     time.Time
	id     string
}

type fakeEnqueuer struct {
	tasks []enqueued
	ids   map[string]struct{}
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	var p EvaluationPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return nil, err
	}
	e := enqueued{typ: task.Type(), evalID: p.EvaluationID}
	for _, opt := range opts {
		switch opt.Type() {
		case asynq.ProcessAtOpt:
			e.at = opt.Value().(time.Time)
		case asynq.TaskIDOpt:
			e.id = opt.Value().(string)
		}
	}
	if f.ids == nil {
		f.ids = make(map[string]struct{})
	}
	if _, ok := f.ids[e.id]; ok {
		return nil, asynq.ErrTaskIDConflict
	}
	f.ids[e.id] = struct{}{}
	f.tasks = append(f.tasks, e)
	return &asynq.TaskInfo{ID: e.id, Type: e.typ}, nil
}

func (f *fakeEnqueuer) ofType(typ string) []enqueued {
	var res []enqueued
	for _, t := range f.tasks {
		if t.typ == typ {
			res = append(res, t)
		}
	}
	return res
}

func newTestScheduler(now time.Time) (*Scheduler, *fakeEnqueuer) {
	fake := new(fakeEnqueuer)
	return &Scheduler{client: fake, now: func() time.Time { return now }}, fake
}

func TestScheduler_Schedule(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(days int) *time.Time {
		t := now.AddDate(0, 0, days)
		return &t
	}

	t.Run("sync at every future date", func(t *testing.T) {
		s, fake := newTestScheduler(now)
		e := evaluation.Evaluation{
			ID:        "e1",
			State:     evaluation.StateInQueue,
			StartDate: *at(1),
			DueDate:   at(8),
			StopDate:  at(8),
			ViewDate:  at(10),
		}
		require.NoError(t, s.Schedule(context.Background(), e))

		syncs := fake.ofType(TypeSyncState)
		if assert.Len(t, syncs, 3) {
			assert.Equal(t, *at(1), syncs[0].at)
			assert.Equal(t, *at(8), syncs[1].at)
			assert.Equal(t, *at(10), syncs[2].at)
			assert.Equal(t, "e1", syncs[0].evalID)
		}
		assert.Empty(t, fake.ofType(TypeReminder))
	})

	t.Run("past dates are skipped", func(t *testing.T) {
		s, fake := newTestScheduler(now)
		e := evaluation.Evaluation{
			ID:        "e2",
			State:     evaluation.StateActive,
			StartDate: *at(-2),
			DueDate:   at(2),
		}
		require.NoError(t, s.Schedule(context.Background(), e))

		syncs := fake.ofType(TypeSyncState)
		if assert.Len(t, syncs, 1) {
			assert.Equal(t, *at(2), syncs[0].at)
		}
	})

	t.Run("stored inqueue past its start syncs now", func(t *testing.T) {
		s, fake := newTestScheduler(now)
		e := evaluation.Evaluation{ID: "e3", State: evaluation.StateInQueue, StartDate: now}
		require.NoError(t, s.Schedule(context.Background(), e))

		syncs := fake.ofType(TypeSyncState)
		if assert.Len(t, syncs, 1) {
			assert.Equal(t, now, syncs[0].at)
		}
	})

	t.Run("reminders before the due date", func(t *testing.T) {
		s, fake := newTestScheduler(now)
		e := evaluation.Evaluation{
			ID:           "e4",
			State:        evaluation.StateInQueue,
			StartDate:    *at(1),
			DueDate:      at(10),
			ReminderDays: 3,
		}
		require.NoError(t, s.Schedule(context.Background(), e))

		reminders := fake.ofType(TypeReminder)
		if assert.Len(t, reminders, 2) {
			assert.Equal(t, *at(4), reminders[0].at)
			assert.Equal(t, *at(7), reminders[1].at)
		}
	})

	t.Run("open ended reminders are bounded", func(t *testing.T) {
		s, fake := newTestScheduler(now)
		e := evaluation.Evaluation{ID: "e5", State: evaluation.StateActive, StartDate: *at(-1), ReminderDays: 1}
		require.NoError(t, s.Schedule(context.Background(), e))
		assert.Len(t, fake.ofType(TypeReminder), maxOpenReminders)
	})

	t.Run("rescheduling is idempotent", func(t *testing.T) {
		s, fake := newTestScheduler(now)
		e := evaluation.Evaluation{ID: "e6", State: evaluation.StateInQueue, StartDate: *at(1), DueDate: at(5), ReminderDays: 2}
		require.NoError(t, s.Schedule(context.Background(), e))
		count := len(fake.tasks)
		require.NoError(t, s.Schedule(context.Background(), e))
		assert.Len(t, fake.tasks, count)
	})

	t.Run("partial evaluations are not scheduled", func(t *testing.T) {
		s, fake := newTestScheduler(now)
		e := evaluation.Evaluation{ID: "e7", State: evaluation.StatePartial, StartDate: *at(1)}
		require.NoError(t, s.Schedule(context.Background(), e))
		assert.Empty(t, fake.tasks)
	})
}

func TestParsePayload(t *testing.T) {
	task, err := newEvaluationTask(TypeReminder, "e1")
	require.NoError(t, err)
	p, err := parsePayload(task)
	require.NoError(t, err)
	assert.Equal(t, "e1", p.EvaluationID)

	_, err = parsePayload(asynq.NewTask(TypeReminder, []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	_, err = parsePayload(asynq.NewTask(TypeReminder, []byte("{}")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}
