package schedulersvc_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/evaluation"
	"github.com/trezcool/tathmini/core/group"
	"github.com/trezcool/tathmini/core/user"
	"github.com/trezcool/tathmini/services/email"
	"github.com/trezcool/tathmini/services/scheduler"
	"github.com/trezcool/tathmini/tests"
)

const day = 24 * time.Hour

type handlersFixture struct {
	env   *testutil.Env
	h     *schedulersvc.Handlers
	instr user.User
	stud  user.User
	grp   group.Group
}

func newHandlersFixture(t *testing.T) handlersFixture {
	env := testutil.NewEnv(nil)
	f := handlersFixture{env: env, instr: env.Instructor(t, "instr"), stud: env.Student(t, "stud")}
	f.grp = env.Group(t, "Physics", []user.User{f.instr}, []user.User{f.stud})
	f.h = &schedulersvc.Handlers{Evals: env.Evals, Notifications: env.Notifications, Logger: env.Logger}
	return f
}

// evaluation stores an evaluation with the given start and due dates, in the given state.
func (f handlersFixture) evaluation(t *testing.T, start time.Time, due *time.Time, state string) evaluation.Evaluation {
	tmpl, _ := f.env.Template(t, f.instr, "Course feedback "+state)
	e := f.env.Evaluation(t, f.instr, tmpl, start, due, nil, nil, f.grp)
	e.State = state
	e, err := f.env.EvalRepo.UpdateEvaluation(context.Background(), e)
	require.NoError(t, err)
	return e
}

func newTask(t *testing.T, typ, evalID string) *asynq.Task {
	payload, err := json.Marshal(schedulersvc.EvaluationPayload{EvaluationID: evalID})
	require.NoError(t, err)
	return asynq.NewTask(typ, payload)
}

func TestHandlers_HandleSyncState(t *testing.T) {
	ctx := context.Background()

	t.Run("opening notifies once", func(t *testing.T) {
		f := newHandlersFixture(t)
		e := f.evaluation(t, core.Now().Add(-time.Minute), testutil.TimePtr(day), evaluation.StateInQueue)
		task := newTask(t, schedulersvc.TypeSyncState, e.ID)

		require.NoError(t, f.h.HandleSyncState(ctx, task))
		stored, err := f.env.EvalRepo.GetEvaluationByID(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, evaluation.StateActive, stored.State)
		assert.True(t, stored.Locked)
		assert.Len(t, emailsvc.SentTo(f.stud.Email), 1)

		require.NoError(t, f.h.HandleSyncState(ctx, task))
		assert.Len(t, emailsvc.SentTo(f.stud.Email), 1)
	})

	t.Run("closing does not notify", func(t *testing.T) {
		f := newHandlersFixture(t)
		e := f.evaluation(t, core.Now().Add(-2*day), testutil.TimePtr(-time.Minute), evaluation.StateActive)

		require.NoError(t, f.h.HandleSyncState(ctx, newTask(t, schedulersvc.TypeSyncState, e.ID)))
		stored, err := f.env.EvalRepo.GetEvaluationByID(ctx, e.ID)
		require.NoError(t, err)
		assert.True(t, evaluation.IsClosed(stored.State), "got %s", stored.State)
		assert.Empty(t, emailsvc.SentMessages)
	})

	t.Run("unknown evaluation", func(t *testing.T) {
		f := newHandlersFixture(t)
		assert.NoError(t, f.h.HandleSyncState(ctx, newTask(t, schedulersvc.TypeSyncState, "missing")))
	})

	t.Run("bad payload", func(t *testing.T) {
		f := newHandlersFixture(t)
		err := f.h.HandleSyncState(ctx, asynq.NewTask(schedulersvc.TypeSyncState, []byte("{")))
		assert.Error(t, err)
	})
}

func TestHandlers_HandleReminder(t *testing.T) {
	ctx := context.Background()

	t.Run("open evaluation", func(t *testing.T) {
		f := newHandlersFixture(t)
		e := f.evaluation(t, core.Now().Add(-day), testutil.TimePtr(day), evaluation.StateActive)

		require.NoError(t, f.h.HandleReminder(ctx, newTask(t, schedulersvc.TypeReminder, e.ID)))
		msgs := emailsvc.SentTo(f.stud.Email)
		if assert.Len(t, msgs, 1) {
			assert.Contains(t, msgs[0].Subject, "Reminder")
		}
	})

	t.Run("reminders disabled", func(t *testing.T) {
		f := newHandlersFixture(t)
		e := f.evaluation(t, core.Now().Add(-day), testutil.TimePtr(day), evaluation.StateActive)
		e.ReminderDays = 0
		_, err := f.env.EvalRepo.UpdateEvaluation(ctx, e)
		require.NoError(t, err)

		require.NoError(t, f.h.HandleReminder(ctx, newTask(t, schedulersvc.TypeReminder, e.ID)))
		assert.Empty(t, emailsvc.SentMessages)
	})

	t.Run("not open", func(t *testing.T) {
		f := newHandlersFixture(t)
		e := f.evaluation(t, core.Now().Add(day), nil, evaluation.StateInQueue)

		require.NoError(t, f.h.HandleReminder(ctx, newTask(t, schedulersvc.TypeReminder, e.ID)))
		assert.Empty(t, emailsvc.SentMessages)
	})

	t.Run("unknown evaluation", func(t *testing.T) {
		f := newHandlersFixture(t)
		assert.NoError(t, f.h.HandleReminder(ctx, newTask(t, schedulersvc.TypeReminder, "missing")))
	})
}
