package evaluation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/evaluation"
	"github.com/trezcool/tathmini/core/notification"
	"github.com/trezcool/tathmini/core/response"
	"github.com/trezcool/tathmini/core/template"
	"github.com/trezcool/tathmini/core/user"
	"github.com/trezcool/tathmini/tests"
)

const day = 24 * time.Hour

type recordingScheduler struct {
	scheduled []evaluation.Evaluation
}

func (s *recordingScheduler) Schedule(_ context.Context, e evaluation.Evaluation) error {
	s.scheduled = append(s.scheduled, e)
	return nil
}

func strPtr(s string) *string { return &s }

func TestService_Create(t *testing.T) {
	sched := new(recordingScheduler)
	env := testutil.NewEnv(sched)
	ctx := context.Background()
	instr := env.Instructor(t, "instr")
	other := env.Instructor(t, "other")
	stud := env.Student(t, "stud")

	tmpl, _ := env.Template(t, instr, "Course feedback")
	empty, err := env.Templates.Create(ctx, instr, template.NewTemplate{Title: "Empty", Type: template.TypeStandard, Sharing: core.SharingPrivate})
	require.NoError(t, err)

	tests := []struct {
		name    string
		actor   user.User
		ne      evaluation.NewEvaluation
		wantErr func(error) bool
	}{
		{
			name:    "student",
			actor:   stud,
			ne:      evaluation.NewEvaluation{Title: "Midterm", TemplateID: tmpl.ID},
			wantErr: core.IsPermissionError,
		},
		{
			name:    "missing template",
			actor:   instr,
			ne:      evaluation.NewEvaluation{Title: "Midterm", TemplateID: "missing"},
			wantErr: core.IsValidationError,
		},
		{
			name:    "empty template",
			actor:   instr,
			ne:      evaluation.NewEvaluation{Title: "Midterm", TemplateID: empty.ID},
			wantErr: core.IsValidationError,
		},
		{
			name:    "private template of someone else",
			actor:   other,
			ne:      evaluation.NewEvaluation{Title: "Midterm", TemplateID: tmpl.ID},
			wantErr: core.IsPermissionError,
		},
		{
			name:    "due before start",
			actor:   instr,
			ne:      evaluation.NewEvaluation{Title: "Midterm", TemplateID: tmpl.ID, StartDate: core.Now().Add(2 * day), DueDate: testutil.TimePtr(day)},
			wantErr: core.IsValidationError,
		},
		{
			name:    "stop without due",
			actor:   instr,
			ne:      evaluation.NewEvaluation{Title: "Midterm", TemplateID: tmpl.ID, StopDate: testutil.TimePtr(day)},
			wantErr: core.IsValidationError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Evals.Create(ctx, tt.actor, tt.ne)
			assert.True(t, tt.wantErr(err), "got %v", err)
		})
	}
	assert.Empty(t, sched.scheduled)

	t.Run("starts now", func(t *testing.T) {
		e, err := env.Evals.Create(ctx, instr, evaluation.NewEvaluation{
			Title:      "Midterm",
			TemplateID: tmpl.ID,
			StartDate:  core.Now().Add(-day),
			DueDate:    testutil.TimePtr(7 * day),
		})
		require.NoError(t, err)
		assert.Equal(t, evaluation.StateActive, e.State)
		assert.Equal(t, instr.ID, e.OwnerID)
		assert.True(t, e.InstructorsViewResults)
		assert.Equal(t, env.Conf.Evaluation.ReminderDays, e.ReminderDays)
		assert.Equal(t, e.DueDate, e.StopDate, "stop date defaults to the due date")
		assert.Equal(t, e.StopDate, e.ViewDate, "view date defaults to the stop date")
		assert.False(t, e.StartDate.Before(e.CreatedAt), "a past start date starts now")

		// stored as queued until the state sync opens it
		require.NotEmpty(t, sched.scheduled)
		assert.Equal(t, evaluation.StateInQueue, sched.scheduled[len(sched.scheduled)-1].State)

		locked, err := env.Templates.GetByID(ctx, tmpl.ID)
		require.NoError(t, err)
		assert.True(t, locked.Locked)
	})

	t.Run("partial", func(t *testing.T) {
		tmpl2, _ := env.Template(t, instr, "Draft feedback")
		count := len(sched.scheduled)
		e, err := env.Evals.Create(ctx, instr, evaluation.NewEvaluation{Title: "Draft", TemplateID: tmpl2.ID, Partial: true})
		require.NoError(t, err)
		assert.Equal(t, evaluation.StatePartial, e.State)
		assert.Len(t, sched.scheduled, count)

		got, err := env.Templates.GetByID(ctx, tmpl2.ID)
		require.NoError(t, err)
		assert.False(t, got.Locked)

		// publishing starts the lifecycle
		e, err = env.Evals.Update(ctx, instr, e.ID, evaluation.UpdateEvaluation{Publish: true})
		require.NoError(t, err)
		assert.Equal(t, evaluation.StateActive, e.State)
		assert.Len(t, sched.scheduled, count+1)
		got, err = env.Templates.GetByID(ctx, tmpl2.ID)
		require.NoError(t, err)
		assert.True(t, got.Locked)
	})
}


func TestService_EmailTemplates(t *testing.T) {
	env := testutil.NewEnv(nil)
	ctx := context.Background()
	admin := env.Admin(t, "admin")
	instr := env.Instructor(t, "instr")
	other := env.Instructor(t, "other")
	tmpl, _ := env.Template(t, instr, "Course feedback")

	newEmail := func(owner user.User, typ string, isDefault bool) string {
		et, err := env.Notifications.Create(ctx, owner, notification.NewEmailTemplate{
			Type:      typ,
			Subject:   "About {{.EvalTitle}}",
			Message:   "Dear {{.UserName}}",
			IsDefault: isDefault,
		})
		require.NoError(t, err)
		return et.ID
	}
	ownAvailable := newEmail(instr, notification.TypeAvailable, false)
	ownReminder := newEmail(instr, notification.TypeReminder, false)
	othersReminder := newEmail(other, notification.TypeReminder, false)
	defaultReminder := newEmail(admin, notification.TypeReminder, true)

	tests := []struct {
		name      string
		available string
		reminder  string
		wantErr   func(error) bool
	}{
		{name: "unknown template", reminder: "does-not-exist", wantErr: core.IsValidationError},
		{name: "wrong type", available: ownReminder, wantErr: core.IsValidationError},
		{name: "private template of someone else", available: ownAvailable, reminder: othersReminder, wantErr: core.IsPermissionError},
		{name: "own templates", available: ownAvailable, reminder: ownReminder},
		{name: "default template of someone else", reminder: defaultReminder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := env.Evals.Create(ctx, instr, evaluation.NewEvaluation{
				Title:                    "Midterm",
				TemplateID:               tmpl.ID,
				DueDate:                  testutil.TimePtr(day),
				AvailableEmailTemplateID: tt.available,
				ReminderEmailTemplateID:  tt.reminder,
			})
			if tt.wantErr != nil {
				assert.True(t, tt.wantErr(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.available, e.AvailableEmailTemplateID)
			assert.Equal(t, tt.reminder, e.ReminderEmailTemplateID)
		})
	}

	t.Run("a rejected reference does not block the owner", func(t *testing.T) {
		assert.NoError(t, env.Notifications.Delete(ctx, other, othersReminder))
	})

	t.Run("update", func(t *testing.T) {
		e, err := env.Evals.Create(ctx, instr, evaluation.NewEvaluation{Title: "Final", TemplateID: tmpl.ID, DueDate: testutil.TimePtr(day)})
		require.NoError(t, err)

		_, err = env.Evals.Update(ctx, instr, e.ID, evaluation.UpdateEvaluation{ReminderEmailTemplateID: strPtr(ownAvailable)})
		assert.True(t, core.IsValidationError(err), "got %v", err)

		hidden := newEmail(other, notification.TypeAvailable, false)
		_, err = env.Evals.Update(ctx, instr, e.ID, evaluation.UpdateEvaluation{AvailableEmailTemplateID: strPtr(hidden)})
		assert.True(t, core.IsPermissionError(err), "got %v", err)

		e, err = env.Evals.Update(ctx, instr, e.ID, evaluation.UpdateEvaluation{ReminderEmailTemplateID: strPtr(ownReminder)})
		require.NoError(t, err)
		assert.Equal(t, ownReminder, e.ReminderEmailTemplateID)
	})
}
func TestService_Update(t *testing.T) {
	env := testutil.NewEnv(nil)
	ctx := context.Background()
	instr := env.Instructor(t, "instr")
	other := env.Instructor(t, "other")
	tmpl, _ := env.Template(t, instr, "Course feedback")
	tmpl2, _ := env.Template(t, instr, "Other feedback")

	t.Run("permission", func(t *testing.T) {
		e := env.Evaluation(t, instr, tmpl, core.Now().Add(day), nil, nil, nil)
		_, err := env.Evals.Update(ctx, other, e.ID, evaluation.UpdateEvaluation{Title: strPtr("Mine")})
		assert.True(t, core.IsPermissionError(err))
	})

	t.Run("queued evaluation changes template", func(t *testing.T) {
		e, err := env.Evals.Create(ctx, instr, evaluation.NewEvaluation{Title: "Final", TemplateID: tmpl2.ID, StartDate: core.Now().Add(day)})
		require.NoError(t, err)
		assert.Equal(t, evaluation.StateInQueue, e.State)

		e, err = env.Evals.Update(ctx, instr, e.ID, evaluation.UpdateEvaluation{
			Title:      strPtr("Final exam"),
			StartDate:  testutil.TimePtr(2 * day),
			TemplateID: &tmpl.ID,
		})
		require.NoError(t, err)
		assert.Equal(t, "Final exam", e.Title)
		assert.Equal(t, tmpl.ID, e.TemplateID)

		released, err := env.Templates.GetByID(ctx, tmpl2.ID)
		require.NoError(t, err)
		assert.False(t, released.Locked, "unused templates are unlocked")
	})

	t.Run("open evaluation keeps its start", func(t *testing.T) {
		e := env.Evaluation(t, instr, tmpl, core.Now().Add(-day), testutil.TimePtr(day), nil, nil)
		_, err := env.Evals.Update(ctx, instr, e.ID, evaluation.UpdateEvaluation{StartDate: testutil.TimePtr(-2 * day)})
		assert.True(t, core.IsStateError(err))

		updated, err := env.Evals.Update(ctx, instr, e.ID, evaluation.UpdateEvaluation{DueDate: testutil.TimePtr(3 * day)})
		require.NoError(t, err)
		assert.Equal(t, evaluation.StateActive, updated.State)
	})

	t.Run("closed evaluation only changes results settings", func(t *testing.T) {
		e := env.Evaluation(t, instr, tmpl, core.Now().Add(-3*day), testutil.TimePtr(-2*day), testutil.TimePtr(-2*day), testutil.TimePtr(day))
		_, err := env.Evals.Update(ctx, instr, e.ID, evaluation.UpdateEvaluation{Title: strPtr("Renamed")})
		assert.True(t, core.IsStateError(err))

		visible := false
		updated, err := env.Evals.Update(ctx, instr, e.ID, evaluation.UpdateEvaluation{
			ViewDate:            testutil.TimePtr(-time.Hour),
			StudentsViewResults: &visible,
		})
		require.NoError(t, err)
		assert.Equal(t, evaluation.StateViewable, updated.State)
		assert.False(t, updated.StudentsViewResults)
	})

	t.Run("bad dates", func(t *testing.T) {
		e := env.Evaluation(t, instr, tmpl, core.Now().Add(day), nil, nil, nil)
		_, err := env.Evals.Update(ctx, instr, e.ID, evaluation.UpdateEvaluation{
			DueDate:  testutil.TimePtr(3 * day),
			StopDate: testutil.TimePtr(2 * day),
		})
		assert.True(t, core.IsValidationError(err))
	})
}

func TestService_Delete(t *testing.T) {
	env := testutil.NewEnv(nil)
	ctx := context.Background()
	instr := env.Instructor(t, "instr")
	stud := env.Student(t, "stud")
	grp := env.Group(t, "Physics", []user.User{instr}, []user.User{stud})
	tmpl, _ := env.Template(t, instr, "Course feedback")

	started := env.Evaluation(t, instr, tmpl, core.Now().Add(-day), nil, nil, nil, grp)
	_, err := env.ResponseRepo.CreateResponse(ctx, response.Response{
		EvaluationID: started.ID,
		GroupID:      grp.ID,
		OwnerID:      stud.ID,
		StartTime:    core.Now(),
	})
	require.NoError(t, err)
	assert.True(t, core.IsStateError(env.Evals.Delete(ctx, instr, started.ID)))

	queued := env.Evaluation(t, instr, tmpl, core.Now().Add(day), nil, nil, nil, grp)
	require.NoError(t, env.Evals.Delete(ctx, instr, queued.ID))
	_, err = env.Evals.GetByID(ctx, queued.ID)
	assert.Equal(t, evaluation.ErrNotFound, err)
	_, err = env.Evals.GetAssignGroup(ctx, queued.ID, grp.ID)
	assert.True(t, core.IsNotFound(err))

	got, err := env.Templates.GetByID(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.True(t, got.Locked, "still used by the started evaluation")
}

func TestService_Close(t *testing.T) {
	env := testutil.NewEnv(nil)
	ctx := context.Background()
	instr := env.Instructor(t, "instr")
	tmpl, _ := env.Template(t, instr, "Course feedback")

	queued := env.Evaluation(t, instr, tmpl, core.Now().Add(day), nil, nil, nil)
	_, err := env.Evals.Close(ctx, instr, queued.ID)
	assert.True(t, core.IsStateError(err))

	open := env.Evaluation(t, instr, tmpl, core.Now().Add(-day), testutil.TimePtr(day), nil, testutil.TimePtr(2*day))
	closed, err := env.Evals.Close(ctx, instr, open.ID)
	require.NoError(t, err)
	assert.Equal(t, evaluation.StateClosed, closed.State)
	assert.False(t, closed.DueDate.After(core.Now()))

	open = env.Evaluation(t, instr, tmpl, core.Now().Add(-day), nil, nil, nil)
	closed, err = env.Evals.Close(ctx, instr, open.ID)
	require.NoError(t, err)
	assert.Equal(t, evaluation.StateViewable, closed.State, "no view date: results are viewable right away")
}

func TestService_SyncState(t *testing.T) {
	env := testutil.NewEnv(nil)
	ctx := context.Background()
	instr := env.Instructor(t, "instr")
	tmpl, _ := env.Template(t, instr, "Course feedback")

	e := env.Evaluation(t, instr, tmpl, core.Now().Add(time.Hour), nil, nil, nil)
	prev, next, err := env.Evals.SyncState(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, evaluation.StateInQueue, prev)
	assert.Equal(t, evaluation.StateInQueue, next)

	core.NowFunc = func() time.Time { return time.Now().Add(2 * time.Hour) }
	defer func() { core.NowFunc = time.Now }()

	prev, next, err = env.Evals.SyncState(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, evaluation.StateInQueue, prev)
	assert.Equal(t, evaluation.StateActive, next)

	stored, err := env.EvalRepo.GetEvaluationByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, evaluation.StateActive, stored.State)
	assert.True(t, stored.Locked)

	_, _, err = env.Evals.SyncState(ctx, "missing")
	assert.Equal(t, evaluation.ErrNotFound, err)
}

func TestService_AssignGroup(t *testing.T) {
	env := testutil.NewEnv(nil)
	ctx := context.Background()
	admin := env.Admin(t, "admin")
	instr := env.Instructor(t, "instr")
	stud := env.Student(t, "stud")
	own := env.Group(t, "Physics", []user.User{instr}, []user.User{stud})
	foreign := env.Group(t, "Chemistry", nil, nil)
	tmpl, _ := env.Template(t, instr, "Course feedback")
	e := env.Evaluation(t, instr, tmpl, core.Now().Add(day), nil, nil, nil)

	_, err := env.Evals.AssignGroup(ctx, instr, e.ID, evaluation.NewAssignGroup{GroupID: foreign.ID})
	assert.True(t, core.IsPermissionError(err))
	_, err = env.Evals.AssignGroup(ctx, instr, e.ID, evaluation.NewAssignGroup{GroupID: "missing"})
	assert.True(t, core.IsValidationError(err))

	ag, err := env.Evals.AssignGroup(ctx, instr, e.ID, evaluation.NewAssignGroup{GroupID: own.ID})
	require.NoError(t, err)
	assert.True(t, ag.InstructorApproval)
	assert.True(t, ag.InstructorsViewResults)

	_, err = env.Evals.AssignGroup(ctx, instr, e.ID, evaluation.NewAssignGroup{GroupID: own.ID})
	assert.True(t, core.IsStateError(err))

	approval := false
	_, err = env.Evals.AssignGroup(ctx, admin, e.ID, evaluation.NewAssignGroup{GroupID: foreign.ID, InstructorApproval: &approval})
	require.NoError(t, err)

	ags, err := env.Evals.ListAssignGroups(ctx, e.ID)
	require.NoError(t, err)
	assert.Len(t, ags, 2)

	approval = true
	updated, err := env.Evals.UpdateAssignGroup(ctx, instr, ag.ID, evaluation.UpdateAssignGroup{InstructorApproval: &approval})
	require.NoError(t, err)
	assert.True(t, updated.InstructorApproval)

	require.NoError(t, env.Evals.RemoveAssignGroup(ctx, instr, ag.ID))
	_, err = env.Evals.GetAssignGroup(ctx, e.ID, own.ID)
	assert.Equal(t, evaluation.ErrAssignGroupNotFound, err)

	closed := env.Evaluation(t, instr, tmpl, core.Now().Add(-3*day), testutil.TimePtr(-day), nil, nil)
	_, err = env.Evals.AssignGroup(ctx, instr, closed.ID, evaluation.NewAssignGroup{GroupID: own.ID})
	assert.True(t, core.IsStateError(err))
}

func TestService_ListTakeable(t *testing.T) {
	env := testutil.NewEnv(nil)
	ctx := context.Background()
	instr := env.Instructor(t, "instr")
	stud := env.Student(t, "stud")
	grp := env.Group(t, "Physics", []user.User{instr}, []user.User{stud})
	tmpl, _ := env.Template(t, instr, "Course feedback")

	open := env.Evaluation(t, instr, tmpl, core.Now().Add(-day), testutil.TimePtr(day), nil, nil, grp)
	env.Evaluation(t, instr, tmpl, core.Now().Add(day), nil, nil, nil, grp)
	unapproved := env.Evaluation(t, instr, tmpl, core.Now().Add(-day), nil, nil, nil)
	_, err := env.EvalRepo.CreateAssignGroup(ctx, evaluation.AssignGroup{EvaluationID: unapproved.ID, GroupID: grp.ID})
	require.NoError(t, err)

	assignments, err := env.Evals.ListTakeable(ctx, stud)
	require.NoError(t, err)
	if assert.Len(t, assignments, 1) {
		assert.Equal(t, open.ID, assignments[0].Evaluation.ID)
		assert.Equal(t, grp.ID, assignments[0].Group.ID)
		assert.Equal(t, evaluation.StateActive, assignments[0].Evaluation.State)
	}

	assignments, err = env.Evals.ListTakeable(ctx, instr)
	require.NoError(t, err)
	assert.Empty(t, assignments)
}

func TestService_Query(t *testing.T) {
	env := testutil.NewEnv(nil)
	ctx := context.Background()
	admin := env.Admin(t, "admin")
	instr := env.Instructor(t, "instr")
	other := env.Instructor(t, "other")
	tmpl, _ := env.Template(t, instr, "Course feedback")
	otherTmpl, _ := env.Template(t, other, "Other feedback")

	env.Evaluation(t, instr, tmpl, core.Now().Add(-day), nil, nil, nil)
	env.Evaluation(t, instr, tmpl, core.Now().Add(day), nil, nil, nil)
	env.Evaluation(t, other, otherTmpl, core.Now().Add(day), nil, nil, nil)

	evals, err := env.Evals.Query(ctx, admin, nil, nil)
	require.NoError(t, err)
	assert.Len(t, evals, 3)

	evals, err = env.Evals.Query(ctx, instr, nil, nil)
	require.NoError(t, err)
	assert.Len(t, evals, 2)

	evals, err = env.Evals.Query(ctx, instr, &evaluation.QueryFilter{State: evaluation.StateActive}, nil)
	require.NoError(t, err)
	assert.Len(t, evals, 1)

	evals, err = env.Evals.Query(ctx, admin, &evaluation.QueryFilter{TemplateID: otherTmpl.ID}, nil)
	require.NoError(t, err)
	assert.Len(t, evals, 1)

	count, err := env.Evals.CountByTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
