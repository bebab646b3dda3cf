package results_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/evaluation"
	"github.com/trezcool/tathmini/core/group"
	"github.com/trezcool/tathmini/core/response"
	"github.com/trezcool/tathmini/core/template"
	"github.com/trezcool/tathmini/core/user"
	"github.com/trezcool/tathmini/tests"
)

const day = 24 * time.Hour

type fixture struct {
	env      *testutil.Env
	instr    user.User
	studs    []user.User
	outsider user.User
	grp      group.Group
	tmpl     template.Template
	tis      []template.TemplateItem
	eval     evaluation.Evaluation
}

// newFixture sets up a viewable evaluation answered by two of three students, plus a draft.
func newFixture(t *testing.T) fixture {
	env := testutil.NewEnv(nil)
	f := fixture{env: env, instr: env.Instructor(t, "instr"), outsider: env.Student(t, "outsider")}
	f.studs = []user.User{env.Student(t, "stud1"), env.Student(t, "stud2"), env.Student(t, "stud3")}
	f.grp = env.Group(t, "Physics", []user.User{f.instr}, f.studs)
	f.tmpl, f.tis = env.Template(t, f.instr, "Course feedback")
	f.eval = env.Evaluation(t, f.instr, f.tmpl, core.Now().Add(-3*day), testutil.TimePtr(-2*day), nil, nil, f.grp)

	end := core.Now().Add(-2*day - time.Hour)
	f.respond(t, f.studs[0], &end,
		response.Answer{TemplateItemID: f.tis[1].ID, Numeric: testutil.IntPtr(2)},
		response.Answer{TemplateItemID: f.tis[2].ID, Multi: []int{0, 2}},
		response.Answer{TemplateItemID: f.tis[3].ID, Text: "Great course"},
	)
	f.respond(t, f.studs[1], &end,
		response.Answer{TemplateItemID: f.tis[1].ID, Numeric: testutil.IntPtr(response.NA)},
		response.Answer{TemplateItemID: f.tis[2].ID, Multi: []int{2}},
	)
	f.respond(t, f.studs[2], nil,
		response.Answer{TemplateItemID: f.tis[1].ID, Numeric: testutil.IntPtr(0)},
	)
	return f
}

func (f fixture) respond(t *testing.T, usr user.User, end *time.Time, answers ...response.Answer) {
	_, err := f.env.ResponseRepo.CreateResponse(context.Background(), response.Response{
		EvaluationID: f.eval.ID,
		GroupID:      f.grp.ID,
		OwnerID:      usr.ID,
		StartTime:    core.Now().Add(-3 * day),
		EndTime:      end,
		Answers:      answers,
	})
	require.NoError(t, err)
}

func TestService_Get(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.env.Results.Get(ctx, f.instr, f.eval.ID, "")
	require.NoError(t, err)
	assert.Equal(t, f.eval.ID, res.EvaluationID)
	assert.Equal(t, 2, res.Responses)
	assert.Equal(t, 3, res.Enrolled)
	assert.Equal(t, 0.667, res.ResponseRate)
	require.Len(t, res.Items, 3, "headers are skipped")

	scaled := res.Items[0]
	assert.Equal(t, template.ClassScaled, scaled.Classification)
	assert.Equal(t, 1, scaled.Answers)
	assert.Equal(t, 1, scaled.NACount)
	assert.Equal(t, []int{0, 0, 1}, scaled.OptionCounts)
	if assert.NotNil(t, scaled.Mean) {
		assert.Equal(t, 2.0, *scaled.Mean)
		assert.Equal(t, 0.0, *scaled.StdDev)
	}

	multi := res.Items[1]
	assert.Equal(t, 2, multi.Answers)
	assert.Equal(t, []int{1, 0, 2}, multi.OptionCounts)
	assert.Nil(t, multi.Mean)

	text := res.Items[2]
	assert.Equal(t, 1, text.Answers)
	assert.Equal(t, []string{"Great course"}, text.TextAnswers)

	// per group
	res, err = f.env.Results.Get(ctx, f.instr, f.eval.ID, f.grp.ID)
	require.NoError(t, err)
	assert.Equal(t, f.grp.ID, res.GroupID)
	assert.Equal(t, 2, res.Responses)

	_, err = f.env.Results.Get(ctx, f.instr, f.eval.ID, "other")
	assert.True(t, core.IsValidationError(err))
}

func TestService_CanView(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.env.Admin(t, "admin")

	tests := []struct {
		name   string
		actor  user.User
		update func(e *evaluation.Evaluation)
		want   bool
	}{
		{name: "owner", actor: f.instr, want: true},
		{name: "admin", actor: admin, want: true},
		{name: "student", actor: f.studs[0], want: true},
		{name: "outsider", actor: f.outsider},
		{
			name:   "student of private results",
			actor:  f.studs[0],
			update: func(e *evaluation.Evaluation) { e.ResultsSharing = evaluation.ResultsPrivate },
		},
		{
			name:   "student before the view date",
			actor:  f.studs[0],
			update: func(e *evaluation.Evaluation) { e.ViewDate = testutil.TimePtr(day) },
		},
		{
			name:   "student when students cannot view",
			actor:  f.studs[0],
			update: func(e *evaluation.Evaluation) { e.StudentsViewResults = false },
		},
		{
			name:   "owner of an open evaluation",
			actor:  f.instr,
			update: func(e *evaluation.Evaluation) { e.DueDate = testutil.TimePtr(day) },
			want:   true,
		},
		{
			name:   "owner before the start",
			actor:  f.instr,
			update: func(e *evaluation.Evaluation) { e.StartDate = core.Now().Add(day); e.DueDate = nil },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := f.eval
			if tt.update != nil {
				tt.update(&e)
				_, err := f.env.EvalRepo.UpdateEvaluation(ctx, e)
				require.NoError(t, err)
				defer func() {
					_, err := f.env.EvalRepo.UpdateEvaluation(ctx, f.eval)
					require.NoError(t, err)
				}()
			}
			ok, err := f.env.Results.CanView(ctx, tt.actor, e.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestService_GetCached(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.env.Results.Get(ctx, f.instr, f.eval.ID, "")
	require.NoError(t, err)

	var cached struct {
		Responses int `json:"responses"`
	}
	found, err := f.env.Cache.Get(ctx, "results:"+f.eval.ID+":", &cached)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, res.Responses, cached.Responses)

	// viewable results are served from the cache
	end := core.Now()
	f.respond(t, f.outsider, &end, response.Answer{TemplateItemID: f.tis[1].ID, Numeric: testutil.IntPtr(1)})
	again, err := f.env.Results.Get(ctx, f.instr, f.eval.ID, "")
	require.NoError(t, err)
	assert.Equal(t, res.Responses, again.Responses)

	require.NoError(t, f.env.Cache.Delete(ctx, "results:"+f.eval.ID+":"))
	fresh, err := f.env.Results.Get(ctx, f.instr, f.eval.ID, "")
	require.NoError(t, err)
	assert.Equal(t, res.Responses+1, fresh.Responses)
}

func TestService_ExportCSV(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var buf bytes.Buffer
	require.NoError(t, f.env.Results.ExportCSV(ctx, f.instr, f.eval.ID, "", &buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "order", rows[0][0])
	assert.Equal(t, "The course was useful", rows[1][1])
	assert.Equal(t, "2", rows[1][5])
	assert.Equal(t, "Disagree: 0; Neutral: 0; Agree: 1", rows[1][7])
	assert.Equal(t, "Great course", rows[3][8])

	var out bytes.Buffer
	err = f.env.Results.ExportCSV(ctx, f.outsider, f.eval.ID, "", &out)
	assert.True(t, core.IsPermissionError(err))
	assert.Zero(t, out.Len())
}
