package echoapi

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/evaluation"
	"github.com/trezcool/tathmini/core/group"
	"github.com/trezcool/tathmini/core/response"
	"github.com/trezcool/tathmini/core/results"
	"github.com/trezcool/tathmini/core/template"
	"github.com/trezcool/tathmini/core/user"
	"github.com/trezcool/tathmini/tests"
)

const day = 24 * time.Hour

type apiFixture struct {
	srv      *Server
	env      *testutil.Env
	admin    user.User
	instr    user.User
	stud     user.User
	outsider user.User
	grp      group.Group
	tmpl     template.Template
	tis      []template.TemplateItem
	eval     evaluation.Evaluation
}

// newAPIFixture sets up an open evaluation assigned to a group of one instructor and one student.
func newAPIFixture(t *testing.T) apiFixture {
	srv, env := setup(t)
	f := apiFixture{
		srv:      srv,
		env:      env,
		admin:    env.Admin(t, "admin"),
		instr:    env.Instructor(t, "instr"),
		stud:     env.Student(t, "stud"),
		outsider: env.Student(t, "outsider"),
	}
	f.grp = env.Group(t, "Physics", []user.User{f.instr}, []user.User{f.stud})
	f.tmpl, f.tis = env.Template(t, f.instr, "Course feedback")
	f.eval = env.Evaluation(t, f.instr, f.tmpl, core.Now().Add(-day), testutil.TimePtr(day), nil, nil, f.grp)
	return f
}

func (f apiFixture) answers() response.SaveResponse {
	return response.SaveResponse{
		GroupID: f.grp.ID,
		Answers: []response.NewAnswer{
			{TemplateItemID: f.tis[1].ID, Numeric: testutil.IntPtr(2)},
			{TemplateItemID: f.tis[2].ID, Multi: []int{0, 2}},
			{TemplateItemID: f.tis[3].ID, Text: "Great course"},
		},
	}
}

func Test_groupApi(t *testing.T) {
	f := newAPIFixture(t)
	other := f.env.Group(t, "Chemistry", nil, nil)

	runHTTPTests(t, f.srv, []httpTest{
		{
			name: "create requires admin", method: http.MethodPost, path: "/api/v1/groups", token: getToken(t, f.srv, f.instr),
			body:     marchallObj(t, group.NewGroup{Title: "Biology", Type: group.TypeSite}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "invalid type", method: http.MethodPost, path: "/api/v1/groups", token: getToken(t, f.srv, f.admin),
			body: marchallObj(t, group.NewGroup{Title: "Biology", Type: "lol"}), wantCode: http.StatusBadRequest,
		},
		{name: "student sees own groups", path: "/api/v1/groups", token: getToken(t, f.srv, f.stud), wantData: marchallList(t, f.grp)},
		{name: "admin sees all groups", path: "/api/v1/groups", token: getToken(t, f.srv, f.admin), wantData: marchallList(t, f.grp, other)},
		{name: "member retrieves group", path: "/api/v1/groups/" + f.grp.ID, token: getToken(t, f.srv, f.stud), wantData: marchallObj(t, f.grp)},
		{
			name: "non member cannot see group", path: "/api/v1/groups/" + f.grp.ID, token: getToken(t, f.srv, f.outsider),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "assigned group cannot be deleted", method: http.MethodDelete, path: "/api/v1/groups/" + f.grp.ID,
			token: getToken(t, f.srv, f.admin), wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: "this group is assigned to evaluations and cannot be deleted"}),
		},
		{name: "unknown group", path: "/api/v1/groups/lol", token: getToken(t, f.srv, f.admin), wantCode: http.StatusNotFound},
	})
}

func Test_evaluationApi_create(t *testing.T) {
	f := newAPIFixture(t)

	start := core.Now().Add(time.Hour)
	due := core.Now().Add(day)
	body := marchallObj(t, evaluation.NewEvaluation{Title: "Midterm feedback", TemplateID: f.tmpl.ID, StartDate: start, DueDate: &due})

	runHTTPTests(t, f.srv, []httpTest{
		{
			name: "students cannot create", method: http.MethodPost, path: "/api/v1/evaluations", body: body,
			token: getToken(t, f.srv, f.stud), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "only admins and instructors can create evaluations"}),
		},
		{
			name: "title required", method: http.MethodPost, path: "/api/v1/evaluations", token: getToken(t, f.srv, f.instr),
			body:     marchallObj(t, evaluation.NewEvaluation{TemplateID: f.tmpl.ID}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"title": "this field is required"}),
		},
	})

	req, rec := newAuthRequest(http.MethodPost, "/api/v1/evaluations", getToken(t, f.srv, f.instr), body)
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var e evaluation.Evaluation
	unmarchall(t, rec, &e)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "Midterm feedback", e.Title)
	assert.Equal(t, f.instr.ID, e.OwnerID)
	assert.Equal(t, evaluation.StateInQueue, e.State)

	agPath := "/api/v1/evaluations/" + e.ID + "/groups"
	runHTTPTests(t, f.srv, []httpTest{
		{
			name: "outsider cannot assign", method: http.MethodPost, path: agPath, token: getToken(t, f.srv, f.outsider),
			body: marchallObj(t, evaluation.NewAssignGroup{GroupID: f.grp.ID}), wantCode: http.StatusForbidden,
		},
		{
			name: "owner assigns group", method: http.MethodPost, path: agPath, token: getToken(t, f.srv, f.instr),
			body: marchallObj(t, evaluation.NewAssignGroup{GroupID: f.grp.ID}), wantCode: http.StatusCreated,
		},
		{
			name: "group assigned once", method: http.MethodPost, path: agPath, token: getToken(t, f.srv, f.instr),
			body: marchallObj(t, evaluation.NewAssignGroup{GroupID: f.grp.ID}), wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: "this group is already assigned to the evaluation"}),
		},
		{name: "students cannot list assign groups", path: agPath, token: getToken(t, f.srv, f.stud), wantCode: http.StatusForbidden},
	})
}

func Test_evaluationApi_retrieve(t *testing.T) {
	f := newAPIFixture(t)
	path := "/api/v1/evaluations/" + f.eval.ID

	runHTTPTests(t, f.srv, []httpTest{
		{name: "owner", path: path, token: getToken(t, f.srv, f.instr), wantData: marchallObj(t, f.eval)},
		{name: "student of assigned group", path: path, token: getToken(t, f.srv, f.stud), wantData: marchallObj(t, f.eval)},
		{
			name: "outsider", path: path, token: getToken(t, f.srv, f.outsider),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "unknown", path: "/api/v1/evaluations/lol", token: getToken(t, f.srv, f.admin),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "evaluation not found"}),
		},
		{
			name: "template in use", method: http.MethodDelete, path: "/api/v1/templates/" + f.tmpl.ID,
			token: getToken(t, f.srv, f.instr), wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: "this template is used by evaluations and cannot be deleted"}),
		},
	})
}

func Test_evaluationApi_takeAndResults(t *testing.T) {
	f := newAPIFixture(t)
	evalPath := "/api/v1/evaluations/" + f.eval.ID
	studToken := getToken(t, f.srv, f.stud)

	// takeable evaluations
	req, rec := newAuthRequest(http.MethodGet, "/api/v1/me/evaluations", studToken)
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var assignments []evaluation.Assignment
	unmarchall(t, rec, &assignments)
	require.Len(t, assignments, 1)
	assert.Equal(t, f.eval.ID, assignments[0].Evaluation.ID)
	assert.Equal(t, f.grp.ID, assignments[0].Group.ID)

	incomplete := f.answers()
	incomplete.Answers = incomplete.Answers[1:]

	runHTTPTests(t, f.srv, []httpTest{
		{
			name: "can take", path: evalPath + "/can-take?group=" + f.grp.ID, token: studToken,
			wantData: marchallObj(t, CanTakeResponse{CanTake: true}),
		},
		{
			name: "outsider cannot take", path: evalPath + "/can-take?group=" + f.grp.ID, token: getToken(t, f.srv, f.outsider),
			wantData: marchallObj(t, CanTakeResponse{CanTake: false}),
		},
		{
			name: "outsider cannot respond", method: http.MethodPost, path: evalPath + "/responses",
			token: getToken(t, f.srv, f.outsider), body: marchallObj(t, f.answers()), wantCode: http.StatusForbidden,
		},
		{
			name: "compulsory item missing", method: http.MethodPost, path: evalPath + "/responses",
			token: studToken, body: marchallObj(t, incomplete), wantCode: http.StatusBadRequest,
		},
		{
			name: "group required", method: http.MethodPost, path: evalPath + "/responses", token: studToken,
			body: marchallObj(t, response.SaveResponse{}), wantCode: http.StatusBadRequest,
		},
		{
			name: "complete response", method: http.MethodPost, path: evalPath + "/responses",
			token: studToken, body: marchallObj(t, f.answers()), wantCode: http.StatusOK,
		},
		{
			name: "already taken", path: evalPath + "/can-take?group=" + f.grp.ID, token: studToken,
			wantData: marchallObj(t, CanTakeResponse{CanTake: false}),
		},
		{
			name: "students cannot view results yet", path: evalPath + "/results", token: studToken,
			wantCode: http.StatusForbidden,
		},
		{
			name: "students cannot list responses", path: evalPath + "/responses", token: studToken,
			wantCode: http.StatusForbidden,
		},
	})

	// own response
	req, rec = newAuthRequest(http.MethodGet, "/api/v1/me/evaluations/"+f.eval.ID+"/response?group="+f.grp.ID, studToken)
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp response.Response
	unmarchall(t, rec, &resp)
	assert.Equal(t, f.stud.ID, resp.OwnerID)
	assert.NotNil(t, resp.EndTime)

	// results
	instrToken := getToken(t, f.srv, f.instr)
	req, rec = newAuthRequest(http.MethodGet, evalPath+"/results", instrToken)
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res results.Results
	unmarchall(t, rec, &res)
	assert.Equal(t, f.eval.ID, res.EvaluationID)
	assert.Equal(t, 1, res.Responses)
	assert.Equal(t, 1, res.Enrolled)
	assert.Len(t, res.Items, 3)

	req, rec = newAuthRequest(http.MethodGet, evalPath+"/results.csv", instrToken)
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "results-"+f.eval.ID+".csv")
	assert.Contains(t, rec.Body.String(), "The course was useful")
	assert.Contains(t, rec.Body.String(), "Great course")
}

func Test_evaluationApi_closeAndNotify(t *testing.T) {
	f := newAPIFixture(t)
	evalPath := "/api/v1/evaluations/" + f.eval.ID
	instrToken := getToken(t, f.srv, f.instr)

	runHTTPTests(t, f.srv, []httpTest{
		{
			name: "invalid notification type", method: http.MethodPost, path: evalPath + "/notify", token: instrToken,
			body: marchallObj(t, map[string]string{"type": "lol"}), wantCode: http.StatusBadRequest,
		},
		{
			name: "students cannot notify", method: http.MethodPost, path: evalPath + "/notify", token: getToken(t, f.srv, f.stud),
			body: marchallObj(t, map[string]string{"type": "reminder"}), wantCode: http.StatusForbidden,
		},
		{
			name: "owner reminds takers", method: http.MethodPost, path: evalPath + "/notify", token: instrToken,
			body: marchallObj(t, map[string]string{"type": "reminder"}), wantData: marchallObj(t, NotifyResponse{Sent: 1}),
		},
		{name: "students cannot close", method: http.MethodPost, path: evalPath + "/close", token: getToken(t, f.srv, f.stud), wantCode: http.StatusForbidden},
		{name: "owner closes", method: http.MethodPost, path: evalPath + "/close", token: instrToken},
		{
			name: "closed once", method: http.MethodPost, path: evalPath + "/close", token: instrToken,
			wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: "only active evaluations can be closed"}),
		},
		{
			name: "closed evaluation cannot be taken", path: evalPath + "/can-take?group=" + f.grp.ID, token: getToken(t, f.srv, f.stud),
			wantData: marchallObj(t, CanTakeResponse{CanTake: false}),
		},
	})
}

func Test_emailTemplateApi(t *testing.T) {
	f := newAPIFixture(t)
	instrToken := getToken(t, f.srv, f.instr)

	body := marchallObj(t, map[string]interface{}{
		"type":    "reminder",
		"subject": "Hurry: {{.EvalTitle}}",
		"message": "Dear {{.UserName}}, {{.EvalTitle}} closes soon.",
	})

	req, rec := newAuthRequest(http.MethodPost, "/api/v1/email-templates", instrToken, body)
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var et struct {
		ID      string `json:"id"`
		OwnerID string `json:"owner_id"`
	}
	unmarchall(t, rec, &et)
	assert.Equal(t, f.instr.ID, et.OwnerID)

	runHTTPTests(t, f.srv, []httpTest{
		{
			name: "students cannot create", method: http.MethodPost, path: "/api/v1/email-templates", body: body,
			token: getToken(t, f.srv, f.stud), wantCode: http.StatusForbidden,
		},
		{name: "owner retrieves", path: "/api/v1/email-templates/" + et.ID, token: instrToken},
		{
			name: "hidden from others", path: "/api/v1/email-templates/" + et.ID, token: getToken(t, f.srv, f.stud),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{name: "builtin default", path: "/api/v1/email-templates/defaults/available", token: instrToken},
		{
			name: "unknown default", path: "/api/v1/email-templates/defaults/lol", token: instrToken,
			wantCode: http.StatusNotFound,
		},
		{name: "owner deletes", method: http.MethodDelete, path: "/api/v1/email-templates/" + et.ID, token: instrToken, wantCode: http.StatusNoContent},
	})
}
