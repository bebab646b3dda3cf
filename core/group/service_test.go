package group_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/group"
	"github.com/trezcool/tathmini/core/user"
	"github.com/trezcool/tathmini/tests"
)

func TestService_Create(t *testing.T) {
	env := testutil.NewEnv(nil)
	ctx := context.Background()
	admin := env.Admin(t, "admin")
	instr := env.Instructor(t, "instr")

	tests := []struct {
		name    string
		actor   user.User
		wantErr func(error) bool
	}{
		{name: "admin", actor: admin},
		{name: "instructor", actor: instr, wantErr: core.IsPermissionError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grp, err := env.Groups.Create(ctx, tt.actor, group.NewGroup{Title: "Physics 101", Type: group.TypeSite})
			if tt.wantErr != nil {
				assert.True(t, tt.wantErr(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, grp.ID)
			assert.Equal(t, "Physics 101", grp.Title)

			got, err := env.Groups.GetByID(ctx, grp.ID)
			require.NoError(t, err)
			assert.Equal(t, grp, got)
		})
	}
}

func TestService_Query(t *testing.T) {
	env := testutil.NewEnv(nil)
	ctx := context.Background()
	admin := env.Admin(t, "admin")

	for _, ng := range []group.NewGroup{
		{Title: "Physics 101", Type: group.TypeSite},
		{Title: "Physics 101 - Lab", Type: group.TypeSection},
		{Title: "Chemistry", Type: group.TypeSite},
	} {
		_, err := env.Groups.Create(ctx, admin, ng)
		require.NoError(t, err)
	}

	tests := []struct {
		name   string
		filter *group.QueryFilter
		want   []string
	}{
		{name: "all", filter: nil, want: []string{"Chemistry", "Physics 101", "Physics 101 - Lab"}},
		{name: "search", filter: &group.QueryFilter{Search: "physics"}, want: []string{"Physics 101", "Physics 101 - Lab"}},
		{name: "type", filter: &group.QueryFilter{Type: group.TypeSection}, want: []string{"Physics 101 - Lab"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grps, err := env.Groups.Query(ctx, tt.filter, []core.DBOrdering{{Field: "title", Ascending: true}})
			require.NoError(t, err)
			titles := make([]string, len(grps))
			for i, grp := range grps {
				titles[i] = grp.Title
			}
			assert.Equal(t, tt.want, titles)
		})
	}
}

func TestService_Members(t *testing.T) {
	env := testutil.NewEnv(nil)
	ctx := context.Background()
	admin := env.Admin(t, "admin")
	instr := env.Instructor(t, "instr")
	stud := env.Student(t, "stud")
	inactive := testutil.CreateUser(t, env.UserRepo, "Gone", "gone", "gone@test.cd", "", nil, false)

	grp, err := env.Groups.Create(ctx, admin, group.NewGroup{Title: "Physics", Type: group.TypeSite})
	require.NoError(t, err)

	_, err = env.Groups.AddMember(ctx, instr, grp.ID, group.NewMember{UserID: stud.ID, Role: group.RoleStudent})
	assert.True(t, core.IsPermissionError(err))

	_, err = env.Groups.AddMember(ctx, admin, grp.ID, group.NewMember{UserID: inactive.ID, Role: group.RoleStudent})
	assert.True(t, core.IsValidationError(err))

	_, err = env.Groups.AddMember(ctx, admin, grp.ID, group.NewMember{UserID: "missing", Role: group.RoleStudent})
	assert.True(t, core.IsValidationError(err))

	_, err = env.Groups.AddMember(ctx, admin, grp.ID, group.NewMember{UserID: instr.ID, Role: group.RoleInstructor})
	require.NoError(t, err)
	_, err = env.Groups.AddMember(ctx, admin, grp.ID, group.NewMember{UserID: stud.ID, Role: group.RoleStudent})
	require.NoError(t, err)

	ok, err := env.Groups.IsInstructor(ctx, instr.ID, grp.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = env.Groups.IsStudent(ctx, instr.ID, grp.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	count, err := env.Groups.CountMembers(ctx, grp.ID, group.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	grps, err := env.Groups.GroupsForUser(ctx, stud.ID, group.RoleStudent)
	require.NoError(t, err)
	if assert.Len(t, grps, 1) {
		assert.Equal(t, grp.ID, grps[0].ID)
	}

	// adding again changes the role
	_, err = env.Groups.AddMember(ctx, admin, grp.ID, group.NewMember{UserID: stud.ID, Role: group.RoleInstructor})
	require.NoError(t, err)
	ok, err = env.Groups.IsInstructor(ctx, stud.ID, grp.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, env.Groups.RemoveMember(ctx, admin, grp.ID, stud.ID))
	err = env.Groups.RemoveMember(ctx, admin, grp.ID, stud.ID)
	assert.Equal(t, group.ErrNotMember, err)

	members, err := env.Groups.Members(ctx, grp.ID, "")
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestService_Delete(t *testing.T) {
	env := testutil.NewEnv(nil)
	ctx := context.Background()
	admin := env.Admin(t, "admin")
	instr := env.Instructor(t, "instr")

	free := env.Group(t, "Free", nil, nil)
	assigned := env.Group(t, "Assigned", []user.User{instr}, nil)
	tmpl, _ := env.Template(t, instr, "Course feedback")
	env.Evaluation(t, instr, tmpl, core.Now(), nil, nil, nil, assigned)

	assert.True(t, core.IsPermissionError(env.Groups.Delete(ctx, instr, free.ID)))
	assert.True(t, core.IsStateError(env.Groups.Delete(ctx, admin, assigned.ID)))
	assert.True(t, core.IsNotFound(env.Groups.Delete(ctx, admin, "missing")))

	require.NoError(t, env.Groups.Delete(ctx, admin, free.ID))
	_, err := env.Groups.GetByID(ctx, free.ID)
	assert.Equal(t, group.ErrNotFound, err)
}
