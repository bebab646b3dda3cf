package scale_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/scale"
	"github.com/trezcool/tathmini/core/template"
	"github.com/trezcool/tathmini/core/user"
	"github.com/trezcool/tathmini/tests"
)

func newScale(title, sharing string) scale.NewScale {
	return scale.NewScale{
		Title:   title,
		Options: []string{"Low", "Medium", "High"},
		Ideal:   scale.IdealHigh,
		Mode:    scale.ModeScale,
		Sharing: sharing,
	}
}

func TestService_Create(t *testing.T) {
	env := testutil.NewEnv(nil)
	ctx := context.Background()
	admin := env.Admin(t, "admin")
	instr := env.Instructor(t, "instr")
	stud := env.Student(t, "stud")

	tests := []struct {
		name    string
		actor   user.User
		ns      scale.NewScale
		wantErr func(error) bool
	}{
		{name: "instructor", actor: instr, ns: newScale("Agreement", core.SharingPrivate)},
		{name: "student", actor: stud, ns: newScale("Student scale", core.SharingPrivate), wantErr: core.IsPermissionError},
		{name: "public by instructor", actor: instr, ns: newScale("Public", core.SharingPublic), wantErr: core.IsPermissionError},
		{name: "public by admin", actor: admin, ns: newScale("Public", core.SharingPublic)},
		{name: "duplicate title", actor: admin, ns: newScale("agreement", core.SharingPrivate), wantErr: core.IsValidationError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := env.Scales.Create(ctx, tt.actor, tt.ns)
			if tt.wantErr != nil {
				assert.True(t, tt.wantErr(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.actor.ID, s.OwnerID)
			assert.Equal(t, tt.ns.Options, s.Options)
			assert.False(t, s.Locked)
		})
	}

	// adhoc scales may share titles
	ns := newScale("Agreement", core.SharingPrivate)
	ns.Mode = scale.ModeAdhoc
	_, err := env.Scales.Create(ctx, instr, ns)
	assert.NoError(t, err)
}

func TestNewScale_Validate(t *testing.T) {
	validate := testutil.NewValidator()

	ns := scale.NewScale{Title: "  Frequency ", Options: []string{" Never", "Always "}}
	require.NoError(t, ns.Validate(validate))
	assert.Equal(t, "Frequency", ns.Title)
	assert.Equal(t, []string{"Never", "Always"}, ns.Options)
	assert.Equal(t, scale.IdealNone, ns.Ideal)
	assert.Equal(t, scale.ModeScale, ns.Mode)
	assert.Equal(t, core.SharingPrivate, ns.Sharing)

	ns = scale.NewScale{Title: "Dup", Options: []string{"Yes", "yes"}}
	assert.True(t, core.IsValidationError(ns.Validate(validate)))

	ns = scale.NewScale{Title: "Short", Options: []string{"Only"}}
	assert.Error(t, ns.Validate(validate))
}

func TestService_Query(t *testing.T) {
	env := testutil.NewEnv(nil)
	ctx := context.Background()
	admin := env.Admin(t, "admin")
	instr1 := env.Instructor(t, "instr1")
	instr2 := env.Instructor(t, "instr2")

	_, err := env.Scales.Create(ctx, instr1, newScale("Private one", core.SharingPrivate))
	require.NoError(t, err)
	_, err = env.Scales.Create(ctx, instr1, newScale("Shared one", core.SharingShared))
	require.NoError(t, err)
	_, err = env.Scales.Create(ctx, instr2, newScale("Private two", core.SharingPrivate))
	require.NoError(t, err)

	titles := func(actor user.User, filter *scale.QueryFilter) []string {
		scales, err := env.Scales.Query(ctx, actor, filter, []core.DBOrdering{{Field: "title", Ascending: true}})
		require.NoError(t, err)
		res := make([]string, len(scales))
		for i, s := range scales {
			res[i] = s.Title
		}
		return res
	}

	assert.Equal(t, []string{"Private one", "Private two", "Shared one"}, titles(admin, nil))
	assert.Equal(t, []string{"Private two", "Shared one"}, titles(instr2, nil))
	assert.Equal(t, []string{"Shared one"}, titles(instr2, &scale.QueryFilter{OwnerID: instr1.ID}))
	assert.Equal(t, []string{"Private one"}, titles(instr1, &scale.QueryFilter{Search: "PRIVATE"}))
}

func TestService_UpdateDelete(t *testing.T) {
	env := testutil.NewEnv(nil)
	ctx := context.Background()
	instr := env.Instructor(t, "instr")
	other := env.Instructor(t, "other")

	s, err := env.Scales.Create(ctx, instr, newScale("Agreement", core.SharingPrivate))
	require.NoError(t, err)
	taken, err := env.Scales.Create(ctx, instr, newScale("Taken", core.SharingPrivate))
	require.NoError(t, err)

	us := scale.UpdateScale{Title: "Agreement level", Options: []string{"No", "Yes"}}
	require.NoError(t, us.Validate(s, env.Validate))

	_, err = env.Scales.Update(ctx, other, s.ID, us)
	assert.True(t, core.IsPermissionError(err))

	updated, err := env.Scales.Update(ctx, instr, s.ID, us)
	require.NoError(t, err)
	assert.Equal(t, "Agreement level", updated.Title)
	assert.Equal(t, []string{"No", "Yes"}, updated.Options)
	assert.Equal(t, scale.IdealHigh, updated.Ideal)

	us = scale.UpdateScale{Title: "taken"}
	require.NoError(t, us.Validate(updated, env.Validate))
	_, err = env.Scales.Update(ctx, instr, s.ID, us)
	assert.True(t, core.IsValidationError(err))

	// in use by an item
	_, err = env.Templates.CreateItem(ctx, instr, template.NewItem{
		Text:           "Rate it",
		Classification: template.ClassScaled,
		ScaleID:        s.ID,
		Category:       template.CategoryCourse,
		Sharing:        core.SharingPrivate,
	})
	require.NoError(t, err)
	assert.True(t, core.IsStateError(env.Scales.Delete(ctx, instr, s.ID)))

	// the option count of a scale in use is fixed
	us = scale.UpdateScale{Options: []string{"No", "Maybe", "Yes"}}
	require.NoError(t, us.Validate(updated, env.Validate))
	_, err = env.Scales.Update(ctx, instr, s.ID, us)
	assert.True(t, core.IsStateError(err), "got %v", err)

	us = scale.UpdateScale{Options: []string{"Nope", "Yep"}}
	require.NoError(t, us.Validate(updated, env.Validate))
	updated, err = env.Scales.Update(ctx, instr, s.ID, us)
	require.NoError(t, err)
	assert.Equal(t, []string{"Nope", "Yep"}, updated.Options)

	// locked
	require.NoError(t, env.Scales.Lock(ctx, taken.ID))
	assert.True(t, core.IsStateError(env.Scales.Delete(ctx, instr, taken.ID)))
	require.NoError(t, env.Scales.Unlock(ctx, taken.ID))
	require.NoError(t, env.Scales.Delete(ctx, instr, taken.ID))

	_, err = env.Scales.GetByID(ctx, taken.ID)
	assert.Equal(t, scale.ErrNotFound, err)
}

func TestService_Copy(t *testing.T) {
	env := testutil.NewEnv(nil)
	ctx := context.Background()
	instr := env.Instructor(t, "instr")
	other := env.Instructor(t, "other")

	private, err := env.Scales.Create(ctx, instr, newScale("Private", core.SharingPrivate))
	require.NoError(t, err)
	shared, err := env.Scales.Create(ctx, instr, newScale("Shared", core.SharingShared))
	require.NoError(t, err)

	_, err = env.Scales.Copy(ctx, other, private.ID)
	assert.True(t, core.IsPermissionError(err))

	cp, err := env.Scales.Copy(ctx, other, shared.ID)
	require.NoError(t, err)
	assert.Equal(t, "Shared (copy 1)", cp.Title)
	assert.Equal(t, other.ID, cp.OwnerID)
	assert.Equal(t, core.SharingPrivate, cp.Sharing)
	assert.Equal(t, shared.Options, cp.Options)

	cp, err = env.Scales.Copy(ctx, instr, shared.ID)
	require.NoError(t, err)
	assert.Equal(t, "Shared (copy 2)", cp.Title)

	t.Run("adhoc", func(t *testing.T) {
		ns := newScale("Yes/No", core.SharingPrivate)
		ns.Mode = scale.ModeAdhoc
		adhoc, err := env.Scales.Create(ctx, instr, ns)
		require.NoError(t, err)

		_, err = env.Scales.Copy(ctx, other, adhoc.ID)
		assert.True(t, core.IsPermissionError(err))

		cp, err := env.Scales.CopyAdhoc(ctx, other, adhoc.ID)
		require.NoError(t, err)
		assert.NotEqual(t, adhoc.ID, cp.ID)
		assert.Equal(t, other.ID, cp.OwnerID)
		assert.Equal(t, scale.ModeAdhoc, cp.Mode)
		assert.Equal(t, adhoc.Options, cp.Options)

		_, err = env.Scales.CopyAdhoc(ctx, other, shared.ID)
		assert.True(t, core.IsStateError(err))
	})
}
