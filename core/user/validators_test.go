package user

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/tathmini/core"
)

func TestCheckPassword(t *testing.T) {
	tests := []struct {
		name    string
		pwd     string
		wantTag string
	}{
		{name: "too short", pwd: "Ab1!", wantTag: pwdMinLenTag},
		{name: "whitespace", pwd: "Abc 1234!", wantTag: pwdNoSpaceTag},
		{name: "all numeric", pwd: "12345678901", wantTag: pwdNotAllNumTag},
		{name: "no upper", pwd: "abcd1234!", wantTag: pwdComplexityTag},
		{name: "no special", pwd: "Abcd12345", wantTag: pwdComplexityTag},
		{name: "similar to username", pwd: "Jdoe1234!", wantTag: pwdAttrSimTag},
		{name: "common", pwd: "Password123!", wantTag: pwdNoCommonTag},
		{name: "valid", pwd: "Tr0ub4dor&3x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantTag, checkPassword(tt.pwd, "", "jdoe1234", ""))
		})
	}
}

func TestNewUserValidation(t *testing.T) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)

	tests := []struct {
		name    string
		nu      NewUser
		wantErr bool
	}{
		{
			name:    "no username nor email",
			nu:      NewUser{Name: "John", Password: "Tr0ub4dor&3x", PasswordConfirm: "Tr0ub4dor&3x"},
			wantErr: true,
		},
		{
			name:    "passwords mismatch",
			nu:      NewUser{Name: "John", Username: "john", Password: "Tr0ub4dor&3x", PasswordConfirm: "Tr0ub4dor&3y"},
			wantErr: true,
		},
		{
			name: "unknown role",
			nu: NewUser{
				Name: "John", Username: "john", Password: "Tr0ub4dor&3x", PasswordConfirm: "Tr0ub4dor&3x",
				Roles: []string{"lol:"},
			},
			wantErr: true,
		},
		{
			name: "valid",
			nu: NewUser{
				Name: "John", Username: "john", Password: "Tr0ub4dor&3x", PasswordConfirm: "Tr0ub4dor&3x",
				Roles: []string{RoleInstructor},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(tt.nu)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUser_Roles(t *testing.T) {
	usr := User{Roles: []string{RoleAdminPrincipal, RoleInstructor}}
	assert.True(t, usr.IsAdmin())
	assert.True(t, usr.IsInstructor())
	assert.False(t, usr.IsStudent())
	assert.Equal(t, 29, MaxRolePriority(usr.Roles))
}
