package group

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/tathmini/core"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	core.RegisterOneOf(validate, translator, "grouptype", "invalid group type", Types)
	core.RegisterOneOf(validate, translator, "memberrole", "invalid member role", MemberRoles)
}
