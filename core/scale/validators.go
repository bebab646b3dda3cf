package scale

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/tathmini/core"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	core.RegisterOneOf(validate, translator, "scaleideal", "invalid scale ideal", Ideals)
	core.RegisterOneOf(validate, translator, "scalemode", "invalid scale mode", Modes)
}
