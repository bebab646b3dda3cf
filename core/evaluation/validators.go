package evaluation

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/tathmini/core"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	core.RegisterOneOf(validate, translator, "resultssharing", "invalid results sharing", ResultsSharings)
}
