package template

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/tathmini/core"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	core.RegisterOneOf(validate, translator, "templatetype", "invalid template type", Types)
	core.RegisterOneOf(validate, translator, "itemclass", "invalid item classification", Classifications)
	core.RegisterOneOf(validate, translator, "itemcategory", "invalid item category", Categories)
	core.RegisterOneOf(validate, translator, "scaledisplay", "invalid scale display setting", ScaleDisplays)
}
