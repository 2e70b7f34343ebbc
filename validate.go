package framegraph

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// mustValidate panics with a descriptive message when v fails its struct
// tags. what names the thing being declared.
func mustValidate(what string, v any) {
	if err := validate.Struct(v); err != nil {
		panic(fmt.Sprintf("framegraph: invalid %s: %v", what, err))
	}
}
