package app

import (
	"errors"
	"reflect"
	"strings"

	"captiondesk/api/internal/store"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("notblank", validateNotBlank)
	_ = v.RegisterValidation("tone", validateTone)
	v.RegisterTagNameFunc(jsonFieldName)
	return v
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func validateTone(fl validator.FieldLevel) bool {
	return store.Tone(fl.Field().String()).Valid()
}

func jsonFieldName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return field.Name
	}
	return name
}

// fieldProblem is one failed rule, reported in error details.
type fieldProblem struct {
	Index *int   `json:"index,omitempty"`
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// validateStruct runs the struct's validate tags. index tags the problems
// with the item's position in a batch; pass -1 for a single value.
func validateStruct(value any, index int) []fieldProblem {
	err := validate.Struct(value)
	if err == nil {
		return nil
	}
	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) {
		return []fieldProblem{{Field: "", Rule: err.Error()}}
	}
	problems := make([]fieldProblem, 0, len(invalid))
	for _, fe := range invalid {
		problem := fieldProblem{Field: fe.Field(), Rule: fe.Tag()}
		if index >= 0 {
			i := index
			problem.Index = &i
		}
		problems = append(problems, problem)
	}
	return problems
}
