package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// validatorInstance reports field names by their json tag so errors line up
// with what API clients and the filter store see.
func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// Validate checks the criteria's field tags. The first failing field is
// returned as a *ValidationError. Inverted min/max bounds are not an error.
func (c *FilterCriteria) Validate() error {
	if c == nil {
		return NewValidationError("filter_criteria", "is required")
	}
	err := validatorInstance().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		e := verrs[0]
		reason := e.Tag()
		if e.Param() != "" {
			reason = fmt.Sprintf("%s=%s", e.Tag(), e.Param())
		}
		return NewValidationError(e.Field(), fmt.Sprintf("failed %s (value: %v)", reason, e.Value()))
	}
	return err
}
