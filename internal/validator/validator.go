// Package validator checks entity documents decoded from ingestion events
// before they reach the mutation pipelines.
package validator

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate *validator.Validate
	once     sync.Once
)

// Get returns the shared validator. Field names in violation messages come
// from the json tags so they match the wire documents.
func Get() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks an entity document and flattens any violations into a
// single error.
func Validate(s interface{}) error {
	err := Get().Struct(s)
	if err == nil {
		return nil
	}

	violations, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	messages := make([]string, 0, len(violations))
	for _, v := range violations {
		messages = append(messages, fmt.Sprintf("%s %s", v.Field(), describe(v)))
	}
	return fmt.Errorf("invalid entity document: %s", strings.Join(messages, "; "))
}

// describe renders the violated constraint for the tags the entity documents
// carry: required references, status and direction enums, confidence bounds,
// contact email format.
func describe(v validator.FieldError) string {
	switch v.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", v.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", v.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", v.Param())
	default:
		return fmt.Sprintf("failed the '%s' constraint", v.Tag())
	}
}
