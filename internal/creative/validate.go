package creative

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("theme", func(fl validator.FieldLevel) bool {
			return IsTheme(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// Validate checks the request bounds and returns a *ValidationError for the
// first offending field.
func (r GenerationRequest) Validate() error {
	if strings.TrimSpace(r.ProductDescription) == "" {
		return &ValidationError{Field: "product_description", Reason: "is required"}
	}

	err := requestValidator().Struct(r)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Reason: err.Error()}
	}

	fe := fieldErrs[0]
	return &ValidationError{Field: fieldName(fe.StructField()), Reason: describe(fe)}
}

func fieldName(field string) string {
	field, _, _ = strings.Cut(field, "[")
	switch field {
	case "ProductDescription":
		return "product_description"
	case "BrandColors":
		return "brand_colors"
	case "AspectRatio":
		return "aspect_ratio"
	default:
		return strings.ToLower(field)
	}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "max":
		return fmt.Sprintf("must be between %d and %d, got %v", MinCount, MaxCount, fe.Value())
	case "theme":
		return fmt.Sprintf("unknown theme %q (allowed: %s)", fe.Value(), strings.Join(Themes(), ", "))
	case "oneof":
		return fmt.Sprintf("must be one of %s, got %v", strings.Join(AspectRatios, ", "), fe.Value())
	case "hexcolor":
		return fmt.Sprintf("invalid hex color %v", fe.Value())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}
