// Package models contains shared data models used across the AgriSmart codebase.
package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultTopK = 3
	MaxTopK     = 10
)

// ErrValidation is the sentinel wrapped by every ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationError reports a request that cannot be processed. Nothing is
// recorded for requests that fail validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// AnalysisRequest is one analyze call. Image bytes never leave the process.
type AnalysisRequest struct {
	Image    []byte `json:"-"`
	Location string `json:"location" validate:"max=512"`
	District string `json:"district" validate:"max=256"`
	Crop     string `json:"crop"      validate:"max=128"`
	SoilType string `json:"soil_type" validate:"max=128"`
	TopK     int    `json:"top_k"     validate:"min=1,max=10"`
}

// HasImage reports whether the disease half should run.
func (r *AnalysisRequest) HasImage() bool { return len(r.Image) > 0 }

// HasPlace reports whether the IFS half should run.
func (r *AnalysisRequest) HasPlace() bool { return r.Location != "" || r.District != "" }

// Normalize trims text fields and applies the default top-K.
func (r *AnalysisRequest) Normalize() {
	r.Location = strings.TrimSpace(r.Location)
	r.District = strings.TrimSpace(r.District)
	r.Crop = strings.TrimSpace(r.Crop)
	r.SoilType = strings.TrimSpace(r.SoilType)
	if r.TopK == 0 {
		r.TopK = DefaultTopK
	}
}

// Validate normalizes r and checks it. The returned error is always a *ValidationError.
func (r *AnalysisRequest) Validate() error {
	r.Normalize()
	if !r.HasImage() && !r.HasPlace() {
		return &ValidationError{Reason: "provide an image, a location or a district"}
	}
	return structError(validate().Struct(r))
}

// HistoryQuery is the pagination window for history listing.
type HistoryQuery struct {
	Limit  int `validate:"min=1,max=200"`
	Offset int `validate:"min=0"`
}

func (q HistoryQuery) Validate() error {
	return structError(validate().Struct(q))
}

var (
	validateOnce sync.Once
	validateInst *validator.Validate
)

// validate returns the shared validator; validator.Validate caches struct
// metadata and is safe for concurrent use.
func validate() *validator.Validate {
	validateOnce.Do(func() {
		validateInst = validator.New(validator.WithRequiredStructEnabled())
		validateInst.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return strings.ToLower(f.Name)
			}
			return name
		})
	})
	return validateInst
}

func structError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{Field: fe.Field(), Reason: describeTag(fe)}
	}
	return &ValidationError{Reason: err.Error()}
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be at most " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}
