// Package validation registers the domain tags used in request bindings.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/meritrack/backend/internal/models"
)

// Register adds the custom tags to v:
//
//	merit_category  UNIVERSITY, FACULTY, COLLEGE or CLUB
//	event_status    UPCOMING, ONGOING, COMPLETED or CANCELLED
//	merit_type      Participant or Organizer
//	date_only       a YYYY-MM-DD calendar date
func Register(v *validator.Validate) error {
	rules := map[string]validator.Func{
		"merit_category": func(fl validator.FieldLevel) bool {
			return models.Category(fl.Field().String()).Valid()
		},
		"event_status": func(fl validator.FieldLevel) bool {
			return models.EventStatus(fl.Field().String()).Valid()
		},
		"merit_type": func(fl validator.FieldLevel) bool {
			return models.MeritType(fl.Field().String()).Valid()
		},
		"date_only": func(fl validator.FieldLevel) bool {
			_, err := time.Parse(models.DateLayout, fl.Field().String())
			return err == nil
		},
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("register %s: %w", tag, err)
		}
	}
	return nil
}

// RegisterGin installs the custom tags on gin's default binding engine.
func RegisterGin() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin binding engine is not go-playground/validator")
	}
	return Register(v)
}

// Describe turns binding errors into a short client message listing each failing field.
func Describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		if len(field) > 0 {
			field = strings.ToLower(field[:1]) + field[1:]
		}
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "merit_category":
			parts = append(parts, field+" must be one of UNIVERSITY, FACULTY, COLLEGE, CLUB")
		case "event_status":
			parts = append(parts, field+" must be one of UPCOMING, ONGOING, COMPLETED, CANCELLED")
		case "merit_type":
			parts = append(parts, field+" must be Participant or Organizer")
		case "date_only":
			parts = append(parts, field+" must be a YYYY-MM-DD date")
		case "min", "gte", "gt":
			parts = append(parts, fmt.Sprintf("%s must be at least %s", field, fe.Param()))
		case "max", "lte", "lt":
			parts = append(parts, fmt.Sprintf("%s must be at most %s", field, fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
