package domain

import (
	"errors"
	"math"

	"github.com/go-playground/validator/v10"

	apperrors "focusguard/internal/platform/errors"
	"focusguard/internal/platform/sanitize"
)

// IntentionInput is an unvalidated setIntention request. Callers that receive
// loosely typed input map a wrong type to the zero value (or NaN for the
// duration) so it fails the same rule a missing field would.
type IntentionInput struct {
	Site            string  `validate:"required,max=100"`
	Intention       string  `validate:"required,max=500"`
	DurationMinutes float64 `validate:"gte=1,lte=480"`
}

var fieldMessages = map[string]struct{ field, message string }{
	"Site":            {field: "site", message: "Invalid site"},
	"Intention":       {field: "intention", message: "Invalid intention"},
	"DurationMinutes": {field: "durationMinutes", message: "Invalid duration"},
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidIntention is a request that passed validation and sanitization.
type ValidIntention struct {
	Site       string
	Intention  string
	Minutes    int
	DurationMs int64
}

// ValidateIntention checks fields in the order site, intention, duration and
// returns the first failure. Surviving strings are sanitized; an empty result
// is rejected as invalid content.
func ValidateIntention(in IntentionInput) (ValidIntention, error) {
	if math.IsNaN(in.DurationMinutes) {
		in.DurationMinutes = 0
	}
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, name := range []string{"Site", "Intention", "DurationMinutes"} {
				for _, fe := range verrs {
					if fe.StructField() == name {
						m := fieldMessages[name]
						return ValidIntention{}, apperrors.NewValidationError(m.field, m.message)
					}
				}
			}
		}
		return ValidIntention{}, apperrors.NewValidationError("input", "Invalid input")
	}
	site := sanitize.Text(in.Site, MaxSiteLength)
	intention := sanitize.Text(in.Intention, MaxIntentionLength)
	if site == "" || intention == "" {
		return ValidIntention{}, apperrors.NewValidationError("content", "Invalid input content")
	}
	minutes := int(math.Floor(in.DurationMinutes))
	return ValidIntention{
		Site:       site,
		Intention:  intention,
		Minutes:    minutes,
		DurationMs: int64(minutes) * MinuteMs,
	}, nil
}
