package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/benvon/membership-api/internal/models"
	"github.com/go-playground/validator/v10"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	if err := Validate.RegisterValidation("membership", validateMembership); err != nil {
		panic(fmt.Sprintf("failed to register membership validator: %v", err))
	}
	if err := Validate.RegisterValidation("user_status", validateUserStatus); err != nil {
		panic(fmt.Sprintf("failed to register user_status validator: %v", err))
	}
}

func validateMembership(fl validator.FieldLevel) bool {
	return models.Membership(fl.Field().String()).IsValid()
}

func validateUserStatus(fl validator.FieldLevel) bool {
	return models.UserStatus(fl.Field().String()).IsValid()
}

// Struct validates s and returns a single error naming the first few failing fields.
func Struct(s any) error {
	err := Validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("invalid input: %s", strings.Join(msgs, "; "))
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// SanitizeUpdate trims and strips control characters from the free-text fields of u.
func SanitizeUpdate(u *models.UserUpdate) {
	for _, p := range []*string{u.Email, u.Username, u.BillingCustomerID, u.BillingSubscriptionID} {
		if p != nil {
			*p = SanitizeText(*p)
		}
	}
}
