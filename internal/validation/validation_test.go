package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationErrors(t *testing.T) {
	var ve ValidationErrors
	assert.False(t, ve.HasErrors())

	RequireField(&ve, "title", "  ")
	RequirePositiveID(&ve, "user_id", 0)
	ValidateEnum(&ve, "severity", "fatal", ValidSeverities)
	ValidatePercentage(&ve, "vat_rate", 120)
	ValidateCurrency(&ve, "currency", "eur")
	ValidateEmail(&ve, "email", "not-an-address")
	ValidateMaxLength(&ve, "name", strings.Repeat("x", MaxNameLength+1), MaxNameLength)

	assert.True(t, ve.HasErrors())
	assert.Len(t, ve.Errors, 7)
	assert.Equal(t, "title: is required", strings.Split(ve.Error(), "; ")[0])
	assert.Contains(t, ve.Error(), "severity: must be one of: info, warning, critical")
}

func TestValidators_AcceptGoodValues(t *testing.T) {
	var ve ValidationErrors
	RequireField(&ve, "title", "Low stock")
	RequirePositiveID(&ve, "user_id", 3)
	ValidateEnum(&ve, "severity", "", ValidSeverities)
	ValidateEnum(&ve, "channel", "telegram", ValidChannels)
	ValidatePercentage(&ve, "vat_rate", 22)
	ValidateCurrency(&ve, "currency", "EUR")
	ValidateCurrency(&ve, "currency", "")
	ValidateEmail(&ve, "email", "ops@example.com")
	ValidateMaxLength(&ve, "name", "Gate 3m", MaxNameLength)
	assert.False(t, ve.HasErrors(), ve.Error())
}
