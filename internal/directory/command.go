package directory

import (
	"strings"

	"github.com/tracewire/tracewire/internal/model"
)

const (
	// defaultCountryPrefix is prepended to bare domestic phone numbers
	// before they are sent to a bot.
	defaultCountryPrefix = "91"
	domesticDigits       = 10
)

// commandTemplates maps a module to the slash command its serving bots
// expect. Unknown modules fall through to the raw value.
var commandTemplates = map[string]string{
	model.ModuleIdentity:             "/search",
	model.ModuleSocial:               "/social",
	model.ModulePaymentID:            "/upi",
	model.ModuleVehicle:              "/vehicle",
	model.ModuleIdentityVerification: "/verify",
	model.ModuleBreachSearch:         "/deep",
	model.ModuleLinkedEmails:         "/emails",
	model.ModuleAlternateNumbers:     "/altnums",
	model.ModuleBankDetails:          "/bank",
}

// FormatCommand builds the outbound text command for a module query.
// Phone values are normalized before insertion; email values pass through
// unchanged.
func FormatCommand(module string, searchType model.SearchType, value string) string {
	if searchType == model.SearchTypePhone {
		value = NormalizePhone(value)
	}
	tmpl, ok := commandTemplates[module]
	if !ok {
		return value
	}
	return tmpl + " " + value
}

// NormalizePhone strips non-digit characters and prepends the default
// country prefix when the stripped value has exactly the domestic digit
// length and lacks one.
func NormalizePhone(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == domesticDigits && !strings.HasPrefix(digits, defaultCountryPrefix) {
		return defaultCountryPrefix + digits
	}
	return digits
}
