package parse

import (
	"regexp"
	"strings"

	"github.com/tracewire/tracewire/internal/model"
)

// Shared patterns. Field rules are ordered: the first matching pattern
// wins for each field.
var (
	reEmail = regexp.MustCompile(`[\w.-]+@[\w.-]+`)
	rePayID = regexp.MustCompile(`[\w.-]+@\w+`)
	rePhone = regexp.MustCompile(`\+?\d{10,15}`)
	reIFSC  = regexp.MustCompile(`[A-Z]{4}0[A-Z0-9]{6}`)
)

// firstMatch returns the trimmed first capture group of the first pattern
// that matches, or "".
func firstMatch(text string, patterns ...*regexp.Regexp) string {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// dedup removes duplicates preserving first-seen order.
func dedup(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// identityParser extracts the registered name, address and carrier.
type identityParser struct{}

var (
	reIDName = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Name[:\s]+([^\n]+)`),
		regexp.MustCompile(`(?i)Registered to[:\s]+([^\n]+)`),
		regexp.MustCompile(`(?i)Owner[:\s]+([^\n]+)`),
	}
	reIDAddress  = regexp.MustCompile(`(?is)Address[:\s]+(.+?)(?:\n\n|$)`)
	reIDCity     = regexp.MustCompile(`(?i)City[:\s]+([^\n]+)`)
	reIDState    = regexp.MustCompile(`(?i)State[:\s]+([^\n]+)`)
	reIDOperator = regexp.MustCompile(`(?i)Operator[:\s]+([^\n]+)`)
)

func (identityParser) Module() string { return model.ModuleIdentity }

func (identityParser) Parse(text string) model.Fields {
	return model.Fields{
		"name":     firstMatch(text, reIDName...),
		"address":  firstMatch(text, reIDAddress),
		"city":     firstMatch(text, reIDCity),
		"state":    firstMatch(text, reIDState),
		"operator": firstMatch(text, reIDOperator),
	}
}

// socialParser detects platform mentions and profile URLs.
type socialParser struct{}

var socialPlatforms = []string{"facebook", "instagram", "twitter", "linkedin", "telegram", "whatsapp"}

func (socialParser) Module() string { return model.ModuleSocial }

func (socialParser) Parse(text string) model.Fields {
	lower := strings.ToLower(text)
	platforms := []string{}
	profiles := map[string]string{}
	for _, platform := range socialPlatforms {
		if !strings.Contains(lower, platform) {
			continue
		}
		platforms = append(platforms, platform)
		urlRe := regexp.MustCompile(`(?i)` + platform + `\.com/[^\s]+`)
		if m := urlRe.FindString(text); m != "" {
			profiles[platform] = m
		}
	}
	return model.Fields{
		"platforms": platforms,
		"profiles":  profiles,
	}
}

// paymentParser extracts payment identifiers and the issuing bank.
type paymentParser struct{}

var rePayBank = regexp.MustCompile(`(?i)(?:Bank|PSP)[:\s]+([^\n]+)`)

func (paymentParser) Module() string { return model.ModulePaymentID }

func (paymentParser) Parse(text string) model.Fields {
	ids := dedup(rePayID.FindAllString(text, -1))
	primary := ""
	if len(ids) > 0 {
		primary = ids[0]
	}
	return model.Fields{
		"payment_ids":        ids,
		"primary_payment_id": primary,
		"bank_name":          firstMatch(text, rePayBank),
	}
}

// vehicleParser extracts registration details.
type vehicleParser struct{}

var (
	reVehicleReg   = regexp.MustCompile(`(?i)(?:Registration|Reg\.?\s*No\.?)[:\s]+([A-Z]{2}[\s-]?\d{1,2}[\s-]?[A-Z]{1,2}[\s-]?\d{1,4})`)
	reVehicleOwner = regexp.MustCompile(`(?i)Owner[:\s]+([^\n]+)`)
	reVehicleModel = regexp.MustCompile(`(?i)(?:Make|Model|Vehicle)[:\s]+([^\n]+)`)
	reVehicleDate  = regexp.MustCompile(`(?i)(?:Registered on|Reg\.?\s*Date)[:\s]+([^\n]+)`)
)

func (vehicleParser) Module() string { return model.ModuleVehicle }

func (vehicleParser) Parse(text string) model.Fields {
	return model.Fields{
		"registration_number": firstMatch(text, reVehicleReg),
		"owner_name":          firstMatch(text, reVehicleOwner),
		"make_model":          firstMatch(text, reVehicleModel),
		"registration_date":   firstMatch(text, reVehicleDate),
	}
}

// verificationParser extracts the identity linkage flag and holder name.
type verificationParser struct{}

var (
	reVerifyName = regexp.MustCompile(`(?i)Name[:\s]+([^\n]+)`)
	reVerifyDOB  = regexp.MustCompile(`(?i)(?:DOB|Date of Birth)[:\s]+([^\n]+)`)
)

func (verificationParser) Module() string { return model.ModuleIdentityVerification }

func (verificationParser) Parse(text string) model.Fields {
	lower := strings.ToLower(text)
	linked := strings.Contains(lower, "linked") || strings.Contains(lower, "registered")
	// Negative replies also mention the keywords ("not linked").
	for _, neg := range []string{"not linked", "not registered", "unlinked", "unregistered"} {
		if strings.Contains(lower, neg) {
			linked = false
			break
		}
	}
	return model.Fields{
		"linked":  linked,
		"name":    firstMatch(text, reVerifyName),
		"dob":     firstMatch(text, reVerifyDOB),
		"address": firstMatch(text, reIDAddress),
	}
}

// breachParser extracts breach mentions and leaked contact data.
type breachParser struct{}

var reBreach = regexp.MustCompile(`(?i)(?:Breach|Database|Leak)[:\s]+([^\n]+)`)

func (breachParser) Module() string { return model.ModuleBreachSearch }

func (breachParser) Parse(text string) model.Fields {
	breaches := []string{}
	for _, m := range reBreach.FindAllStringSubmatch(text, -1) {
		breaches = append(breaches, strings.TrimSpace(m[1]))
	}
	return model.Fields{
		"breaches":      breaches,
		"leaked_emails": dedup(reEmail.FindAllString(text, -1)),
		"leaked_phones": dedup(rePhone.FindAllString(text, -1)),
	}
}

// linkedEmailsParser extracts email addresses associated with the value.
type linkedEmailsParser struct{}

func (linkedEmailsParser) Module() string { return model.ModuleLinkedEmails }

func (linkedEmailsParser) Parse(text string) model.Fields {
	emails := dedup(reEmail.FindAllString(text, -1))
	primary := ""
	if len(emails) > 0 {
		primary = emails[0]
	}
	return model.Fields{
		"emails":        emails,
		"primary_email": primary,
	}
}

// alternateNumbersParser extracts other numbers and their carriers.
type alternateNumbersParser struct{}

func (alternateNumbersParser) Module() string { return model.ModuleAlternateNumbers }

func (alternateNumbersParser) Parse(text string) model.Fields {
	numbers := dedup(rePhone.FindAllString(text, -1))
	operators := map[string]string{}
	for _, number := range numbers {
		opRe := regexp.MustCompile(regexp.QuoteMeta(number) + `[:\s]+([^\n]+)`)
		if m := opRe.FindStringSubmatch(text); m != nil {
			operators[number] = strings.TrimSpace(m[1])
		}
	}
	return model.Fields{
		"numbers":   numbers,
		"operators": operators,
	}
}

// bankParser extracts bank names and IFSC codes.
type bankParser struct{}

var bankKeywords = []string{"bank", "sbi", "hdfc", "icici", "axis", "pnb"}

func (bankParser) Module() string { return model.ModuleBankDetails }

func (bankParser) Parse(text string) model.Fields {
	lower := strings.ToLower(text)
	banks := []string{}
	for _, kw := range bankKeywords {
		if !strings.Contains(lower, kw) {
			continue
		}
		bankRe := regexp.MustCompile(`(?i)(` + kw + `[\w\s]+)`)
		if m := bankRe.FindStringSubmatch(text); m != nil {
			banks = append(banks, strings.TrimSpace(m[1]))
		}
	}
	return model.Fields{
		"banks":         dedup(banks),
		"ifsc_codes":    dedup(reIFSC.FindAllString(text, -1)),
		"account_types": []string{},
	}
}
