package tracker

import (
	"github.com/tracewire/tracewire/internal/model"
)

// Aggregate confidence thresholds over the fraction of all requested
// modules rated high; failed modules drag the ratio down.
const (
	summaryHighRatio   = 0.6
	summaryMediumRatio = 0.3
)

// BuildSummary synthesizes the cross-module insight object from one
// search's module results. Failed modules contribute nothing. Names,
// contact points and financial identifiers are deduplicated unions;
// verification flags come only from their owning modules.
func BuildSummary(results []model.ModuleResult) *model.Summary {
	s := &model.Summary{
		Identity:  model.IdentitySummary{Names: []string{}},
		Contact:   model.ContactSummary{Emails: []string{}, PhoneNumbers: []string{}, SocialProfiles: []model.SocialProfile{}},
		Financial: model.FinancialSummary{PaymentIDs: []string{}, Banks: []string{}},
		Breaches:  model.BreachSummary{ExposedData: []string{}},
	}

	var high int
	for _, r := range results {
		if !r.Succeeded() {
			continue
		}
		if r.Confidence == model.ConfidenceHigh {
			high++
		}

		switch r.Module {
		case model.ModuleIdentity:
			addName(s, str(r.Data, "name"))
		case model.ModuleSocial:
			addSocialProfiles(s, r.Data)
		case model.ModulePaymentID:
			s.Financial.PaymentIDs = appendUnique(s.Financial.PaymentIDs, strs(r.Data, "payment_ids")...)
			addBank(s, str(r.Data, "bank_name"))
		case model.ModuleVehicle:
			addName(s, str(r.Data, "owner_name"))
			if str(r.Data, "registration_number") != "" {
				s.Verification.VehicleRegistered = true
			}
		case model.ModuleIdentityVerification:
			addName(s, str(r.Data, "name"))
			if linked, ok := r.Data["linked"].(bool); ok && linked {
				s.Verification.IdentityLinked = true
			}
		case model.ModuleBreachSearch:
			breaches := strs(r.Data, "breaches")
			s.Breaches.BreachesFound += len(breaches)
			s.Breaches.ExposedData = appendUnique(s.Breaches.ExposedData, strs(r.Data, "leaked_emails")...)
			s.Breaches.ExposedData = appendUnique(s.Breaches.ExposedData, strs(r.Data, "leaked_phones")...)
			s.Contact.Emails = appendUnique(s.Contact.Emails, strs(r.Data, "leaked_emails")...)
			s.Contact.PhoneNumbers = appendUnique(s.Contact.PhoneNumbers, strs(r.Data, "leaked_phones")...)
		case model.ModuleLinkedEmails:
			s.Contact.Emails = appendUnique(s.Contact.Emails, strs(r.Data, "emails")...)
		case model.ModuleAlternateNumbers:
			s.Contact.PhoneNumbers = appendUnique(s.Contact.PhoneNumbers, strs(r.Data, "numbers")...)
		case model.ModuleBankDetails:
			for _, b := range strs(r.Data, "banks") {
				addBank(s, b)
			}
		}
	}

	if len(s.Identity.Names) > 0 {
		s.Identity.PrimaryName = s.Identity.Names[0]
	}
	s.Confidence = aggregateConfidence(len(results), high)
	return s
}

func aggregateConfidence(total, high int) model.Confidence {
	if total == 0 {
		return model.ConfidenceLow
	}
	ratio := float64(high) / float64(total)
	switch {
	case ratio >= summaryHighRatio:
		return model.ConfidenceHigh
	case ratio >= summaryMediumRatio:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}

func addName(s *model.Summary, name string) {
	if name == "" {
		return
	}
	s.Identity.Names = appendUnique(s.Identity.Names, name)
}

func addBank(s *model.Summary, bank string) {
	if bank == "" {
		return
	}
	s.Financial.Banks = appendUnique(s.Financial.Banks, bank)
}

func addSocialProfiles(s *model.Summary, data model.Fields) {
	profiles := map[string]string{}
	if m, ok := data["profiles"].(map[string]string); ok {
		profiles = m
	} else if m, ok := data["profiles"].(map[string]any); ok {
		// Results reloaded from the store come back as generic JSON maps.
		for k, v := range m {
			if sv, ok := v.(string); ok {
				profiles[k] = sv
			}
		}
	}
	for _, platform := range strs(data, "platforms") {
		s.Contact.SocialProfiles = append(s.Contact.SocialProfiles, model.SocialProfile{
			Platform: platform,
			URL:      profiles[platform],
		})
	}
}

func str(data model.Fields, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

// strs reads a string slice field, tolerating the []any form JSON
// round-trips produce.
func strs(data model.Fields, key string) []string {
	switch v := data[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func appendUnique(dst []string, values ...string) []string {
	seen := make(map[string]bool, len(dst))
	for _, v := range dst {
		seen[v] = true
	}
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		dst = append(dst, v)
	}
	return dst
}
