package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tracewire/tracewire/internal/model"
)

func okResult(module string, confidence model.Confidence, data model.Fields) model.ModuleResult {
	return model.ModuleResult{Module: module, Data: data, Confidence: confidence}
}

func failedResult(module string) model.ModuleResult {
	return model.ModuleResult{Module: module, Confidence: model.ConfidenceLow, Error: "query timed out"}
}

func TestBuildSummary_UnionsAndDedup(t *testing.T) {
	s := BuildSummary([]model.ModuleResult{
		okResult(model.ModuleIdentity, model.ConfidenceHigh, model.Fields{
			"name": "RAHUL SHARMA",
		}),
		okResult(model.ModuleLinkedEmails, model.ConfidenceHigh, model.Fields{
			"emails": []string{"rahul@example.com", "r.sharma@work.in"},
		}),
		okResult(model.ModuleBreachSearch, model.ConfidenceMedium, model.Fields{
			"breaches":      []string{"BigLeak 2021", "ShopDump"},
			"leaked_emails": []string{"rahul@example.com"},
			"leaked_phones": []string{"919812345678"},
		}),
		okResult(model.ModuleAlternateNumbers, model.ConfidenceMedium, model.Fields{
			"numbers": []string{"919812345678", "919898989898"},
		}),
	})

	assert.Equal(t, "RAHUL SHARMA", s.Identity.PrimaryName)
	// rahul@example.com appears in two modules but once in the union.
	assert.Equal(t, []string{"rahul@example.com", "r.sharma@work.in"}, s.Contact.Emails)
	assert.Equal(t, []string{"919812345678", "919898989898"}, s.Contact.PhoneNumbers)
	assert.Equal(t, 2, s.Breaches.BreachesFound)
	assert.Contains(t, s.Breaches.ExposedData, "rahul@example.com")
}

func TestBuildSummary_VerificationFlagsFromOwningModulesOnly(t *testing.T) {
	// An identity result mentioning a vehicle must not set the
	// registration flag; only the vehicle module owns it.
	s := BuildSummary([]model.ModuleResult{
		okResult(model.ModuleIdentity, model.ConfidenceHigh, model.Fields{
			"name": "RAHUL SHARMA", "address": "42 MG Road, near vehicle depot",
		}),
	})
	assert.False(t, s.Verification.VehicleRegistered)
	assert.False(t, s.Verification.IdentityLinked)

	s = BuildSummary([]model.ModuleResult{
		okResult(model.ModuleVehicle, model.ConfidenceHigh, model.Fields{
			"registration_number": "MH 12 AB 1234", "owner_name": "RAHUL SHARMA",
		}),
		okResult(model.ModuleIdentityVerification, model.ConfidenceHigh, model.Fields{
			"linked": true, "name": "RAHUL SHARMA",
		}),
	})
	assert.True(t, s.Verification.VehicleRegistered)
	assert.True(t, s.Verification.IdentityLinked)
	// Same name from two modules collapses.
	assert.Equal(t, []string{"RAHUL SHARMA"}, s.Identity.Names)
}

func TestBuildSummary_SocialProfiles(t *testing.T) {
	s := BuildSummary([]model.ModuleResult{
		okResult(model.ModuleSocial, model.ConfidenceHigh, model.Fields{
			"platforms": []string{"instagram", "telegram"},
			"profiles":  map[string]string{"instagram": "instagram.com/rahul.s"},
		}),
	})

	assert.Equal(t, []model.SocialProfile{
		{Platform: "instagram", URL: "instagram.com/rahul.s"},
		{Platform: "telegram"},
	}, s.Contact.SocialProfiles)
}

func TestBuildSummary_JSONRoundTrippedFields(t *testing.T) {
	// Results reloaded from the store carry []any and map[string]any.
	s := BuildSummary([]model.ModuleResult{
		okResult(model.ModuleLinkedEmails, model.ConfidenceHigh, model.Fields{
			"emails": []any{"rahul@example.com"},
		}),
		okResult(model.ModuleSocial, model.ConfidenceHigh, model.Fields{
			"platforms": []any{"twitter"},
			"profiles":  map[string]any{"twitter": "twitter.com/rahuls"},
		}),
	})

	assert.Equal(t, []string{"rahul@example.com"}, s.Contact.Emails)
	assert.Equal(t, []model.SocialProfile{{Platform: "twitter", URL: "twitter.com/rahuls"}}, s.Contact.SocialProfiles)
}

func TestBuildSummary_FailedModulesContributeNothing(t *testing.T) {
	s := BuildSummary([]model.ModuleResult{
		failedResult(model.ModuleIdentity),
		failedResult(model.ModuleBreachSearch),
	})
	assert.Empty(t, s.Identity.Names)
	assert.Equal(t, 0, s.Breaches.BreachesFound)
	assert.Equal(t, model.ConfidenceLow, s.Confidence)
}

func TestAggregateConfidence_Boundaries(t *testing.T) {
	tests := []struct {
		name  string
		total int
		high  int
		want  model.Confidence
	}{
		{"all high", 5, 5, model.ConfidenceHigh},
		{"exactly 60 percent", 5, 3, model.ConfidenceHigh},
		{"just under 60 percent", 10, 5, model.ConfidenceMedium},
		{"exactly 30 percent", 10, 3, model.ConfidenceMedium},
		{"just under 30 percent", 10, 2, model.ConfidenceLow},
		{"no modules", 0, 0, model.ConfidenceLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, aggregateConfidence(tt.total, tt.high))
		})
	}
}

func TestBuildSummary_FailedModulesDragConfidenceDown(t *testing.T) {
	// One high success out of three requested modules is a 1/3 ratio;
	// the failed rows stay in the denominator.
	s := BuildSummary([]model.ModuleResult{
		okResult(model.ModuleIdentity, model.ConfidenceHigh, model.Fields{"name": "RAHUL SHARMA"}),
		failedResult(model.ModuleBreachSearch),
		failedResult(model.ModuleSocial),
	})
	assert.Equal(t, model.ConfidenceMedium, s.Confidence)

	// With only the success present the same result rates high.
	s = BuildSummary([]model.ModuleResult{
		okResult(model.ModuleIdentity, model.ConfidenceHigh, model.Fields{"name": "RAHUL SHARMA"}),
	})
	assert.Equal(t, model.ConfidenceHigh, s.Confidence)
}
