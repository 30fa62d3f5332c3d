package model

// SocialProfile pairs a platform with a discovered profile URL.
type SocialProfile struct {
	Platform string `json:"platform"`
	URL      string `json:"url,omitempty"`
}

// IdentitySummary collects names found across modules.
type IdentitySummary struct {
	Names       []string `json:"names"`
	PrimaryName string   `json:"primary_name,omitempty"`
}

// ContactSummary is the deduplicated union of contact points.
type ContactSummary struct {
	Emails         []string        `json:"emails"`
	PhoneNumbers   []string        `json:"phone_numbers"`
	SocialProfiles []SocialProfile `json:"social_profiles"`
}

// FinancialSummary is the deduplicated union of financial identifiers.
type FinancialSummary struct {
	PaymentIDs []string `json:"payment_ids"`
	Banks      []string `json:"banks"`
}

// VerificationSummary holds boolean linkage flags sourced from specific
// modules only.
type VerificationSummary struct {
	IdentityLinked    bool `json:"identity_linked"`
	VehicleRegistered bool `json:"vehicle_registered"`
}

// BreachSummary reports breach exposure from the breach-search module.
type BreachSummary struct {
	BreachesFound int      `json:"breaches_found"`
	ExposedData   []string `json:"exposed_data"`
}

// Summary is the cross-module insight object synthesized from all module
// results of one search.
type Summary struct {
	Identity     IdentitySummary     `json:"identity"`
	Contact      ContactSummary      `json:"contact"`
	Financial    FinancialSummary    `json:"financial"`
	Verification VerificationSummary `json:"verification"`
	Breaches     BreachSummary       `json:"breaches"`
	Confidence   Confidence          `json:"confidence"`
}
