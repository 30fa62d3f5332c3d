package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tracewire/tracewire/internal/model"
)

// Fixture texts mirror the reply styles seen from live bots: labeled
// lines, decorated unicode, partial answers.

func TestParse_Identity_FullReply(t *testing.T) {
	set := NewSet()
	fields := set.Parse(model.ModuleIdentity, `Name: RAHUL SHARMA
Address: 42 MG Road, Andheri West
City: Mumbai
State: Maharashtra
Operator: Jio`)

	assert.Equal(t, "RAHUL SHARMA", fields["name"])
	assert.Equal(t, "Mumbai", fields["city"])
	assert.Equal(t, "Maharashtra", fields["state"])
	assert.Equal(t, "Jio", fields["operator"])
	assert.Equal(t, model.ConfidenceHigh, Score(fields))
}

func TestParse_Identity_AlternateLabels(t *testing.T) {
	set := NewSet()
	fields := set.Parse(model.ModuleIdentity, "Registered to: PRIYA VERMA\nOperator: Airtel")

	assert.Equal(t, "PRIYA VERMA", fields["name"])
	assert.Equal(t, "Airtel", fields["operator"])
	// 2 of 5 fields filled.
	assert.Equal(t, model.ConfidenceMedium, Score(fields))
}

func TestParse_Identity_NoMatch(t *testing.T) {
	set := NewSet()
	fields := set.Parse(model.ModuleIdentity, "No records found for this number.")

	assert.Equal(t, "", fields["name"])
	assert.Equal(t, model.ConfidenceLow, Score(fields))
}

func TestParse_StylizedUnicodeNormalized(t *testing.T) {
	set := NewSet()
	// Bots decorate labels with mathematical bold letters; NFKC folds
	// them back to ASCII.
	fields := set.Parse(model.ModuleIdentity, "𝐍𝐚𝐦𝐞: RAHUL SHARMA")

	assert.Equal(t, "RAHUL SHARMA", fields["name"])
}

func TestParse_Social(t *testing.T) {
	set := NewSet()
	fields := set.Parse(model.ModuleSocial, `Found profiles:
Instagram: instagram.com/rahul.s
Also active on telegram`)

	assert.Equal(t, []string{"instagram", "telegram"}, fields["platforms"])
	profiles := fields["profiles"].(map[string]string)
	assert.Equal(t, "instagram.com/rahul.s", profiles["instagram"])
}

func TestParse_Payment(t *testing.T) {
	set := NewSet()
	fields := set.Parse(model.ModulePaymentID, `UPI IDs found:
rahul.s@okhdfc
9812345678@paytm
Bank: HDFC Bank`)

	assert.Equal(t, []string{"rahul.s@okhdfc", "9812345678@paytm"}, fields["payment_ids"])
	assert.Equal(t, "rahul.s@okhdfc", fields["primary_payment_id"])
	assert.Equal(t, "HDFC Bank", fields["bank_name"])
	assert.Equal(t, model.ConfidenceHigh, Score(fields))
}

func TestParse_Vehicle(t *testing.T) {
	set := NewSet()
	fields := set.Parse(model.ModuleVehicle, `Registration: MH 12 AB 1234
Owner: RAHUL SHARMA
Model: Maruti Swift
Reg. Date: 2019-04-11`)

	assert.Equal(t, "MH 12 AB 1234", fields["registration_number"])
	assert.Equal(t, "RAHUL SHARMA", fields["owner_name"])
	assert.Equal(t, "Maruti Swift", fields["make_model"])
	assert.Equal(t, "2019-04-11", fields["registration_date"])
}

func TestParse_Verification(t *testing.T) {
	set := NewSet()

	fields := NewSet().Parse(model.ModuleIdentityVerification, "Number is linked to a verified identity.\nName: RAHUL SHARMA")
	assert.Equal(t, true, fields["linked"])
	assert.Equal(t, "RAHUL SHARMA", fields["name"])

	fields = set.Parse(model.ModuleIdentityVerification, "No identity found.")
	assert.Equal(t, false, fields["linked"])
}

func TestParse_Verification_NegatedKeywords(t *testing.T) {
	set := NewSet()
	for _, text := range []string{
		"This number is not linked to any identity.",
		"Number NOT registered with any provider.",
		"Status: unlinked",
	} {
		fields := set.Parse(model.ModuleIdentityVerification, text)
		assert.Equal(t, false, fields["linked"], "text %q", text)
	}
}

func TestParse_Breach(t *testing.T) {
	set := NewSet()
	fields := set.Parse(model.ModuleBreachSearch, `Breach: BigLeak 2021
Leak: ShopDump
Exposed: rahul@example.com, 919812345678`)

	assert.Equal(t, []string{"BigLeak 2021", "ShopDump"}, fields["breaches"])
	assert.Equal(t, []string{"rahul@example.com"}, fields["leaked_emails"])
	assert.Equal(t, []string{"919812345678"}, fields["leaked_phones"])
}

func TestParse_LinkedEmails_Dedup(t *testing.T) {
	set := NewSet()
	fields := set.Parse(model.ModuleLinkedEmails, "rahul@example.com\nrahul@example.com\nr.sharma@work.in")

	assert.Equal(t, []string{"rahul@example.com", "r.sharma@work.in"}, fields["emails"])
	assert.Equal(t, "rahul@example.com", fields["primary_email"])
}

func TestParse_AlternateNumbers(t *testing.T) {
	set := NewSet()
	fields := set.Parse(model.ModuleAlternateNumbers, `919898989898: Airtel
917700112233: Vi`)

	assert.Equal(t, []string{"919898989898", "917700112233"}, fields["numbers"])
	operators := fields["operators"].(map[string]string)
	assert.Equal(t, "Airtel", operators["919898989898"])
	assert.Equal(t, "Vi", operators["917700112233"])
}

func TestParse_BankDetails(t *testing.T) {
	set := NewSet()
	fields := set.Parse(model.ModuleBankDetails, "Account at HDFC Bank Mumbai\nIFSC: HDFC0001234")

	banks := fields["banks"].([]string)
	assert.NotEmpty(t, banks)
	assert.Equal(t, []string{"HDFC0001234"}, fields["ifsc_codes"])
}

func TestParse_UnknownModuleFallsBack(t *testing.T) {
	set := NewSet()
	fields := set.Parse("mystery", "some reply")

	assert.Equal(t, model.Fields{"raw_text": "some reply"}, fields)
}

func TestScore_Thresholds(t *testing.T) {
	tests := []struct {
		name   string
		fields model.Fields
		want   model.Confidence
	}{
		{"empty map", model.Fields{}, model.ConfidenceLow},
		{"all filled", model.Fields{"a": "x", "b": "y"}, model.ConfidenceHigh},
		{"seven of ten", model.Fields{
			"a": "x", "b": "x", "c": "x", "d": "x", "e": "x", "f": "x", "g": "x",
			"h": "", "i": "", "j": "",
		}, model.ConfidenceHigh},
		{"six of ten", model.Fields{
			"a": "x", "b": "x", "c": "x", "d": "x", "e": "x", "f": "x",
			"g": "", "h": "", "i": "", "j": "",
		}, model.ConfidenceMedium},
		{"four of ten", model.Fields{
			"a": "x", "b": "x", "c": "x", "d": "x",
			"e": "", "f": "", "g": "", "h": "", "i": "", "j": "",
		}, model.ConfidenceMedium},
		{"three of ten", model.Fields{
			"a": "x", "b": "x", "c": "x",
			"d": "", "e": "", "f": "", "g": "", "h": "", "i": "", "j": "",
		}, model.ConfidenceLow},
		{"empty collections count empty", model.Fields{
			"a": []string{}, "b": map[string]string{}, "c": false,
		}, model.ConfidenceLow},
		{"filled collections count", model.Fields{
			"a": []string{"x"}, "b": map[string]string{"k": "v"}, "c": true,
		}, model.ConfidenceHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.fields))
		})
	}
}
