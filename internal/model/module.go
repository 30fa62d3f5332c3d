package model

// Module names recognized by the lookup engine. Each maps to a capability
// a serving bot declares and to a fixed credit cost.
const (
	ModuleIdentity             = "identity"
	ModuleSocial               = "social"
	ModulePaymentID            = "payment-id"
	ModuleVehicle              = "vehicle"
	ModuleIdentityVerification = "identity-verification"
	ModuleBreachSearch         = "breach-search"
	ModuleLinkedEmails         = "linked-emails"
	ModuleAlternateNumbers     = "alternate-numbers"
	ModuleBankDetails          = "bank-details"
)

// moduleCosts is the fixed per-module credit cost table.
var moduleCosts = map[string]int64{
	ModuleIdentity:             5,
	ModuleSocial:               3,
	ModulePaymentID:            10,
	ModuleVehicle:              15,
	ModuleIdentityVerification: 20,
	ModuleBreachSearch:         25,
	ModuleLinkedEmails:         8,
	ModuleAlternateNumbers:     10,
	ModuleBankDetails:          30,
}

// sensitiveModules require an accepted disclaimer before submission.
var sensitiveModules = map[string]bool{
	ModuleIdentityVerification: true,
	ModuleBankDetails:          true,
	ModuleVehicle:              true,
}

// catalogOrder fixes the listing order of the module catalog.
var catalogOrder = []string{
	ModuleIdentity,
	ModuleSocial,
	ModulePaymentID,
	ModuleVehicle,
	ModuleIdentityVerification,
	ModuleBreachSearch,
	ModuleLinkedEmails,
	ModuleAlternateNumbers,
	ModuleBankDetails,
}

// ModuleCost returns the credit cost of a module, or 0 for unknown modules.
func ModuleCost(module string) int64 {
	return moduleCosts[module]
}

// KnownModule reports whether the module name is in the cost table.
func KnownModule(module string) bool {
	_, ok := moduleCosts[module]
	return ok
}

// SensitiveModule reports whether the module requires disclaimer acceptance.
func SensitiveModule(module string) bool {
	return sensitiveModules[module]
}

// TotalCost sums the cost of the given modules.
func TotalCost(modules []string) int64 {
	var total int64
	for _, m := range modules {
		total += moduleCosts[m]
	}
	return total
}

// ModuleInfo describes one catalog entry.
type ModuleInfo struct {
	Name      string `json:"name"`
	Cost      int64  `json:"cost"`
	Sensitive bool   `json:"sensitive"`
}

// Catalog returns the static module catalog in a stable order.
func Catalog() []ModuleInfo {
	infos := make([]ModuleInfo, 0, len(catalogOrder))
	for _, name := range catalogOrder {
		infos = append(infos, ModuleInfo{
			Name:      name,
			Cost:      moduleCosts[name],
			Sensitive: sensitiveModules[name],
		})
	}
	return infos
}
