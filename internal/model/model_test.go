package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchType_Valid(t *testing.T) {
	assert.True(t, SearchTypePhone.Valid())
	assert.True(t, SearchTypeEmail.Valid())
	assert.False(t, SearchType("ip").Valid())
	assert.False(t, SearchType("").Valid())
}

func TestSearchStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusInProgress.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestSearchStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to SearchStatus
		want     bool
	}{
		{StatusPending, StatusInProgress, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusFailed, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusFailed, true},
		{StatusInProgress, StatusPending, false},
		{StatusCompleted, StatusInProgress, false},
		{StatusFailed, StatusPending, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestModuleCost(t *testing.T) {
	assert.Equal(t, int64(5), ModuleCost(ModuleIdentity))
	assert.Equal(t, int64(30), ModuleCost(ModuleBankDetails))
	assert.Equal(t, int64(0), ModuleCost("mystery"))
}

func TestTotalCost(t *testing.T) {
	assert.Equal(t, int64(8), TotalCost([]string{ModuleIdentity, ModuleSocial}))
	assert.Equal(t, int64(0), TotalCost(nil))
	// Unknown modules contribute nothing.
	assert.Equal(t, int64(5), TotalCost([]string{ModuleIdentity, "mystery"}))
}

func TestSensitiveModule(t *testing.T) {
	assert.True(t, SensitiveModule(ModuleIdentityVerification))
	assert.True(t, SensitiveModule(ModuleBankDetails))
	assert.True(t, SensitiveModule(ModuleVehicle))
	assert.False(t, SensitiveModule(ModuleIdentity))
	assert.False(t, SensitiveModule("mystery"))
}

func TestCatalog_StableOrder(t *testing.T) {
	catalog := Catalog()
	assert.Len(t, catalog, 9)
	assert.Equal(t, ModuleIdentity, catalog[0].Name)
	assert.Equal(t, ModuleBankDetails, catalog[8].Name)

	for _, info := range catalog {
		assert.True(t, KnownModule(info.Name))
		assert.Equal(t, ModuleCost(info.Name), info.Cost)
		assert.Equal(t, SensitiveModule(info.Name), info.Sensitive)
	}
}

func TestModuleResult_Succeeded(t *testing.T) {
	assert.True(t, ModuleResult{Module: ModuleIdentity}.Succeeded())
	assert.False(t, ModuleResult{Module: ModuleIdentity, Error: "query timeout"}.Succeeded())
}
