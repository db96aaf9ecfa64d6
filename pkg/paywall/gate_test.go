package paywall_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/paywall"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/userstate"
)

func TestCheck(t *testing.T) {
	gate := paywall.NewGate()

	tests := []struct {
		name       string
		status     userstate.SubscriptionStatus
		days       int
		feature    string
		allow      bool
		banner     bool
		paywallFor string
	}{
		{"active premium", userstate.SubscriptionActive, 0, "ai_insights", true, false, ""},
		{"active ignores expired trial days", userstate.SubscriptionActive, -10, "reports", true, false, ""},
		{"long trial", userstate.SubscriptionTrial, 14, "ai_insights", true, false, ""},
		{"trial at banner threshold", userstate.SubscriptionTrial, 7, "ai_insights", true, true, ""},
		{"last trial day", userstate.SubscriptionTrial, 1, "feed", true, true, ""},
		{"trial ended today", userstate.SubscriptionTrial, 0, "feed", false, false, "feed"},
		{"trial long expired", userstate.SubscriptionTrial, -3, "feed", false, false, "feed"},
		{"expired premium", userstate.SubscriptionExpired, 0, "recommendations", false, false, "recommendations"},
		{"none premium", userstate.SubscriptionNone, 0, "clarity", false, false, "clarity"},
		{"none free feature", userstate.SubscriptionNone, 0, "dashboard", true, false, ""},
		{"expired trial free feature", userstate.SubscriptionTrial, -1, "settings", true, false, ""},
		{"unknown feature is premium", userstate.SubscriptionNone, 0, "teleport", false, false, "teleport"},
		{"unknown status treated as none", "cancelled", 0, "reports", false, false, "reports"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := gate.Check(tt.status, tt.days, tt.feature)
			assert.Equal(t, tt.allow, d.Allow)
			assert.Equal(t, tt.banner, d.Banner != nil)
			assert.Equal(t, tt.paywallFor, d.PaywallFeature)
		})
	}
}

func TestBanner(t *testing.T) {
	gate := paywall.NewGate()

	b := gate.Banner(userstate.SubscriptionTrial, 3)
	require.NotNil(t, b)
	assert.Equal(t, 3, b.DaysRemaining)
	assert.Equal(t, "Your trial ends in 3 days.", b.Message)

	assert.Equal(t, "Your trial ends in 1 day.", gate.Banner(userstate.SubscriptionTrial, 1).Message)
	assert.Nil(t, gate.Banner(userstate.SubscriptionTrial, 8))
	assert.Nil(t, gate.Banner(userstate.SubscriptionTrial, 0))
	assert.Nil(t, gate.Banner(userstate.SubscriptionActive, 3))

	assert.NotNil(t, paywall.NewGate().WithBannerDays(10).Banner(userstate.SubscriptionTrial, 9))
}

func TestIsPremium(t *testing.T) {
	for _, f := range []string{"dashboard", "onboarding", "business_health", "settings"} {
		assert.False(t, paywall.IsPremium(f), f)
	}
	assert.True(t, paywall.IsPremium("feed"))
	assert.True(t, paywall.IsPremium("reports"))
	assert.True(t, paywall.IsPremium("not-a-feature"))
}
