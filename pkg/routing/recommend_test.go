package routing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/routing"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/userstate"
)

func TestBestRoute(t *testing.T) {
	tests := []struct {
		name string
		snap userstate.Snapshot
		want string
	}{
		{"crisis", userstate.Snapshot{ChaosScore: 81, ProfileCompleteness: 69}, "/clarity"},
		{"chaos at boundary is not crisis", userstate.Snapshot{ChaosScore: 80, ProfileCompleteness: 30}, "/dashboard"},
		{"chaos with high completeness", userstate.Snapshot{ChaosScore: 90, ProfileCompleteness: 75}, "/health"},
		{"crisis beats connected power user", userstate.Snapshot{
			ChaosScore: 95, ProfileCompleteness: 65,
			SetupPreference: userstate.SetupConnect, HasActiveIntegrations: true,
		}, "/clarity"},
		{"connected power user", userstate.Snapshot{
			ProfileCompleteness: 70, SetupPreference: userstate.SetupConnect, HasActiveIntegrations: true,
		}, "/feed"},
		{"connect without integrations", userstate.Snapshot{
			ProfileCompleteness: 90, SetupPreference: userstate.SetupConnect,
		}, "/health"},
		{"growth focus", userstate.Snapshot{ProfileCompleteness: 60, SetupPreference: userstate.SetupGrow}, "/recommendations"},
		{"growth below threshold", userstate.Snapshot{ProfileCompleteness: 55, SetupPreference: userstate.SetupGrow}, "/health"},
		{"general health", userstate.Snapshot{ProfileCompleteness: 50}, "/health"},
		{"default", userstate.Snapshot{ProfileCompleteness: 49}, "/dashboard"},
		{"empty snapshot", userstate.Snapshot{}, "/dashboard"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, routing.BestRoute(tt.snap))
		})
	}
}

func TestNextBestActions(t *testing.T) {
	snap := userstate.Snapshot{
		ChaosScore:            90,
		ProfileCompleteness:   65,
		SetupPreference:       userstate.SetupGrow,
		HasActiveIntegrations: true,
	}
	assert.Equal(t, []string{"/clarity", "/recommendations", "/health", "/dashboard"}, routing.NextBestActions(snap))
	assert.Equal(t, routing.BestRoute(snap), routing.NextBestActions(snap)[0])

	assert.Equal(t, []string{"/dashboard"}, routing.NextBestActions(userstate.Snapshot{}))
}

func TestNextBestActions_Dedup(t *testing.T) {
	recs := append(routing.DefaultRecommendations(), routing.Recommendation{
		ID:    "health_again",
		Match: func(userstate.Snapshot) bool { return true },
		Path:  "/health",
	})
	e := routing.NewCustomEngine(nil, recs)
	assert.Equal(t, []string{"/health", "/dashboard"}, e.NextBestActions(userstate.Snapshot{ProfileCompleteness: 55}))
}
