// Package paywall gates premium features on subscription and trial status.
//
// The hard gate and the trial banner are separate signals: a trial user may be
// allowed through and still be shown a banner.
package paywall

import (
	"fmt"

	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/userstate"
)

// DefaultBannerDays is the trial length at or below which the banner shows.
const DefaultBannerDays = 7

// TrialBanner is advisory and never blocks.
type TrialBanner struct {
	DaysRemaining int    `json:"days_remaining"`
	Message       string `json:"message"`
}

// Decision is the outcome of Check. PaywallFeature is set only when Allow is
// false.
type Decision struct {
	Allow          bool         `json:"allow"`
	PaywallFeature string       `json:"paywall_feature,omitempty"`
	Banner         *TrialBanner `json:"trial_banner,omitempty"`
}

// Gate decides whether a subject may use a feature.
type Gate struct {
	bannerDays int
	isPremium  func(feature string) bool
}

// NewGate returns a gate over the standard plan catalog.
func NewGate() *Gate {
	return &Gate{bannerDays: DefaultBannerDays, isPremium: IsPremium}
}

// WithBannerDays changes the banner threshold.
func (g *Gate) WithBannerDays(days int) *Gate {
	if days > 0 {
		g.bannerDays = days
	}
	return g
}

// Check evaluates one feature access.
func (g *Gate) Check(status userstate.SubscriptionStatus, trialDaysRemaining int, feature string) Decision {
	status = userstate.ParseSubscriptionStatus(string(status))

	switch {
	case status == userstate.SubscriptionActive:
		return Decision{Allow: true}
	case status == userstate.SubscriptionTrial && trialDaysRemaining > 0:
		return Decision{Allow: true, Banner: g.banner(trialDaysRemaining)}
	case !g.isPremium(feature):
		return Decision{Allow: true}
	default:
		return Decision{Allow: false, PaywallFeature: feature}
	}
}

// Banner returns the advisory banner for a trial, or nil.
func (g *Gate) Banner(status userstate.SubscriptionStatus, trialDaysRemaining int) *TrialBanner {
	if userstate.ParseSubscriptionStatus(string(status)) != userstate.SubscriptionTrial || trialDaysRemaining <= 0 {
		return nil
	}
	return g.banner(trialDaysRemaining)
}

func (g *Gate) banner(days int) *TrialBanner {
	if days > g.bannerDays {
		return nil
	}
	unit := "days"
	if days == 1 {
		unit = "day"
	}
	return &TrialBanner{
		DaysRemaining: days,
		Message:       fmt.Sprintf("Your trial ends in %d %s.", days, unit),
	}
}
