package paywall

// freeFeatures lists what the free plan includes. Every other feature needs a
// paid plan.
var freeFeatures = map[string]struct{}{
	"dashboard":       {},
	"onboarding":      {},
	"business_health": {},
	"settings":        {},
}

// IsPremium reports whether feature needs a paid plan. Anything the free
// plan does not list is premium, including unknown features.
func IsPremium(feature string) bool {
	_, free := freeFeatures[feature]
	return !free
}
