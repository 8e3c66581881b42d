package enrich

import (
	"behavior-risk-service/internal/model"
)

// Pseudonymizer replaces raw identifiers with stable opaque ones before
// they are compared against or written into the profile. Satisfied by
// hashing.Fingerprinter.
type Pseudonymizer interface {
	Fingerprint(raw string) string
}

// NetworkEnricher assesses one session's network signal against the user's
// frequent-network history. No distance or velocity component; the key is
// the composite name_type identifier.
type NetworkEnricher struct {
	pseudonymizer Pseudonymizer
}

func NewNetworkEnricher(pseudonymizer Pseudonymizer) *NetworkEnricher {
	return &NetworkEnricher{pseudonymizer: pseudonymizer}
}

// Enrich never fails; an empty signal degrades to the Unknown default.
// profile may be nil when the profile read failed.
func (e *NetworkEnricher) Enrich(signal model.NetworkSignal, profile *model.UserBehavioralProfile) model.NetworkBehavior {
	if signal.NetworkName == "" && signal.NetworkType == "" {
		return model.UnknownNetworkBehavior()
	}

	key := signal.Key()
	if e.pseudonymizer != nil {
		key = e.pseudonymizer.Fingerprint(key)
	}

	behavior := model.NetworkBehavior{
		NetworkKey:  key,
		NetworkType: signal.NetworkType,
	}

	if profile != nil {
		behavior.IsKnownNetwork = profile.FrequentNetworks.Has(key)
		behavior.IsFirstSeen = !behavior.IsKnownNetwork
	}

	return behavior
}
