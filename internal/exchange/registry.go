package exchange

import "fmt"

// New constructs an Adapter for the given venue slug. Hyperliquid and
// dYdX require a Signer (the out-of-scope EIP-712/StarkEx signing
// boundary); every other venue ignores it.
func New(slug string, sign Signer) (Adapter, error) {
	spec, ok := LookupVenueSpec(slug)
	if !ok {
		return nil, fmt.Errorf("exchange: unknown venue %q", slug)
	}
	switch slug {
	case "hyperliquid":
		return newHyperliquidAdapter(spec, sign), nil
	case "dydx":
		return newDydxAdapter(spec, sign), nil
	case "kraken":
		return newKrakenAdapter(spec), nil
	default:
		return newGenericAdapter(spec), nil
	}
}

// SupportedVenues returns every venue slug known to the registry.
func SupportedVenues() []string {
	out := make([]string, 0, len(knownVenues))
	for slug := range knownVenues {
		out = append(out, slug)
	}
	return out
}
