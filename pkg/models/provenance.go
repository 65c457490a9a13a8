// Package models contains domain types for relayscout.
package models

// Origin describes which pipeline delivered a record to the ingestion engine.
type Origin string

// Origin constants. Discovery traffic is gated by the session state; enrichment
// traffic is not.
const (
	OriginDiscovery  Origin = "discovery"
	OriginEnrichment Origin = "enrichment"
)

// String returns the string representation of an Origin.
func (o Origin) String() string {
	return string(o)
}

// IsValid returns true if the origin is a known origin.
func (o Origin) IsValid() bool {
	switch o {
	case OriginDiscovery, OriginEnrichment:
		return true
	default:
		return false
	}
}

// Provenance is an insert-only set of source addresses, kept in first-seen order.
// The zero value is an empty set ready for use.
type Provenance struct {
	order []string
	seen  map[string]struct{}
}

// NewProvenance returns a set containing the given sources.
func NewProvenance(sources ...string) *Provenance {
	p := &Provenance{}
	for _, s := range sources {
		p.Add(s)
	}
	return p
}

// Add inserts source and reports whether it was new.
func (p *Provenance) Add(source string) bool {
	if p.seen == nil {
		p.seen = make(map[string]struct{})
	}
	if _, ok := p.seen[source]; ok {
		return false
	}
	p.seen[source] = struct{}{}
	p.order = append(p.order, source)
	return true
}

// Contains reports whether source is in the set.
func (p *Provenance) Contains(source string) bool {
	_, ok := p.seen[source]
	return ok
}

// Len returns the number of distinct sources.
func (p *Provenance) Len() int {
	return len(p.order)
}

// List returns a copy of the sources in first-seen order.
func (p *Provenance) List() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}
