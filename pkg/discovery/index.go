package discovery

import (
	"time"

	"github.com/ekaya-inc/relayscout/pkg/models"
)

// Evaluation is the outcome of offering an actor's newest record to the index.
type Evaluation struct {
	// Address is the payment address extracted from the record, "" if none.
	Address string
	// Admitted is true when this evaluation admitted a new address.
	Admitted bool
	// Order is the admission index (1..cap) of the address, 0 if not admitted.
	Order int
	// Rejected is true when a new address was turned away because the cap was full.
	Rejected bool
	// Goal is true when this admission made the admitted count reach the cap.
	Goal bool
}

type admission struct {
	actor string
	order int
	at    time.Time
}

// Index maps payment addresses to the actors that published them, tracks which
// sources corroborated each address and admits at most cap distinct addresses.
// It is not safe for concurrent use; Engine serializes all access.
type Index struct {
	cap           int
	corroboration map[string]*models.Provenance
	admitted      map[string]admission
	order         []string
	now           func() time.Time
}

// NewIndex creates an index admitting at most capacity addresses.
func NewIndex(capacity int) *Index {
	if capacity < 1 {
		capacity = models.DefaultDiscoveryCap
	}
	return &Index{
		cap:           capacity,
		corroboration: make(map[string]*models.Provenance),
		admitted:      make(map[string]admission),
		now:           time.Now,
	}
}

// Evaluate runs the admission procedure for an actor's newest record as
// delivered by source.
func (x *Index) Evaluate(actor string, newest *models.Record, source string) Evaluation {
	address := newest.Profile.Address()
	if address == "" {
		return Evaluation{}
	}

	// Corroboration is tracked whether or not the address is (or will be) admitted.
	sources, ok := x.corroboration[address]
	if !ok {
		sources = models.NewProvenance()
		x.corroboration[address] = sources
	}
	sources.Add(source)

	if a, ok := x.admitted[address]; ok {
		return Evaluation{Address: address, Order: a.order}
	}

	if len(x.order) >= x.cap {
		return Evaluation{Address: address, Rejected: true}
	}

	order := len(x.order) + 1
	x.admitted[address] = admission{actor: actor, order: order, at: x.now()}
	x.order = append(x.order, address)

	return Evaluation{
		Address:  address,
		Admitted: true,
		Order:    order,
		Goal:     order == x.cap,
	}
}

// IsAdmitted reports whether address has been admitted.
func (x *Index) IsAdmitted(address string) bool {
	_, ok := x.admitted[address]
	return ok
}

// Corroboration returns the sources that delivered address, in first-seen order.
func (x *Index) Corroboration(address string) []string {
	sources, ok := x.corroboration[address]
	if !ok {
		return nil
	}
	return sources.List()
}

// Count returns the number of admitted addresses.
func (x *Index) Count() int {
	return len(x.order)
}

// Cap returns the admission limit.
func (x *Index) Cap() int {
	return x.cap
}

// Full reports whether no further addresses can be admitted.
func (x *Index) Full() bool {
	return len(x.order) >= x.cap
}

// Entries returns the admitted addresses in admission order. Versions is left
// for the caller to fill from the history store.
func (x *Index) Entries() []models.DiscoveredAddress {
	out := make([]models.DiscoveredAddress, 0, len(x.order))
	for _, address := range x.order {
		a := x.admitted[address]
		out = append(out, models.DiscoveredAddress{
			Address:    address,
			Actor:      a.actor,
			Order:      a.order,
			Sources:    x.Corroboration(address),
			AdmittedAt: a.at,
		})
	}
	return out
}

// Reset clears admissions and corroboration.
func (x *Index) Reset() {
	x.corroboration = make(map[string]*models.Provenance)
	x.admitted = make(map[string]admission)
	x.order = nil
}
