package retailer

import (
	"fmt"
	"sort"
	"time"

	"github.com/shelfwatch/backend/internal/domain"
)

// Registry is the strategy table keyed by retailer name. Invalid profiles are
// kept aside so lookups can explain why a retailer refuses to run.
type Registry struct {
	profiles map[string]*Profile
	invalid  map[string]error
}

// NewRegistry validates every profile and indexes the valid ones
func NewRegistry(profiles ...*Profile) *Registry {
	r := &Registry{
		profiles: make(map[string]*Profile, len(profiles)),
		invalid:  make(map[string]error),
	}
	for _, p := range profiles {
		r.Add(p)
	}
	return r
}

// Add validates and registers a profile. It returns the validation error, if any.
func (r *Registry) Add(p *Profile) error {
	if p.PriceFormat == "" {
		p.PriceFormat = PriceDot
	}
	if p.Concurrency <= 0 {
		p.Concurrency = 1
	}
	if err := p.Validate(); err != nil {
		r.invalid[p.Name] = err
		delete(r.profiles, p.Name)
		return err
	}
	delete(r.invalid, p.Name)
	r.profiles[p.Name] = p
	return nil
}

// Reject records a retailer whose configuration could not be turned into a profile
func (r *Registry) Reject(name string, err error) {
	r.invalid[name] = err
	delete(r.profiles, name)
}

// Get returns the profile for a retailer
func (r *Registry) Get(name string) (*Profile, error) {
	if p, ok := r.profiles[name]; ok {
		return p, nil
	}
	if err, ok := r.invalid[name]; ok {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnknownRetailer, name)
}

// Names returns the valid retailer names, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invalid returns validation errors keyed by retailer
func (r *Registry) Invalid() map[string]error {
	out := make(map[string]error, len(r.invalid))
	for k, v := range r.invalid {
		out[k] = v
	}
	return out
}

// ShortestMonitorInterval returns the smallest configured interval, or 0
func (r *Registry) ShortestMonitorInterval() time.Duration {
	var shortest time.Duration
	for _, p := range r.profiles {
		if p.MonitorInterval <= 0 {
			continue
		}
		if shortest == 0 || p.MonitorInterval < shortest {
			shortest = p.MonitorInterval
		}
	}
	return shortest
}
