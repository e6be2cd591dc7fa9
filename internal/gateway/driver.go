package gateway

import (
	"sync"

	"github.com/causekit/causekit/internal/config"
	"github.com/causekit/causekit/pkg/contracts"
	"github.com/causekit/causekit/pkg/models"
)

// driverRegistry maps provider kinds to their driver implementation.
// The standard drivers are registered at construction; RegisterDriver
// replaces by kind, which is how tests install mocks.
type driverRegistry struct {
	mu      sync.RWMutex
	drivers map[models.ProviderKind]contracts.Driver
}

func newDriverRegistry() *driverRegistry {
	return &driverRegistry{drivers: make(map[models.ProviderKind]contracts.Driver)}
}

func (r *driverRegistry) register(d contracts.Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[d.Kind()] = d
}

func (r *driverRegistry) get(kind models.ProviderKind) (contracts.Driver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[kind]
	return d, ok
}

func (r *driverRegistry) kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.drivers))
	for k := range r.drivers {
		out = append(out, string(k))
	}
	return out
}

// resolveTuning picks the effective generation settings for one call:
// request options override the provider entry.
func resolveTuning(provider *config.Provider, opts models.CallOptions) (maxTokens int, temperature float64) {
	maxTokens = provider.MaxTokens
	if opts.MaxTokens != nil {
		maxTokens = *opts.MaxTokens
	}
	temperature = provider.Temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	return maxTokens, temperature
}
