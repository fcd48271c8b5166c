package receiver

import "sync"

// Registry maps provider names to normalizer implementations. Unknown
// providers fall through to the generic normalizer, so adding a provider
// never touches the receiver's control flow.
type Registry struct {
	mu          sync.RWMutex
	normalizers map[string]Normalizer
	fallback    Normalizer
}

func NewRegistry() *Registry {
	return &Registry{
		normalizers: make(map[string]Normalizer),
		fallback:    &GenericNormalizer{},
	}
}

func (r *Registry) Register(provider string, n Normalizer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.normalizers[provider] = n
}

func (r *Registry) Lookup(provider string) Normalizer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n, ok := r.normalizers[provider]; ok {
		return n
	}
	return r.fallback
}
