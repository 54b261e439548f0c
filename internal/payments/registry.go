package payments

// Registry is the process-wide provider table, built once at startup and
// injected where needed. No lazy population: first-call latency and the
// build-once race go away by constructing it in main.
type Registry struct {
	providers map[string]Provider
	ids       []string
}

// NewRegistry returns a registry over the fixed provider set.
func NewRegistry() *Registry {
	all := []Provider{
		bankTransfer{},
		fpsQR{},
		walletAddress{},
		hostedCheckout{},
	}
	r := &Registry{providers: make(map[string]Provider, len(all))}
	for _, p := range all {
		r.providers[p.ID()] = p
		r.ids = append(r.ids, p.ID())
	}
	return r
}

// Get returns the provider for id. The second return is false for an
// unrecognized id; callers map that to a validation error.
func (r *Registry) Get(id string) (Provider, bool) {
	p, ok := r.providers[id]
	return p, ok
}

// IDs lists registered provider ids in registration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.ids...)
}
