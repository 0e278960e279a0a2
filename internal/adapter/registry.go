package adapter

// Registry maps a note's type/action pair to the Adapter that handles it,
// falling back to a generic adapter when nothing matches (spec.md §4.5:
// "If no adapter matches, route to the generic adapter: log + move to
// Done/").
type Registry struct {
	adapters []Adapter
	generic  Adapter
}

// NewRegistry returns a Registry that tries adapters in order and falls
// back to generic.
func NewRegistry(generic Adapter, adapters ...Adapter) *Registry {
	return &Registry{adapters: adapters, generic: generic}
}

// Resolve returns the Adapter that applies to noteType/action, or the
// generic fallback if none match.
func (r *Registry) Resolve(noteType, action string) Adapter {
	for _, a := range r.adapters {
		if a.Applies(noteType, action) {
			return a
		}
	}
	return r.generic
}
