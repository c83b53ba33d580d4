package schema

import "github.com/yanun0323/errors"

var (
	ErrSymbolExists  = errors.New("symbol already registered")
	ErrRegistryFull  = errors.New("symbol registry full")
	ErrUnknownSymbol = errors.New("symbol not registered")
	ErrEmptySymbol   = errors.New("symbol name is empty")
)

// Registry maps symbol names to dense SymbolIDs. IDs start at 1 so the
// zero value stays an invalid sentinel. The registry is built at startup
// and read-only afterwards.
type Registry struct {
	byName map[string]SymbolID
	names  []string
	limit  int
}

// NewRegistry creates a registry holding at most limit symbols.
func NewRegistry(limit int) *Registry {
	if limit <= 0 {
		limit = 1 << 16
	}
	return &Registry{
		byName: make(map[string]SymbolID, limit),
		names:  make([]string, 1, limit+1),
		limit:  limit,
	}
}

// Add registers a symbol name and returns its ID.
func (r *Registry) Add(name string) (SymbolID, error) {
	if name == "" {
		return 0, ErrEmptySymbol
	}
	if _, ok := r.byName[name]; ok {
		return 0, ErrSymbolExists
	}
	if len(r.names)-1 >= r.limit {
		return 0, ErrRegistryFull
	}
	id := SymbolID(len(r.names))
	r.names = append(r.names, name)
	r.byName[name] = id
	return id, nil
}

// Lookup resolves a symbol name.
func (r *Registry) Lookup(name string) (SymbolID, bool) {
	id, ok := r.byName[name]
	return id, ok
}

// Name resolves a SymbolID back to its name.
func (r *Registry) Name(id SymbolID) (string, bool) {
	if id == 0 || int(id) >= len(r.names) {
		return "", false
	}
	return r.names[id], true
}

// Count returns the number of registered symbols.
func (r *Registry) Count() int {
	return len(r.names) - 1
}
