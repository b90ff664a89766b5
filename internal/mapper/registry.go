package mapper

import (
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/errors"
)

// typeAliases maps legacy type names onto registered ones.
var typeAliases = map[string]string{
	"string": TypeText,
}

// Registry resolves field type names to FieldType implementations. It is
// safe for concurrent use; registration normally happens at startup.
type Registry struct {
	mu    sync.RWMutex
	types map[string]FieldType
}

// NewRegistry returns a registry holding the built in types.
func NewRegistry() *Registry {
	r := &Registry{types: make(map[string]FieldType)}
	for _, t := range builtinTypes() {
		r.types[t.Name()] = t
	}
	return r
}

// Register adds a field type. Names are unique and object/nested are
// reserved.
func (r *Registry) Register(t FieldType) error {
	name := t.Name()
	if name == "" || name == TypeObject || name == TypeNested {
		return fmt.Errorf("%w: type name [%s] is reserved", apperrors.ErrIllegalArgument, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[name]; ok {
		return fmt.Errorf("%w: type [%s] is already registered", apperrors.ErrIllegalArgument, name)
	}
	r.types[name] = t
	return nil
}

// Lookup returns the field type registered under name.
func (r *Registry) Lookup(name string) (FieldType, bool) {
	if alias, ok := typeAliases[name]; ok {
		name = alias
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// Names lists the registered type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.types))
	for name := range r.types {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// NewFieldBuilder returns a builder for a field of the named type.
func (r *Registry) NewFieldBuilder(name, typeName string) (*FieldBuilder, error) {
	t, ok := r.Lookup(typeName)
	if !ok {
		return nil, fmt.Errorf("%w: no handler for type [%s] declared on field [%s]", apperrors.ErrIllegalArgument, typeName, name)
	}
	return NewFieldBuilder(name, t), nil
}

func (r *Registry) mustLookup(name string) FieldType {
	t, ok := r.Lookup(name)
	if !ok {
		panic("mapper: built in type " + name + " is not registered")
	}
	return t
}
