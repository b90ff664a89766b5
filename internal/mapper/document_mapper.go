package mapper

import (
	"encoding/json"
	"fmt"
	"sort"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/errors"
)

// FieldLookup resolves a full field name to its mapper. A DocumentMapper
// answers for its own type; an index wide lookup answers across types.
type FieldLookup interface {
	LookupField(fullName string) (*FieldMapper, bool)
}

// DocumentMapper is one immutable version of a type's mapping together with
// full-path indexes over it. Concurrent parses share a DocumentMapper.
type DocumentMapper struct {
	root          *ObjectMapper
	version       int64
	objectMappers map[string]*ObjectMapper
	fieldMappers  map[string]*FieldMapper
}

func NewDocumentMapper(root *ObjectMapper, version int64) (*DocumentMapper, error) {
	if root == nil || !root.IsRoot() {
		return nil, fmt.Errorf("%w: document mapper requires a root object", apperrors.ErrInternal)
	}
	dm := &DocumentMapper{
		root:          root,
		version:       version,
		objectMappers: make(map[string]*ObjectMapper),
		fieldMappers:  make(map[string]*FieldMapper),
	}
	if err := dm.index(root); err != nil {
		return nil, err
	}
	return dm, nil
}

func (dm *DocumentMapper) index(o *ObjectMapper) error {
	for _, child := range o.children {
		switch m := child.(type) {
		case *ObjectMapper:
			dm.objectMappers[m.name] = m
			if err := dm.index(m); err != nil {
				return err
			}
		case *FieldMapper:
			if err := dm.addField(m); err != nil {
				return err
			}
		}
	}
	return nil
}

func (dm *DocumentMapper) addField(f *FieldMapper) error {
	if _, ok := dm.objectMappers[f.name]; ok {
		return conflictf("field [%s] is defined both as an object and a field", f.name)
	}
	dm.fieldMappers[f.name] = f
	for _, sub := range f.multiFields {
		if err := dm.addField(sub); err != nil {
			return err
		}
	}
	return nil
}

func (dm *DocumentMapper) Type() string        { return dm.root.simpleName }
func (dm *DocumentMapper) Root() *ObjectMapper { return dm.root }
func (dm *DocumentMapper) Version() int64      { return dm.version }

// ObjectMapper returns the object at fullPath. The root has no path and is
// never returned.
func (dm *DocumentMapper) ObjectMapper(fullPath string) (*ObjectMapper, bool) {
	o, ok := dm.objectMappers[fullPath]
	return o, ok
}

func (dm *DocumentMapper) LookupField(fullName string) (*FieldMapper, bool) {
	f, ok := dm.fieldMappers[fullName]
	return f, ok
}

// FieldCount is the number of object and field mappers, multi-fields
// included, counted against the total fields limit.
func (dm *DocumentMapper) FieldCount() int {
	return len(dm.objectMappers) + len(dm.fieldMappers)
}

// FieldNames returns every full field name in sorted order.
func (dm *DocumentMapper) FieldNames() []string {
	out := make([]string, 0, len(dm.fieldMappers))
	for name := range dm.fieldMappers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ObjectPaths returns every object path in sorted order.
func (dm *DocumentMapper) ObjectPaths() []string {
	out := make([]string, 0, len(dm.objectMappers))
	for name := range dm.objectMappers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Merge returns the next version with patch merged into the root. The
// receiver is left untouched.
func (dm *DocumentMapper) Merge(patch *ObjectMapper) (*DocumentMapper, error) {
	if patch == nil {
		return dm, nil
	}
	if patch.IsRoot() && patch.simpleName != dm.root.simpleName {
		return nil, fmt.Errorf("%w: cannot merge mapping of type [%s] into type [%s]",
			apperrors.ErrIllegalArgument, patch.simpleName, dm.root.simpleName)
	}
	root, err := dm.root.Merge(patch)
	if err != nil {
		return nil, err
	}
	return NewDocumentMapper(root, dm.version+1)
}

// Mapping returns the definition wrapped under the type name.
func (dm *DocumentMapper) Mapping() map[string]any {
	return map[string]any{dm.Type(): dm.root.ToMap()}
}

// Source is the JSON form of Mapping.
func (dm *DocumentMapper) Source() ([]byte, error) {
	return json.Marshal(dm.Mapping())
}
