package mapper

import (
	"slices"
	"strings"
)

// createDynamicUpdate folds the mappers discovered while parsing one
// document into a single root-level patch holding only the new branches.
// It returns nil when nothing was discovered.
//
// Discoveries are sorted by full name so every run sharing a prefix is
// contiguous. A stack of open object updates follows the current prefix;
// frames that stop being a prefix are merged back into their parent.
func createDynamicUpdate(dm *DocumentMapper, discovered []Mapper) (*ObjectMapper, error) {
	if len(discovered) == 0 {
		return nil, nil
	}
	sorted := slices.Clone(discovered)
	slices.SortStableFunc(sorted, func(a, b Mapper) int {
		return strings.Compare(a.Name(), b.Name())
	})

	first := sorted[0]
	rootUpdate, err := createUpdate(dm.Root(), strings.Split(first.Name(), "."), 0, first)
	if err != nil {
		return nil, err
	}
	stack := updateStack{rootUpdate}
	previous := first
	for _, m := range sorted[1:] {
		if m.Name() == previous.Name() {
			// the same path discovered twice, typically an object created
			// once per sibling; the copies must agree
			if _, err := mergeMappers(previous, m); err != nil {
				return nil, conflictError(err)
			}
			continue
		}
		previous = m
		parts := strings.Split(m.Name(), ".")

		i, err := stack.removeUncommon(parts)
		if err != nil {
			return nil, err
		}
		if i, err = stack.expandCommon(parts, i); err != nil {
			return nil, err
		}
		if i < len(parts)-1 {
			if m, err = stack.existingMapperUpdate(parts, i, dm, m); err != nil {
				return nil, err
			}
		}
		if o, ok := m.(*ObjectMapper); ok {
			stack = append(stack, o)
		} else if err := stack.addToLast(m, true); err != nil {
			return nil, err
		}
	}
	if err := stack.pop(1, true); err != nil {
		return nil, err
	}
	if len(stack) != 1 {
		return nil, internalf("mapping update stack holds %d frames after folding", len(stack))
	}
	return stack[0], nil
}

// updateStack holds the open object updates, root first.
type updateStack []*ObjectMapper

// pop folds every frame at or above keepBefore into the frame below it.
func (s *updateStack) pop(keepBefore int, merge bool) error {
	if keepBefore < 1 {
		return internalf("mapping update stack would drop its root frame")
	}
	for len(*s) > keepBefore {
		last := (*s)[len(*s)-1]
		*s = (*s)[:len(*s)-1]
		if err := s.addToLast(last, merge); err != nil {
			return err
		}
	}
	return nil
}

// addToLast puts m into the top frame, merging with what the frame already
// holds when merge is set.
func (s *updateStack) addToLast(m Mapper, merge bool) error {
	if len(*s) == 0 {
		return internalf("mapping update stack is empty while adding [%s]", m.Name())
	}
	idx := len(*s) - 1
	last := (*s)[idx]
	withNew := last.mappingUpdate(m)
	if merge {
		merged, err := last.Merge(withNew)
		if err != nil {
			return conflictError(err)
		}
		withNew = merged
	}
	(*s)[idx] = withNew
	return nil
}

// removeUncommon pops frames that are not ancestors of parts and returns
// the next unprocessed index of parts.
func (s *updateStack) removeUncommon(parts []string) (int, error) {
	keepBefore := 1
	for keepBefore < len(*s) && keepBefore-1 < len(parts) &&
		(*s)[keepBefore].simpleName == parts[keepBefore-1] {
		keepBefore++
	}
	if err := s.pop(keepBefore, true); err != nil {
		return 0, err
	}
	return keepBefore - 1, nil
}

// expandCommon pushes ancestors of parts that already sit inside the top
// frame as updates.
func (s *updateStack) expandCommon(parts []string, i int) (int, error) {
	last := (*s)[len(*s)-1]
	for i < len(parts)-1 {
		child := last.Mapper(parts[i])
		if child == nil {
			break
		}
		o, ok := child.(*ObjectMapper)
		if !ok {
			return 0, internalf("[%s] is a field but [%s] needs it to be an object", child.Name(), strings.Join(parts, "."))
		}
		*s = append(*s, o)
		last = o
		i++
	}
	return i, nil
}

// existingMapperUpdate wraps m in updates for the ancestors between the top
// frame and m, taken from the published mapping without their other
// children.
func (s *updateStack) existingMapperUpdate(parts []string, i int, dm *DocumentMapper, m Mapper) (Mapper, error) {
	parentName := parts[i]
	if len(*s) > 1 {
		parentName = (*s)[len(*s)-1].name + "." + parts[i]
	}
	parent, ok := dm.ObjectMapper(parentName)
	if !ok {
		return nil, internalf("object [%s] holding dynamic field [%s] does not exist in the mapping", parentName, m.Name())
	}
	return createUpdate(parent, parts, i+1, m)
}

// createUpdate builds an update for parent holding m and the intermediate
// objects parts[i:len(parts)-1] that must already exist below parent.
func createUpdate(parent *ObjectMapper, parts []string, i int, m Mapper) (*ObjectMapper, error) {
	var chain updateStack
	prev := parent
	for ; i < len(parts)-1; i++ {
		child := prev.Mapper(parts[i])
		if child == nil {
			return nil, internalf("field [%s] does not have a subfield [%s] needed by [%s]", parentLabel(prev), parts[i], m.Name())
		}
		o, ok := child.(*ObjectMapper)
		if !ok {
			return nil, internalf("[%s] is a field but [%s] needs it to be an object", child.Name(), m.Name())
		}
		chain = append(chain, o)
		prev = o
	}
	if len(chain) > 0 {
		if err := chain.addToLast(m, false); err != nil {
			return nil, err
		}
		if err := chain.pop(1, false); err != nil {
			return nil, err
		}
		m = chain[0]
	}
	return parent.mappingUpdate(m), nil
}

func parentLabel(o *ObjectMapper) string {
	if o.IsRoot() {
		return o.simpleName
	}
	return o.name
}
