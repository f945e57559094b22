package pm

import (
	"encoding/json"
	"reflect"
	"sort"
)

// ChangedKeys returns the sorted dotted key paths whose values differ
// between a and b. Objects are compared recursively; arrays and scalars
// are compared as whole values. last_updated and version are ignored.
func ChangedKeys(a, b *State) ([]string, error) {
	am, err := toTree(a)
	if err != nil {
		return nil, err
	}
	bm, err := toTree(b)
	if err != nil {
		return nil, err
	}

	for _, m := range []map[string]any{am, bm} {
		delete(m, "last_updated")
		delete(m, "version")
	}

	keys := []string{}
	diffTree("", am, bm, &keys)
	sort.Strings(keys)
	return keys, nil
}

func toTree(s *State) (map[string]any, error) {
	if s == nil {
		return map[string]any{}, nil
	}
	c := s.Clone()
	c.Normalize()
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func diffTree(prefix string, a, b any, out *[]string) {
	am, aObj := a.(map[string]any)
	bm, bObj := b.(map[string]any)
	if !aObj || !bObj {
		if !reflect.DeepEqual(a, b) {
			*out = append(*out, prefix)
		}
		return
	}

	seen := make(map[string]bool, len(am)+len(bm))
	for k := range am {
		seen[k] = true
	}
	for k := range bm {
		seen[k] = true
	}
	for k := range seen {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		diffTree(path, am[k], bm[k], out)
	}
}
