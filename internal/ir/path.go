package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Lookup projects a dotted path into v. Object segments select keys, array
// segments are decimal indexes. The empty path returns v itself.
//
//	Lookup(Object{"pair": Array{String("a"), String("b")}}, "pair.1") // String("b")
func Lookup(v Value, path string) (Value, error) {
	if path == "" {
		return v, nil
	}

	cur := v
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case Object:
			next, ok := node[seg]
			if !ok {
				return nil, fmt.Errorf("path %q: no key %q", path, seg)
			}
			cur = next
		case Array:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, fmt.Errorf("path %q: index %q out of range (len %d)", path, seg, len(node))
			}
			cur = node[i]
		default:
			return nil, fmt.Errorf("path %q: cannot select %q from %s", path, seg, Kind(cur))
		}
	}
	return cur, nil
}
