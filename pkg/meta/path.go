package meta

import (
	"strconv"
	"strings"
)

const pathSeparator = "."

// resolve walks path through nested documents and lists. A top-level key
// equal to the whole path wins over the segment walk so keys containing dots
// stay addressable.
func resolve(doc *Document, path string) (any, bool) {
	if v, ok := doc.Get(path); ok {
		return v, true
	}
	if !strings.Contains(path, pathSeparator) {
		return nil, false
	}
	var current any = doc
	for _, segment := range strings.Split(path, pathSeparator) {
		next, ok := child(current, segment)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// child returns the entry under segment when container is a document, or the
// element at the decimal index segment when it is a list.
func child(container any, segment string) (any, bool) {
	switch c := container.(type) {
	case *Document:
		return c.Get(segment)
	case []any:
		i, ok := listIndex(segment, len(c))
		if !ok {
			return nil, false
		}
		return c[i], true
	default:
		return nil, false
	}
}

// listIndex parses segment as a canonical decimal index below n. "01" and
// "-1" are keys, not indexes.
func listIndex(segment string, n int) (int, bool) {
	i, err := strconv.Atoi(segment)
	if err != nil || i < 0 || i >= n || strconv.Itoa(i) != segment {
		return 0, false
	}
	return i, true
}

// assign writes value at path, creating intermediate documents and replacing
// any intermediate that is neither a document nor a list (null included).
func assign(doc *Document, path string, value any) {
	assignIn(doc, strings.Split(path, pathSeparator), value)
}

// assignIn returns container with value written at segments. Writing index
// len(list) appends. Any other key that is not an index turns the list into a
// document keyed by index, the way a sparse list serializes.
func assignIn(container any, segments []string, value any) any {
	head, rest := segments[0], segments[1:]
	switch c := container.(type) {
	case *Document:
		next := value
		if len(rest) > 0 {
			existing, _ := c.Get(head)
			next = assignIn(existing, rest, value)
		}
		c.Set(head, next)
		return c
	case []any:
		if i, ok := listIndex(head, len(c)); ok {
			if len(rest) > 0 {
				c[i] = assignIn(c[i], rest, value)
			} else {
				c[i] = value
			}
			return c
		}
		if head == strconv.Itoa(len(c)) {
			if len(rest) > 0 {
				return append(c, assignIn(nil, rest, value))
			}
			return append(c, value)
		}
		return assignIn(listToDocument(c), segments, value)
	default:
		return assignIn(NewDocument(), segments, value)
	}
}

// forget removes path when present. Parents emptied by the removal are kept.
func forget(doc *Document, path string) {
	if doc.Delete(path) {
		return
	}
	segments := strings.Split(path, pathSeparator)
	if len(segments) == 1 {
		return
	}
	forgetIn(doc, segments)
}

// forgetIn returns container with segments removed and whether anything
// changed. Removing the last element keeps a list; removing any other element
// leaves a gap, so the remaining items become a document keyed by index.
func forgetIn(container any, segments []string) (any, bool) {
	head, rest := segments[0], segments[1:]
	switch c := container.(type) {
	case *Document:
		if len(rest) == 0 {
			return c, c.Delete(head)
		}
		existing, ok := c.Get(head)
		if !ok {
			return c, false
		}
		next, changed := forgetIn(existing, rest)
		if changed {
			c.Set(head, next)
		}
		return c, changed
	case []any:
		i, ok := listIndex(head, len(c))
		if !ok {
			return c, false
		}
		if len(rest) > 0 {
			next, changed := forgetIn(c[i], rest)
			if changed {
				c[i] = next
			}
			return c, changed
		}
		if i == len(c)-1 {
			return c[:i], true
		}
		doc := listToDocument(c)
		doc.Delete(head)
		return doc, true
	default:
		return container, false
	}
}
