package itemid

import (
	"fmt"
	"path"
	"strings"
)

// ItemID is an ordered list of path segments identifying one item in the
// broker's hierarchical namespace. A nil ItemID means "no item"; the empty,
// non-nil ItemID is the namespace root.
type ItemID []string

// Root returns the identifier of the namespace root.
func Root() ItemID {
	return ItemID{}
}

// Parse converts a slash-separated absolute path ("/docs/report.txt") into
// an ItemID. The empty string parses to nil.
func Parse(s string) (ItemID, error) {
	if s == "" {
		return nil, nil
	}
	if !strings.HasPrefix(s, "/") {
		return nil, fmt.Errorf("item path %q is not absolute", s)
	}
	return FromSlash(s), nil
}

// MustParse is Parse for constant inputs; it panics on error.
func MustParse(s string) ItemID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// FromSlash builds an ItemID from a slash-separated path, cleaning "." and
// ".." elements. Relative paths are treated as rooted.
func FromSlash(p string) ItemID {
	cleaned := path.Clean("/" + p)
	if cleaned == "/" {
		return Root()
	}
	return ItemID(strings.Split(strings.TrimPrefix(cleaned, "/"), "/"))
}

// IsZero reports whether id is absent.
func (id ItemID) IsZero() bool {
	return id == nil
}

// Depth is the number of segments below the root.
func (id ItemID) Depth() int {
	return len(id)
}

// String returns the slash form; absent ids render as "".
func (id ItemID) String() string {
	if id == nil {
		return ""
	}
	return "/" + strings.Join(id, "/")
}

// Equal reports whether both identifiers name the same item. Two absent
// identifiers are equal; an absent and a present one are not.
func (id ItemID) Equal(other ItemID) bool {
	if (id == nil) != (other == nil) {
		return false
	}
	if len(id) != len(other) {
		return false
	}
	for i := range id {
		if id[i] != other[i] {
			return false
		}
	}
	return true
}

// Contains reports whether id is an ancestor of other or equal to it.
func (id ItemID) Contains(other ItemID) bool {
	if id == nil || other == nil || len(id) > len(other) {
		return false
	}
	for i := range id {
		if id[i] != other[i] {
			return false
		}
	}
	return true
}

// IsAncestorOf reports whether id is a strict ancestor of other.
func (id ItemID) IsAncestorOf(other ItemID) bool {
	return len(id) < len(other) && id.Contains(other)
}

// IsParentOf reports whether other is an immediate child of id.
func (id ItemID) IsParentOf(other ItemID) bool {
	return len(id)+1 == len(other) && id.Contains(other)
}

// Parent returns the identifier one level up. The parent of the root is
// the root itself.
func (id ItemID) Parent() ItemID {
	if len(id) == 0 {
		return id
	}
	return append(ItemID{}, id[:len(id)-1]...)
}

// Child returns a new identifier one level below id.
func (id ItemID) Child(name string) ItemID {
	out := make(ItemID, 0, len(id)+1)
	out = append(out, id...)
	return append(out, name)
}

// MarshalText implements encoding.TextMarshaler.
func (id ItemID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ItemID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
