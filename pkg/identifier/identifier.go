package identifier

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Separator joins identifier parts.
const Separator = ":"

var partPattern = regexp.MustCompile(`^[a-zA-Z][\w-]*$`)

// InvalidIDError is returned when a string cannot be parsed as an identifier.
type InvalidIDError struct {
	Input  string
	Reason string
}

func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("invalid identifier %q: %s", e.Input, e.Reason)
}

// ID is an immutable hierarchical identifier. The zero value is the empty id.
type ID struct {
	repr string
}

// Parse parses an identifier. The leading separator is optional.
func Parse(s string) (ID, error) {
	trimmed := strings.TrimPrefix(s, Separator)
	if trimmed == "" {
		return ID{}, &InvalidIDError{Input: s, Reason: "empty identifier"}
	}
	return FromParts(strings.Split(trimmed, Separator)...)
}

// FromParts builds an identifier from already split parts.
func FromParts(parts ...string) (ID, error) {
	if len(parts) == 0 {
		return ID{}, &InvalidIDError{Reason: "no parts"}
	}
	for _, p := range parts {
		if err := ValidatePart(p); err != nil {
			return ID{}, err
		}
	}
	return ID{repr: strings.Join(parts, Separator)}, nil
}

// ValidatePart checks a single identifier part.
func ValidatePart(part string) error {
	if !partPattern.MatchString(part) {
		return &InvalidIDError{Input: part, Reason: "parts must match [a-zA-Z][\\w-]*"}
	}
	return nil
}

// IsZero reports whether the id is the empty id.
func (id ID) IsZero() bool { return id.repr == "" }

// Parts returns a copy of the identifier parts.
func (id ID) Parts() []string {
	if id.repr == "" {
		return nil
	}
	return strings.Split(id.repr, Separator)
}

// Name returns the last part.
func (id ID) Name() string {
	if i := strings.LastIndex(id.repr, Separator); i >= 0 {
		return id.repr[i+1:]
	}
	return id.repr
}

// Parent returns the identifier without its last part.
func (id ID) Parent() (ID, bool) {
	i := strings.LastIndex(id.repr, Separator)
	if i < 0 {
		return ID{}, false
	}
	return ID{repr: id.repr[:i]}, true
}

// Ancestors returns every proper prefix, nearest first.
func (id ID) Ancestors() []ID {
	var out []ID
	for cur, ok := id.Parent(); ok; cur, ok = cur.Parent() {
		out = append(out, cur)
	}
	return out
}

// Join appends a part.
func (id ID) Join(part string) (ID, error) {
	if err := ValidatePart(part); err != nil {
		return ID{}, err
	}
	if id.repr == "" {
		return ID{repr: part}, nil
	}
	return ID{repr: id.repr + Separator + part}, nil
}

// IsShorthand reports whether repr names this id. An absolute repr (leading
// separator) must match exactly; otherwise repr must equal the trailing parts.
func (id ID) IsShorthand(repr string) bool {
	if id.repr == "" || repr == "" {
		return false
	}
	if strings.HasPrefix(repr, Separator) {
		return repr[1:] == id.repr
	}
	if repr == id.repr {
		return true
	}
	return strings.HasSuffix(id.repr, Separator+repr)
}

// Path renders the id as a relative filesystem path.
func (id ID) Path() string {
	return filepath.Join(id.Parts()...)
}

// Compare orders ids part by part.
func (id ID) Compare(other ID) int {
	a, b := id.Parts(), other.Parts()
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := strings.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

func (id ID) String() string {
	return Separator + id.repr
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
