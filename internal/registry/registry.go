package registry

import (
	"errors"

	"ttotp/internal/otp"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("entry not found")

// Entry wraps one parsed specification together with its display
// state. Entries are created once at startup and live for the whole
// process; their ID is never reused.
//
// All mutable fields are owned by the scheduler goroutine. Other
// components hold entries only transiently while acting on them.
type Entry struct {
	ID   string
	Spec otp.Spec

	// Generation is the last observed floor(now/period). Starts at -1
	// so the first tick always masks the entry.
	Generation int64

	// Revealed code, valid until the next generation rollover or an
	// explicit re-mask. Code is meaningful only while Revealed.
	Revealed bool
	Code     string

	// Visible is controlled by search filtering.
	Visible bool

	// Highlight holds the rune indices of the display name matched by
	// the current search query, for the presentation layer.
	Highlight []int
}

// DisplayName renders the entry for listing and search.
func (e *Entry) DisplayName() string {
	return e.Spec.Name + " / " + e.Spec.Issuer
}

// Registry owns the ordered collection of entries. Order follows the
// input specification list and never changes; duplicates are kept as
// distinct entries.
type Registry struct {
	entries []*Entry
	pos     map[string]int
}

func New(specs []otp.Spec) *Registry {
	r := &Registry{pos: make(map[string]int, len(specs))}
	for _, spec := range specs {
		e := &Entry{
			ID:         uuid.NewString(),
			Spec:       spec,
			Generation: -1,
			Visible:    true,
		}
		r.pos[e.ID] = len(r.entries)
		r.entries = append(r.entries, e)
	}
	return r
}

// All returns the entries in registry order. The slice must not be
// reordered or resized by callers.
func (r *Registry) All() []*Entry {
	return r.entries
}

func (r *Registry) Get(id string) (*Entry, error) {
	i, ok := r.pos[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.entries[i], nil
}

func (r *Registry) Len() int {
	return len(r.entries)
}
