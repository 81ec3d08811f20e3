package clips

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// ScopeKind selects what a top-clips query is bounded by.
type ScopeKind string

const (
	ScopeGame        ScopeKind = "game"
	ScopeBroadcaster ScopeKind = "user"
)

// ParseScopeKind accepts "game"/"g" and "user"/"u"/"broadcaster" in any case.
func ParseScopeKind(s string) (ScopeKind, error) {
	switch cases.Fold().String(strings.TrimSpace(s)) {
	case "g", "game":
		return ScopeGame, nil
	case "u", "user", "broadcaster":
		return ScopeBroadcaster, nil
	default:
		return "", fmt.Errorf("unknown scope %q: want game or user", s)
	}
}

// Scope is a resolved query target.
type Scope struct {
	Kind ScopeKind
	ID   string
	// Name is the human label the ID was resolved from, kept for logs.
	Name string
}

func (s Scope) String() string {
	label := s.Name
	if label == "" {
		label = s.ID
	}
	return fmt.Sprintf("%s:%s", s.Kind, label)
}

func (s Scope) queryKey() string {
	if s.Kind == ScopeGame {
		return "game_id"
	}
	return "broadcaster_id"
}

// Descriptor is one clip of a fetched batch.
type Descriptor struct {
	ID              string
	Title           string
	BroadcasterName string
	SourceMediaURL  string
	// Index is the rank of the clip within its batch, starting at 0.
	Index int

	URL          string
	GameID       string
	ViewCount    int
	CreatedAt    time.Time
	Duration     time.Duration
	ThumbnailURL string
}

// Batch is ordered by rank; Batch[i].Index == i.
type Batch []Descriptor

// Get returns the descriptor for a clip index.
func (b Batch) Get(index int) (Descriptor, bool) {
	if index < 0 || index >= len(b) {
		return Descriptor{}, false
	}
	return b[index], true
}

// Validate checks the index invariant.
func (b Batch) Validate() error {
	for i, d := range b {
		if d.Index != i {
			return fmt.Errorf("clip %s at position %d carries index %d", d.ID, i, d.Index)
		}
	}
	return nil
}
