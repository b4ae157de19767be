package contributions

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ContributionType enumerates the kinds of authored actions tracked by the feed.
type ContributionType string

const (
	// TypeComment is a remark on a project or another contribution.
	TypeComment ContributionType = "Comment"
	// TypeEdit is a change to the project itself.
	TypeEdit ContributionType = "Edit"
	// TypeRemix is a derived variant of a project or contribution.
	TypeRemix ContributionType = "Remix"
	// TypeSuggestion is a proposed change or feature request.
	TypeSuggestion ContributionType = "Suggestion"
)

// StorageKey is the logical slot name holding the serialized collection.
const StorageKey = "contribcast_contributions"

// timestampLayout renders millisecond ISO-8601 timestamps in UTC ("...T12:00:00.000Z").
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

var (
	// ErrUnknownContributionType indicates that a type name is outside the enumeration.
	ErrUnknownContributionType = errors.New("contributions: unknown contribution type")

	allTypes = []ContributionType{TypeComment, TypeEdit, TypeRemix, TypeSuggestion}
)

// Types returns the closed set of contribution types in display order.
func Types() []ContributionType {
	out := make([]ContributionType, len(allTypes))
	copy(out, allTypes)
	return out
}

// ParseContributionType matches raw input against the enumeration, ignoring case.
func ParseContributionType(rawInput string) (ContributionType, error) {
	trimmed := strings.TrimSpace(rawInput)
	for _, candidate := range allTypes {
		if strings.EqualFold(trimmed, string(candidate)) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownContributionType, rawInput)
}

// String returns the type name.
func (t ContributionType) String() string {
	return string(t)
}

// Contribution is one authored action tied to a project, optionally threaded under a parent.
type Contribution struct {
	ID                   string
	Contributor          string
	ProjectID            string
	Type                 ContributionType
	Description          string
	Timestamp            time.Time
	ParentContributionID string
	Tags                 []string
	Resonance            int
}

// HasParent reports whether the contribution carries a parent reference.
func (c Contribution) HasParent() bool {
	return c.ParentContributionID != ""
}

// FormattedTimestamp renders the creation time in the persisted ISO-8601 form.
func (c Contribution) FormattedTimestamp() string {
	return c.Timestamp.UTC().Format(timestampLayout)
}

// MarshalJSON encodes the contribution using the persisted flat record shape.
func (c Contribution) MarshalJSON() ([]byte, error) {
	return marshalRecord(newRecord(c))
}
