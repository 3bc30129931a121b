package catalogcoach

import (
	"strings"

	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/session"
)

type Kind int

const (
	Idle Kind = iota
	Matching
	MatchFound
	Failed
)

func (k Kind) String() string {
	switch k {
	case Idle:
		return "Idle"
	case Matching:
		return "Matching..."
	case MatchFound:
		return "MatchFound"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Status is the matcher state. Match is set only for MatchFound.
type Status struct {
	Kind  Kind
	Match *session.Match
}

// String is the display value: the matched titles for MatchFound, the kind
// name otherwise.
func (s Status) String() string {
	if s.Kind != MatchFound {
		return s.Kind.String()
	}
	if s.Match == nil {
		return ""
	}
	return joinList(s.Match.Titles())
}

// Equal compares kinds, and for MatchFound the matched reference.
func (s Status) Equal(o Status) bool {
	if s.Kind != o.Kind {
		return false
	}
	if s.Kind != MatchFound {
		return true
	}
	if s.Match == nil || o.Match == nil {
		return s.Match == o.Match
	}
	return s.Match.ReferenceID == o.Match.ReferenceID
}

// ParseStatus maps a display value back to a status. Anything that is not a
// known kind name, matched titles included, reads as Idle.
func ParseStatus(raw string) Status {
	switch raw {
	case "Matching...":
		return Status{Kind: Matching}
	case "Failed":
		return Status{Kind: Failed}
	default:
		return Status{Kind: Idle}
	}
}

// joinList renders "a", "a and b", "a, b, and c".
func joinList(items []string) string {
	nonEmpty := make([]string, 0, len(items))
	for _, it := range items {
		if it != "" {
			nonEmpty = append(nonEmpty, it)
		}
	}

	switch len(nonEmpty) {
	case 0:
		return ""
	case 1:
		return nonEmpty[0]
	case 2:
		return nonEmpty[0] + " and " + nonEmpty[1]
	default:
		return strings.Join(nonEmpty[:len(nonEmpty)-1], ", ") + ", and " + nonEmpty[len(nonEmpty)-1]
	}
}
