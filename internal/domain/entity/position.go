package entity

import (
	"strings"
	"unicode"
)

// Position is the organizational tier a person occupies. Legacy free-text
// titles are mapped onto it by ParsePosition and nowhere else.
type Position string

const (
	PositionInspector Position = "INSPECTOR"
	PositionFLS       Position = "FLS"
	PositionSCSI      Position = "SCSI"
	PositionPHV       Position = "PHV"
	PositionDDM       Position = "DDM"
	PositionDM        Position = "DM"
)

// rank orders positions for "FLS-class or higher" checks.
var positionRank = map[Position]int{
	PositionInspector: 0,
	PositionSCSI:      1,
	PositionPHV:       1,
	PositionFLS:       2,
	PositionDDM:       3,
	PositionDM:        4,
}

// String returns the string representation of the position
func (p Position) String() string {
	return string(p)
}

// Rank returns the tier of the position; higher is more senior.
func (p Position) Rank() int {
	return positionRank[p]
}

// AtLeast reports whether p is at or above other in the hierarchy.
func (p Position) AtLeast(other Position) bool {
	return p.Rank() >= other.Rank()
}

// IsSupervisoryInspector is true for the SCSI/PHV class.
func (p Position) IsSupervisoryInspector() bool {
	return p == PositionSCSI || p == PositionPHV
}

// ParsePosition maps a legacy job title onto a Position. Matching is done on
// whole words so that e.g. "Admin" never reads as DM.
func ParsePosition(title string) Position {
	upper := strings.ToUpper(strings.TrimSpace(title))
	if upper == "" {
		return PositionInspector
	}

	words := strings.FieldsFunc(upper, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	has := make(map[string]bool, len(words))
	for _, w := range words {
		has[w] = true
	}
	phrase := " " + strings.Join(words, " ") + " "

	switch {
	case has["DDM"] || strings.Contains(phrase, " DEPUTY DISTRICT "):
		return PositionDDM
	case has["DM"] || strings.Contains(phrase, " DISTRICT MANAGER "):
		return PositionDM
	case has["FLS"] || strings.Contains(phrase, " FRONT LINE ") || has["FRONTLINE"]:
		return PositionFLS
	case has["SCSI"] || strings.Contains(phrase, " SUPERVISORY CONSUMER SAFETY ") || strings.Contains(phrase, " SUPERVISORY CSI "):
		return PositionSCSI
	case has["PHV"] || strings.Contains(phrase, " PUBLIC HEALTH VETERINARIAN "):
		return PositionPHV
	default:
		return PositionInspector
	}
}
