package billing

import "strings"

// Kind is the billable station type.
type Kind string

const (
	KindLounge  Kind = "lounge"
	KindConsole Kind = "console"
	KindOther   Kind = "other"
)

// Kinds lists every station kind in display order.
var Kinds = []Kind{KindLounge, KindConsole, KindOther}

// ParseKind normalizes a wire or user supplied kind.
func ParseKind(value string) (Kind, error) {
	switch kind := Kind(strings.ToLower(strings.TrimSpace(value))); kind {
	case KindLounge, KindConsole, KindOther:
		return kind, nil
	default:
		return "", &ValidationError{Field: "kind", Reason: "must be one of lounge, console, other"}
	}
}

// String returns the raw kind.
func (k Kind) String() string { return string(k) }
