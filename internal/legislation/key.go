package legislation

import (
	"fmt"
	"strings"
)

// KeyKind tags which variant a NaturalKey holds.
type KeyKind uint8

// NaturalKey variants.
const (
	KeyNone KeyKind = iota
	KeyNational
	KeyAdmin
)

// adminKeySep separates the composite admin key fields in the persisted encoding.
const adminKeySep = "\x1f"

// NaturalKey identifies a notice within its source. National notices are keyed
// by the chamber's bill identifier. Admin notices expose no identifier upstream,
// so they are keyed by (title, committee, start date).
//
// NaturalKey is comparable and safe to use as a map key.
type NaturalKey struct {
	kind      KeyKind
	billID    string
	title     string
	committee string
	startDate string
}

// NationalKey builds a key for a legislature notice.
func NationalKey(billID string) NaturalKey {
	return NaturalKey{kind: KeyNational, billID: strings.TrimSpace(billID)}
}

// AdminKey builds a composite key for an executive notice.
func AdminKey(title, committee, startDate string) NaturalKey {
	return NaturalKey{
		kind:      KeyAdmin,
		title:     strings.TrimSpace(title),
		committee: strings.TrimSpace(committee),
		startDate: strings.TrimSpace(startDate),
	}
}

// ParseNaturalKey decodes a key persisted with String.
func ParseNaturalKey(source Source, encoded string) (NaturalKey, error) {
	switch source {
	case SourceNational:
		if strings.TrimSpace(encoded) == "" {
			return NaturalKey{}, fmt.Errorf("empty national key")
		}
		return NationalKey(encoded), nil
	case SourceAdmin:
		parts := strings.Split(encoded, adminKeySep)
		if len(parts) != 3 {
			return NaturalKey{}, fmt.Errorf("malformed admin key %q", encoded)
		}
		return AdminKey(parts[0], parts[1], parts[2]), nil
	default:
		return NaturalKey{}, fmt.Errorf("%w: %q", ErrInvalidSource, source)
	}
}

// Kind returns the variant tag.
func (k NaturalKey) Kind() KeyKind { return k.kind }

// IsZero reports whether the key is unset or carries no identifying value.
func (k NaturalKey) IsZero() bool {
	switch k.kind {
	case KeyNational:
		return k.billID == ""
	case KeyAdmin:
		return k.title == "" && k.committee == "" && k.startDate == ""
	default:
		return true
	}
}

// Source returns the source the key variant belongs to.
func (k NaturalKey) Source() Source {
	switch k.kind {
	case KeyNational:
		return SourceNational
	case KeyAdmin:
		return SourceAdmin
	default:
		return ""
	}
}

// BillID returns the bill identifier of a national key.
func (k NaturalKey) BillID() string { return k.billID }

// String returns the persisted encoding of the key.
func (k NaturalKey) String() string {
	switch k.kind {
	case KeyNational:
		return k.billID
	case KeyAdmin:
		return strings.Join([]string{k.title, k.committee, k.startDate}, adminKeySep)
	default:
		return ""
	}
}

// Less orders keys by source then encoding, used to make output reproducible.
func (k NaturalKey) Less(other NaturalKey) bool {
	if k.kind != other.kind {
		return k.kind < other.kind
	}
	return k.String() < other.String()
}
