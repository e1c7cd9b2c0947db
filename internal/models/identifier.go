package models

import (
	"regexp"
	"sort"
	"strings"
)

type IdentifierKind string

const (
	IdentifierDevice  IdentifierKind = "device"
	IdentifierCookie  IdentifierKind = "cookie"
	IdentifierPhone   IdentifierKind = "phone"
	IdentifierEmail   IdentifierKind = "email"
	IdentifierSession IdentifierKind = "session"
)

// Priority orders identifier kinds for re-identification. Lower wins.
func (k IdentifierKind) Priority() int {
	switch k {
	case IdentifierDevice:
		return 0
	case IdentifierCookie:
		return 1
	case IdentifierPhone:
		return 2
	case IdentifierEmail:
		return 3
	case IdentifierSession:
		return 4
	default:
		return 99
	}
}

// Authoritative reports whether an identifier of this kind ends the provisional state of a user.
func (k IdentifierKind) Authoritative() bool {
	return k == IdentifierDevice || k == IdentifierPhone || k == IdentifierEmail
}

func (k IdentifierKind) Valid() bool {
	return k.Priority() != 99
}

// Identifier is one weak handle on a physical person.
type Identifier struct {
	Kind  IdentifierKind `json:"kind"`
	Value string         `json:"value"`
}

func (i Identifier) String() string {
	return string(i.Kind) + ":" + i.Value
}

var phoneCleaner = regexp.MustCompile(`[^0-9+]`)

// NormalizePhone strips everything except digits and '+'. Returns "" when fewer than 10 digits remain.
func NormalizePhone(raw string) string {
	phone := phoneCleaner.ReplaceAllString(raw, "")
	digits := strings.TrimPrefix(phone, "+")
	if len(digits) < 10 {
		return ""
	}
	return phone
}

func NormalizeEmail(raw string) string {
	email := strings.ToLower(strings.TrimSpace(raw))
	if !strings.Contains(email, "@") {
		return ""
	}
	return email
}

// Normalize returns the canonical form of the identifier, or ok=false if it is unusable.
func (i Identifier) Normalize() (Identifier, bool) {
	value := strings.TrimSpace(i.Value)
	switch i.Kind {
	case IdentifierPhone:
		value = NormalizePhone(value)
	case IdentifierEmail:
		value = NormalizeEmail(value)
	}
	if value == "" || !i.Kind.Valid() {
		return Identifier{}, false
	}
	return Identifier{Kind: i.Kind, Value: value}, true
}

// IdentifierSet is a small tagged set of identifiers, kept sorted by priority.
type IdentifierSet []Identifier

// NewIdentifierSet normalizes, de-duplicates and priority-sorts the given identifiers.
func NewIdentifierSet(ids ...Identifier) IdentifierSet {
	seen := make(map[Identifier]struct{}, len(ids))
	set := make(IdentifierSet, 0, len(ids))
	for _, id := range ids {
		norm, ok := id.Normalize()
		if !ok {
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		set = append(set, norm)
	}
	sort.SliceStable(set, func(a, b int) bool {
		return set[a].Kind.Priority() < set[b].Kind.Priority()
	})
	return set
}

func (s IdentifierSet) Empty() bool {
	return len(s) == 0
}

// First returns the first identifier of the given kind.
func (s IdentifierSet) First(kind IdentifierKind) (Identifier, bool) {
	for _, id := range s {
		if id.Kind == kind {
			return id, true
		}
	}
	return Identifier{}, false
}

func (s IdentifierSet) Contains(id Identifier) bool {
	for _, other := range s {
		if other == id {
			return true
		}
	}
	return false
}

// HasAuthoritative reports whether the set carries a device id, phone or email.
func (s IdentifierSet) HasAuthoritative() bool {
	for _, id := range s {
		if id.Kind.Authoritative() {
			return true
		}
	}
	return false
}
