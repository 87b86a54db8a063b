package authz

import "strings"

// Key identifies one authorization question.
type Key struct {
	Subject  string
	Relation string
	Object   string
}

// String renders the key as subject#relation@object.
func (k Key) String() string {
	var b strings.Builder
	b.Grow(len(k.Subject) + len(k.Relation) + len(k.Object) + 2)
	b.WriteString(k.Subject)
	b.WriteByte('#')
	b.WriteString(k.Relation)
	b.WriteByte('@')
	b.WriteString(k.Object)
	return b.String()
}

// Selector matches keys for bulk invalidation. Empty fields match anything.
type Selector struct {
	Subject  string `json:"subject,omitempty"`
	Relation string `json:"relation,omitempty"`
	Object   string `json:"object,omitempty"`
}

// Matches reports whether k is selected.
func (s Selector) Matches(k Key) bool {
	return (s.Subject == "" || s.Subject == k.Subject) &&
		(s.Relation == "" || s.Relation == k.Relation) &&
		(s.Object == "" || s.Object == k.Object)
}

// IsZero reports whether the selector matches every key.
func (s Selector) IsZero() bool {
	return s == Selector{}
}
