package device

import "strings"

// Contact is one entry of the device's contact book, used to resolve partial
// destination identifiers to full public keys.
type Contact struct {
	PublicKey string `json:"public_key"`
	Name      string `json:"name,omitempty"`
	Type      string `json:"type,omitempty"`
}

// MatchesKeyPrefix reports whether the contact's public key starts with the
// given lowercase hex prefix.
func (c Contact) MatchesKeyPrefix(prefix string) bool {
	return prefix != "" && strings.HasPrefix(strings.ToLower(c.PublicKey), prefix)
}

// MatchesName reports whether the contact's display name equals the given
// name, ignoring case.
func (c Contact) MatchesName(name string) bool {
	return name != "" && strings.EqualFold(c.Name, name)
}
