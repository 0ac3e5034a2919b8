// Package identity defines the Identity value type and the pluggable
// cryptographic verifiers that validate a signature under one.
package identity

import "fmt"

// Identity names a signer. Exactly one field is populated: Keybase carries a
// Keybase username, PGPURL carries an absolute URL serving an ASCII-armored
// PGP public key. Two identities are equal iff they are the same variant and
// the populated field is byte-equal — the zero-value comparability of the
// struct gives us that for free.
type Identity struct {
	Keybase string `json:"keybase,omitempty"`
	PGPURL  string `json:"pgpUrl,omitempty"`
}

// Variant reports which field is populated, for error messages and logging.
// An Identity with neither field set is not a valid variant; callers that
// construct one from untrusted input should reject it before use.
func (id Identity) Variant() string {
	switch {
	case id.Keybase != "" && id.PGPURL != "":
		return "ambiguous"
	case id.Keybase != "":
		return "keybase"
	case id.PGPURL != "":
		return "pgp-url"
	default:
		return "none"
	}
}

// Valid reports whether exactly one field is populated.
func (id Identity) Valid() bool {
	v := id.Variant()
	return v == "keybase" || v == "pgp-url"
}

func (id Identity) String() string {
	switch id.Variant() {
	case "keybase":
		return fmt.Sprintf("keybase:%s", id.Keybase)
	case "pgp-url":
		return fmt.Sprintf("pgp-url:%s", id.PGPURL)
	default:
		return "identity:" + id.Variant()
	}
}
