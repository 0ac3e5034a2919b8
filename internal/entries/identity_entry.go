package entries

import (
	"bytes"
	"encoding/json"

	"github.com/RedpointGames/pkgsign/internal/identity"
)

// IdentityTag is the stable type tag for IdentityEntry.
const IdentityTag = "identity/v1alpha1"

func init() {
	register(IdentityTag, func(raw json.RawMessage) (Entry, error) {
		var payload identity.Identity
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, err
		}
		return &IdentityEntry{Value: payload}, nil
	})
}

// IdentityEntry carries the Identity whose key validates the document
// signature. It has no content to check against the package directory.
type IdentityEntry struct {
	Value identity.Identity
}

func (e *IdentityEntry) Tag() string { return IdentityTag }

// Canonical emits the populated identity field(s) in a fixed order —
// Keybase before PGP-URL — with absent fields omitting their line entirely.
func (e *IdentityEntry) Canonical() []byte {
	var buf bytes.Buffer
	if e.Value.Keybase != "" {
		buf.WriteString("keybase=")
		buf.WriteString(e.Value.Keybase)
		buf.WriteByte('\n')
	}
	if e.Value.PGPURL != "" {
		buf.WriteString("pgpUrl=")
		buf.WriteString(e.Value.PGPURL)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func (e *IdentityEntry) Check(CheckContext) *Failure { return nil }

// Identity returns the carried identity, provided it is a well-formed
// single-variant value. A malformed entry (both or neither field set)
// contributes nothing — the module verifier then looks at later entries
// and ultimately reports "no identity information" if none qualify.
func (e *IdentityEntry) Identity() (identity.Identity, bool) {
	return e.Value, e.Value.Valid()
}
