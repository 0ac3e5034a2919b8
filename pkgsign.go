// Package pkgsign verifies an npm-ecosystem package directory against a
// detached cryptographic signature embedded in its signature.json, producing
// one of four verdicts: unsigned, compromised, untrusted, or trusted.
//
// Verification never touches the network except to resolve a signer's
// public key (a Keybase username or an ASCII-armored key URL), and never
// grants trust on its own — a package that verifies cleanly under a
// signer the operator has not previously approved is Untrusted, not
// Trusted, until the operator records that decision in a trust.Store.
package pkgsign

import (
	"context"

	"github.com/RedpointGames/pkgsign/internal/identity"
	"github.com/RedpointGames/pkgsign/internal/trust"
	"github.com/RedpointGames/pkgsign/internal/verify"
)

// Status is one of the four verdict categories a verification can reach.
type Status = verify.Status

const (
	StatusUnsigned    = verify.StatusUnsigned
	StatusCompromised = verify.StatusCompromised
	StatusUntrusted   = verify.StatusUntrusted
	StatusTrusted     = verify.StatusTrusted
)

// Verdict is the outcome of verifying one package directory.
type Verdict = verify.Verdict

// Identity names a package signer — a Keybase username or a URL serving an
// ASCII-armored PGP public key.
type Identity = identity.Identity

// TrustStore is the operator's persisted record of which identity is
// approved to sign which package name.
type TrustStore = trust.Store

// NewTrustStore opens the trust store at its default per-operator location.
func NewTrustStore() (*TrustStore, error) {
	return trust.NewStore()
}

// NewTrustStoreAt opens a trust store rooted at an explicit directory.
func NewTrustStoreAt(dir string) *TrustStore {
	return trust.NewStoreAt(dir)
}

// Verify checks dir, whose contents are exactly the relative paths listed in
// relFiles, against its own signature.json, requiring the signed package
// name to equal expectedPackageName. store may be nil, in which case every
// cryptographically valid signature yields Untrusted rather than Trusted.
func Verify(dir string, relFiles []string, expectedPackageName string, store *TrustStore) Verdict {
	return verify.Verify(dir, relFiles, expectedPackageName, store)
}

// VerifyContext is Verify with an explicit context, propagated to the one
// network-bound step: resolving a signer's public key.
func VerifyContext(ctx context.Context, dir string, relFiles []string, expectedPackageName string, store *TrustStore) Verdict {
	return verify.VerifyContext(ctx, dir, relFiles, expectedPackageName, store)
}
