// Package verify implements the module verifier: the state machine that
// orchestrates hashing, signature-document parsing, entry content checks,
// identity verification, and the trust store into one verdict per package
// directory.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/RedpointGames/pkgsign/internal/entries"
	"github.com/RedpointGames/pkgsign/internal/hashio"
	"github.com/RedpointGames/pkgsign/internal/identity"
	"github.com/RedpointGames/pkgsign/internal/manifest"
	"github.com/RedpointGames/pkgsign/internal/sigdoc"
	"github.com/RedpointGames/pkgsign/internal/trust"
)

// Status is one of the four verdict categories. Finer-grained internal
// errors (IO, parse, hash, network, crypto) never cross this boundary —
// they all collapse into one of these, with a human-readable Reason.
type Status int

const (
	StatusUnsigned Status = iota
	StatusCompromised
	StatusUntrusted
	StatusTrusted
)

func (s Status) String() string {
	switch s {
	case StatusUnsigned:
		return "unsigned"
	case StatusCompromised:
		return "compromised"
	case StatusUntrusted:
		return "untrusted"
	case StatusTrusted:
		return "trusted"
	default:
		return "unknown"
	}
}

// Verdict is the result of verifying one package directory.
type Verdict struct {
	PackageName string
	Status      Status
	Identity    *identity.Identity // nil for Unsigned, and for Compromised before a signer is extracted
	Reason      string             // empty for Trusted/Untrusted
}

// Verify runs the nine-step verdict state machine against dir using
// context.Background() for any network-bound identity verification.
func Verify(dir string, relFiles []string, expectedPackageName string, store *trust.Store) Verdict {
	return VerifyContext(context.Background(), dir, relFiles, expectedPackageName, store)
}

// VerifyContext is Verify with an explicit context, propagated only to the
// identity verifier's key-fetch step — the one genuine network suspension
// point in the whole call graph (spec §5).
func VerifyContext(ctx context.Context, dir string, relFiles []string, expectedPackageName string, store *trust.Store) (result Verdict) {
	defer func() {
		if r := recover(); r != nil {
			result = finish(Verdict{
				PackageName: expectedPackageName,
				Status:      StatusCompromised,
				Reason:      fmt.Sprintf("internal error: %v", r),
			})
		}
	}()

	// Step 1: read and parse signature.json.
	sigData, err := hashio.ReadFile(filepath.Join(dir, "signature.json"))
	if err != nil {
		return finish(unsigned(expectedPackageName, "Missing or unparsable signature.json"))
	}

	doc, err := sigdoc.Parse(sigData)
	if err != nil {
		if errors.Is(err, sigdoc.ErrUnparsable) {
			return finish(unsigned(expectedPackageName, "Missing or unparsable signature.json"))
		}
		// Unknown entry type: an attacker could otherwise hide content
		// behind a tag this build doesn't recognize — always Compromised.
		return finish(compromised(expectedPackageName, nil, err.Error()))
	}

	// Hash every on-disk file exactly once, up front, for entry checks.
	diskFiles := make(map[string]string, len(relFiles))
	for _, rel := range relFiles {
		normalized := filepath.ToSlash(rel)
		sum, err := hashio.SHA512Hex(filepath.Join(dir, rel))
		if err != nil {
			return finish(compromised(expectedPackageName, nil, fmt.Sprintf("cannot read %s: %v", normalized, err)))
		}
		diskFiles[normalized] = sum
	}

	checkCtx := entries.CheckContext{
		Dir:              dir,
		DiskFiles:        diskFiles,
		HasManifestEntry: doc.HasEntry(entries.PackageManifestTag),
	}

	// Step 2/3: canonical message + content checks, in document order.
	// The first failing entry wins deterministically.
	message := doc.CanonicalMessage()
	for _, entry := range doc.Entries {
		if failure := entry.Check(checkCtx); failure != nil {
			return finish(compromised(expectedPackageName, nil, failure.Reason))
		}
	}

	// Step 4: extract identity — first entry in document order that yields one.
	signer, ok := firstIdentity(doc)
	if !ok {
		return finish(compromised(expectedPackageName, nil, "No identity information in signature.json"))
	}

	// Step 5: pick a verifier by identity variant.
	verifier, ok := identity.Select(signer)
	if !ok {
		return finish(compromised(expectedPackageName, &signer, "Unknown identity in signature.json"))
	}

	// Step 6: cryptographically verify the document signature.
	if !verifier.Verify(ctx, signer, []byte(doc.Signature), message) {
		return finish(compromised(expectedPackageName, &signer, "The signature does not match"))
	}

	// Step 7: read package.json.
	manifestData, err := hashio.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return finish(compromised(expectedPackageName, &signer, "Missing or unparsable package.json"))
	}
	m, err := manifest.Parse(manifestData)
	if err != nil {
		return finish(compromised(expectedPackageName, &signer, "Missing or unparsable package.json"))
	}

	// Step 8: declared name must match expected name. This runs after
	// cryptographic validation on purpose — a mismatched name on a
	// genuinely signed package is a stronger signal (package substitution)
	// than a mismatched name on an unsigned one.
	if m.Name != expectedPackageName {
		return finish(compromised(expectedPackageName, &signer, "Provided package name in package.json did not match expected package name"))
	}

	// Step 9: consult the trust store.
	if store != nil && store.IsTrusted(signer, expectedPackageName) {
		return finish(Verdict{PackageName: expectedPackageName, Status: StatusTrusted, Identity: &signer})
	}
	return finish(Verdict{PackageName: expectedPackageName, Status: StatusUntrusted, Identity: &signer})
}

func firstIdentity(doc *sigdoc.Document) (identity.Identity, bool) {
	for _, entry := range doc.Entries {
		if id, ok := entry.Identity(); ok {
			return id, true
		}
	}
	return identity.Identity{}, false
}

func unsigned(packageName, reason string) Verdict {
	return Verdict{PackageName: packageName, Status: StatusUnsigned, Reason: reason}
}

func compromised(packageName string, id *identity.Identity, reason string) Verdict {
	return Verdict{PackageName: packageName, Status: StatusCompromised, Identity: id, Reason: reason}
}

// finish logs the terminal verdict once, at Debug level: verification
// results, including Compromised ones, are the library's normal operation,
// not a warning-worthy event in themselves — cmd/pkgsign-verify is the
// layer that decides what deserves operator attention.
func finish(v Verdict) Verdict {
	slog.Debug("pkgsign: verification complete",
		"package", v.PackageName,
		"status", v.Status.String(),
		"reason", v.Reason,
	)
	return v
}
