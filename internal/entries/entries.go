// Package entries implements the pluggable claims a signature document can
// embed: file-hash lists, package-manifest constraints, and signing
// identities. Each is modeled as a tagged variant rather than a class
// hierarchy — dispatch is by matching the stable "entry" tag string against
// a small registry, never by dynamic method lookup on an open set of types.
package entries

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/RedpointGames/pkgsign/internal/identity"
)

// ErrUnknownTag is returned by Parse when a signature.json entry carries a
// tag this build does not recognize. Callers MUST treat this as a hard
// failure (spec: "reject unknown entry type tags ... rather than silently
// skipping them") — an attacker could otherwise hide content behind an
// unrecognized tag.
var ErrUnknownTag = errors.New("entries: unknown entry type tag")

// Entry is one typed claim inside a signature document.
type Entry interface {
	// Tag is the stable, version-bearing type tag, e.g. "files/v1alpha1".
	Tag() string
	// Canonical is this entry's deterministic serialization. The
	// concatenation of every entry's Canonical(), in document order, is the
	// exact byte string the signer signed.
	Canonical() []byte
	// Check validates this entry's claim against the package on disk. A nil
	// return means the check passed.
	Check(ctx CheckContext) *Failure
	// Identity returns this entry's identity contribution, if any.
	Identity() (identity.Identity, bool)
}

// Failure is a content-check failure. It is always surfaced as a
// Compromised verdict by the caller (internal/verify); Failure itself
// carries no status, only the human-readable reason spec §4.5 specifies
// verbatim for each case.
type Failure struct {
	Reason string
}

func (f *Failure) Error() string { return f.Reason }

// CheckContext is the package-directory view every entry's Check runs
// against, assembled once by the module verifier so entries never touch the
// filesystem more than necessary and never re-hash the same file twice.
type CheckContext struct {
	// Dir is the package directory being verified.
	Dir string
	// DiskFiles maps every on-disk relative path (forward-slash
	// normalized) to its SHA-512 hex digest, computed once up front.
	DiskFiles map[string]string
	// HasManifestEntry is true when the document also carries a
	// package-manifest entry, which puts package.json into the files
	// entry's skip set (spec §4.5 rationale).
	HasManifestEntry bool
}

type decodeFunc func(json.RawMessage) (Entry, error)

var registry = map[string]decodeFunc{}

// register adds a tag to the registry. Called from each entry type's
// init(), mirroring the teacher's tagged-dispatch registries.
func register(tag string, fn decodeFunc) {
	if _, exists := registry[tag]; exists {
		panic(fmt.Sprintf("entries: tag %q registered twice", tag))
	}
	registry[tag] = fn
}

// Parse decodes a raw entry by its type tag. An unregistered tag is
// ErrUnknownTag, never a silent no-op.
func Parse(tag string, raw json.RawMessage) (Entry, error) {
	fn, ok := registry[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTag, tag)
	}
	entry, err := fn(raw)
	if err != nil {
		return nil, fmt.Errorf("entries: decode %s: %w", tag, err)
	}
	return entry, nil
}
