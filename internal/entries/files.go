package entries

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/RedpointGames/pkgsign/internal/identity"
)

// FilesTag is the stable type tag for FilesEntry.
const FilesTag = "files/v1alpha1"

func init() {
	register(FilesTag, func(raw json.RawMessage) (Entry, error) {
		var payload struct {
			Files []FileHash `json:"files"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, err
		}
		return &FilesEntry{Files: payload.Files}, nil
	})
}

// FileHash is one (relative path, sha512 hex) pair. Paths always use
// forward-slash separators, regardless of host OS.
type FileHash struct {
	Path   string `json:"path"`
	SHA512 string `json:"sha512"`
}

// FilesEntry constrains the exact set of files a package may contain and
// the hash of each. The list's order is part of the signed message and is
// never sorted by the canonicalizer — a signer that reorders the list
// invalidates their own signature, and that is intentional.
type FilesEntry struct {
	Files []FileHash
}

func (e *FilesEntry) Tag() string { return FilesTag }

func (e *FilesEntry) Canonical() []byte {
	var buf bytes.Buffer
	for _, fh := range e.Files {
		buf.WriteString(fh.Path)
		buf.WriteByte('\n')
		buf.WriteString(fh.SHA512)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func (e *FilesEntry) Identity() (identity.Identity, bool) { return identity.Identity{}, false }

// Check implements the three-part diff from spec §4.5: every on-disk file
// outside the skip set must be listed with a matching hash, and every
// listed file other than signature.json must exist on disk. The entry's path set
// is indexed into a map once, up front — a linear scan per disk file would
// be quadratic in package size (spec §9 performance note).
func (e *FilesEntry) Check(ctx CheckContext) *Failure {
	byPath := make(map[string]string, len(e.Files))
	for _, fh := range e.Files {
		byPath[fh.Path] = fh.SHA512
	}

	skip := map[string]bool{"signature.json": true}
	if ctx.HasManifestEntry {
		skip["package.json"] = true
	}

	diskPaths := make([]string, 0, len(ctx.DiskFiles))
	for p := range ctx.DiskFiles {
		diskPaths = append(diskPaths, p)
	}
	sort.Strings(diskPaths)

	for _, p := range diskPaths {
		if skip[p] {
			continue
		}
		signed, ok := byPath[p]
		if !ok {
			return &Failure{Reason: fmt.Sprintf("%s exists in the package, but was not in the signature", p)}
		}
		if signed != ctx.DiskFiles[p] {
			return &Failure{Reason: fmt.Sprintf("%s does not have content that was signed for (mismatched hash)", p)}
		}
	}

	for _, fh := range e.Files {
		if fh.Path == "signature.json" {
			continue
		}
		if _, ok := ctx.DiskFiles[fh.Path]; !ok {
			return &Failure{Reason: fmt.Sprintf("%s is expected by the signature, but is missing in the package", fh.Path)}
		}
	}

	return nil
}
