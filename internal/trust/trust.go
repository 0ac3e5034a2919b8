// Package trust implements the operator's local trust store: a persisted
// mapping from package name to the identity approved to sign it.
package trust

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/gowebpki/jcs"

	"github.com/RedpointGames/pkgsign/internal/identity"
)

const dirName = ".pkgsign-trust-store"

// Store is a handle to one trust store directory. It is never a process-
// wide singleton — callers construct one explicitly (NewStore for the real
// per-operator directory, NewStoreAt for tests) so tests can redirect it to
// a temporary directory without touching the environment.
type Store struct {
	dir string
}

// NewStore resolves the per-operator trust store directory from the
// OS-appropriate home environment variable (HOME on POSIX, USERPROFILE on
// Windows), falling back to os.UserHomeDir for environments that set
// neither but still have a usable home directory.
func NewStore() (*Store, error) {
	home, err := resolveHome()
	if err != nil {
		return nil, err
	}
	return NewStoreAt(filepath.Join(home, dirName)), nil
}

// NewStoreAt constructs a Store rooted at an explicit directory, bypassing
// home-directory resolution entirely.
func NewStoreAt(dir string) *Store {
	return &Store{dir: dir}
}

func resolveHome() (string, error) {
	if home := os.Getenv("HOME"); home != "" {
		return home, nil
	}
	if home := os.Getenv("USERPROFILE"); home != "" {
		return home, nil
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return home, nil
	}
	return "", fmt.Errorf("trust: cannot resolve a home directory (HOME/USERPROFILE unset)")
}

// recordFileName maps a package name to its trust-record file name.
// Scoped npm package names (e.g. "@scope/name") contain a slash; percent-
// encoding it keeps the store one flat file per package, matching spec
// §4.2's "<package-name>.trust" layout without creating nested directories
// per scope. This is a source-ambiguous detail resolved here (see
// DESIGN.md).
func recordFileName(packageName string) string {
	return url.QueryEscape(packageName) + ".trust"
}

func (s *Store) recordPath(packageName string) string {
	return filepath.Join(s.dir, recordFileName(packageName))
}

// IsTrusted reports whether the store holds a record for packageName that
// equals identity field-by-field. Any IO or parse error is treated as
// "not trusted", not an exception — absence is not a security event.
func (s *Store) IsTrusted(id identity.Identity, packageName string) bool {
	data, err := os.ReadFile(s.recordPath(packageName))
	if err != nil {
		return false
	}

	var got identity.Identity
	if err := json.Unmarshal(data, &got); err != nil {
		return false
	}

	return got == id
}

// AddTrusted records that identity is approved to sign packageName,
// overwriting any prior record for that name — the operator's latest
// decision wins. Writes go to a temporary sibling file first, then an
// atomic rename, so a concurrent reader never observes a truncated file.
func (s *Store) AddTrusted(id identity.Identity, packageName string) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("trust: create store directory: %w", err)
	}

	raw, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("trust: encode identity: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return fmt.Errorf("trust: canonicalize identity record: %w", err)
	}

	finalPath := s.recordPath(packageName)
	tmpPath := fmt.Sprintf("%s.tmp-%d", finalPath, os.Getpid())

	if err := os.WriteFile(tmpPath, canonical, 0o600); err != nil {
		return fmt.Errorf("trust: write temporary record: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("trust: rename record into place: %w", err)
	}
	return nil
}
