package entries

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/Masterminds/semver/v3"

	"github.com/RedpointGames/pkgsign/internal/hashio"
	"github.com/RedpointGames/pkgsign/internal/identity"
	"github.com/RedpointGames/pkgsign/internal/manifest"
)

// PackageManifestTag is the stable type tag for PackageManifestEntry.
const PackageManifestTag = "packageJson/v1alpha1"

func init() {
	register(PackageManifestTag, func(raw json.RawMessage) (Entry, error) {
		var payload struct {
			Name    string `json:"name"`
			Version string `json:"version"`
			Main    string `json:"main"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, err
		}
		return &PackageManifestEntry{
			Name:    payload.Name,
			Version: payload.Version,
			Main:    payload.Main,
		}, nil
	})
}

// PackageManifestEntry asserts constraints on a fixed subset of package.json
// fields, letting the rest of the manifest vary without package.json being
// listed in the files entry. The signed field set is
// name, version, main — the minimal set spec §9 suggests when left to
// implementer discretion.
type PackageManifestEntry struct {
	Name    string
	Version string
	Main    string
}

func (e *PackageManifestEntry) Tag() string { return PackageManifestTag }

// Canonical serializes the three constrained fields in a fixed order. All
// three lines are always emitted — unlike Identity, where an absent field is
// meaningful, a manifest entry constrains a fixed shape and an empty string
// is itself the constraint ("this field must be empty/unset").
func (e *PackageManifestEntry) Canonical() []byte {
	var buf bytes.Buffer
	buf.WriteString("name=")
	buf.WriteString(e.Name)
	buf.WriteByte('\n')
	buf.WriteString("version=")
	buf.WriteString(e.Version)
	buf.WriteByte('\n')
	buf.WriteString("main=")
	buf.WriteString(e.Main)
	buf.WriteByte('\n')
	return buf.Bytes()
}

func (e *PackageManifestEntry) Identity() (identity.Identity, bool) { return identity.Identity{}, false }

// Check reads the on-disk package.json and asserts equality on the
// constrained fields. Presence of this entry is what moves package.json
// into the files entry's skip set, so a version bump need not resign the
// full file list.
func (e *PackageManifestEntry) Check(ctx CheckContext) *Failure {
	if e.Version != "" {
		if _, err := semver.NewVersion(e.Version); err != nil {
			return &Failure{Reason: "package-manifest entry declares an invalid version"}
		}
	}

	data, err := hashio.ReadFile(filepath.Join(ctx.Dir, "package.json"))
	if err != nil {
		return &Failure{Reason: "missing or unparsable package.json"}
	}
	m, err := manifest.Parse(data)
	if err != nil {
		return &Failure{Reason: "missing or unparsable package.json"}
	}

	if m.Name != e.Name {
		return &Failure{Reason: fmt.Sprintf("package.json name %q does not match the signed name %q", m.Name, e.Name)}
	}
	if m.Version != e.Version {
		return &Failure{Reason: fmt.Sprintf("package.json version %q does not match the signed version %q", m.Version, e.Version)}
	}
	if m.Main != e.Main {
		return &Failure{Reason: fmt.Sprintf("package.json main %q does not match the signed main %q", m.Main, e.Main)}
	}
	return nil
}
