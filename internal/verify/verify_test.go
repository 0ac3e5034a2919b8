package verify

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/stretchr/testify/require"

	"github.com/RedpointGames/pkgsign/internal/trust"
)

// testSigner bundles an ephemeral PGP entity with the test server hosting
// its armored public key, so each test can sign packages without touching a
// real keybase.io or arbitrary external host.
type testSigner struct {
	entity *openpgp.Entity
	pgpURL string
}

func newTestSigner(t *testing.T, name string) *testSigner {
	t.Helper()
	entity, err := openpgp.NewEntity(name, "", name+"@example.test", nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, entity.Serialize(w))
	require.NoError(t, w.Close())
	armored := buf.String()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(armored))
	}))
	t.Cleanup(srv.Close)

	return &testSigner{entity: entity, pgpURL: srv.URL + "/" + name + ".asc"}
}

func sha512Hex(t *testing.T, data []byte) string {
	t.Helper()
	sum := sha512.Sum512(data)
	return hex.EncodeToString(sum[:])
}

// buildPackage writes a package directory containing the given extra files
// plus package.json, then a signature.json signed over the exact canonical
// message the files+identity(+manifest) entries produce. Returns the
// directory only; each test passes relFiles explicitly (see relFilesOf).
func buildPackage(t *testing.T, signer *testSigner, files map[string]string, includeManifestEntry bool, manifestName, manifestVersion, manifestMain string) string {
	t.Helper()
	dir := t.TempDir()

	type fileEntry struct {
		Path   string `json:"path"`
		SHA512 string `json:"sha512"`
	}
	var fileList []fileEntry
	var canonical bytes.Buffer

	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
		sum := sha512Hex(t, []byte(content))
		fileList = append(fileList, fileEntry{Path: name, SHA512: sum})
	}
	// Deterministic order for the canonical message in these tests.
	for i := 0; i < len(fileList); i++ {
		for j := i + 1; j < len(fileList); j++ {
			if fileList[j].Path < fileList[i].Path {
				fileList[i], fileList[j] = fileList[j], fileList[i]
			}
		}
	}
	for _, fh := range fileList {
		canonical.WriteString(fh.Path)
		canonical.WriteByte('\n')
		canonical.WriteString(fh.SHA512)
		canonical.WriteByte('\n')
	}

	entries := []map[string]interface{}{
		{"entry": "files/v1alpha1", "files": fileList},
	}

	if includeManifestEntry {
		entries = append(entries, map[string]interface{}{
			"entry":   "packageJson/v1alpha1",
			"name":    manifestName,
			"version": manifestVersion,
			"main":    manifestMain,
		})
		canonical.WriteString("name=")
		canonical.WriteString(manifestName)
		canonical.WriteByte('\n')
		canonical.WriteString("version=")
		canonical.WriteString(manifestVersion)
		canonical.WriteByte('\n')
		canonical.WriteString("main=")
		canonical.WriteString(manifestMain)
		canonical.WriteByte('\n')
	}

	entries = append(entries, map[string]interface{}{
		"entry":  "identity/v1alpha1",
		"pgpUrl": signer.pgpURL,
	})
	canonical.WriteString("pgpUrl=")
	canonical.WriteString(signer.pgpURL)
	canonical.WriteByte('\n')

	var sigBuf bytes.Buffer
	require.NoError(t, openpgp.ArmoredDetachSign(&sigBuf, signer.entity, bytes.NewReader(canonical.Bytes()), nil))

	doc := map[string]interface{}{
		"entries":   entries,
		"signature": sigBuf.String(),
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "signature.json"), raw, 0o644))

	manifest := fmt.Sprintf(`{"name":%q,"version":%q,"main":%q}`, manifestName, manifestVersion, manifestMain)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(manifest), 0o644))

	return dir
}

func relFilesOf(dir string, files map[string]string) []string {
	rel := make([]string, 0, len(files)+1)
	for name := range files {
		rel = append(rel, name)
	}
	rel = append(rel, "package.json")
	return rel
}

// Scenario 1 (spec §8): an unknown signer yields Untrusted; after the
// operator records trust, the same package yields Trusted.
func TestUntrustedThenTrustedAfterAddTrusted(t *testing.T) {
	signer := newTestSigner(t, "alice")
	files := map[string]string{"index.js": "module.exports = 1;\n"}
	dir := buildPackage(t, signer, files, true, "left-pad", "1.0.0", "index.js")
	rel := relFilesOf(dir, files)

	store := trust.NewStoreAt(t.TempDir())

	v := Verify(dir, rel, "left-pad", store)
	require.Equal(t, StatusUntrusted, v.Status)
	require.NotNil(t, v.Identity)
	require.Equal(t, signer.pgpURL, v.Identity.PGPURL)

	require.NoError(t, store.AddTrusted(*v.Identity, "left-pad"))

	v2 := Verify(dir, rel, "left-pad", store)
	require.Equal(t, StatusTrusted, v2.Status)
}

// Scenario: tampering with a signed file's content after signing produces
// Compromised with the exact mismatched-hash reason.
func TestTamperedFileIsCompromised(t *testing.T) {
	signer := newTestSigner(t, "alice")
	files := map[string]string{"index.js": "module.exports = 1;\n"}
	dir := buildPackage(t, signer, files, true, "left-pad", "1.0.0", "index.js")
	rel := relFilesOf(dir, files)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.js"), []byte("module.exports = 2;\n"), 0o644))

	v := Verify(dir, rel, "left-pad", trust.NewStoreAt(t.TempDir()))
	require.Equal(t, StatusCompromised, v.Status)
	require.Equal(t, "index.js does not have content that was signed for (mismatched hash)", v.Reason)
}

// Scenario: a file added to the package after signing, not present in the
// signed file list, produces Compromised.
func TestExtraFileIsCompromised(t *testing.T) {
	signer := newTestSigner(t, "alice")
	files := map[string]string{"index.js": "module.exports = 1;\n"}
	dir := buildPackage(t, signer, files, true, "left-pad", "1.0.0", "index.js")
	rel := relFilesOf(dir, files)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.js"), []byte("evil"), 0o644))
	rel = append(rel, "extra.js")

	v := Verify(dir, rel, "left-pad", trust.NewStoreAt(t.TempDir()))
	require.Equal(t, StatusCompromised, v.Status)
	require.Equal(t, "extra.js exists in the package, but was not in the signature", v.Reason)
}

// Scenario: the directory is verified under a different name than the one
// signed into package.json — Compromised, not Untrusted, since the
// signature itself checked out.
func TestMismatchedExpectedNameIsCompromised(t *testing.T) {
	signer := newTestSigner(t, "alice")
	files := map[string]string{"index.js": "module.exports = 1;\n"}
	dir := buildPackage(t, signer, files, true, "left-pad", "1.0.0", "index.js")
	rel := relFilesOf(dir, files)

	v := Verify(dir, rel, "right-pad", trust.NewStoreAt(t.TempDir()))
	require.Equal(t, StatusCompromised, v.Status)
	require.Equal(t, "Provided package name in package.json did not match expected package name", v.Reason)
}

// Scenario: no signature.json at all yields Unsigned, not Compromised.
func TestMissingSignatureIsUnsigned(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.js"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{"name":"left-pad"}`), 0o644))

	v := Verify(dir, []string{"index.js", "package.json"}, "left-pad", trust.NewStoreAt(t.TempDir()))
	require.Equal(t, StatusUnsigned, v.Status)
}

// Without a package-manifest entry, package.json is not in the files
// entry's skip set, so a package.json the signed file list does not cover
// (here also rewritten after signing with a new version) is Compromised.
func TestUnlistedPackageJSONWithoutManifestEntryIsCompromised(t *testing.T) {
	signer := newTestSigner(t, "alice")
	files := map[string]string{"index.js": "module.exports = 1;\n"}
	dir := buildPackage(t, signer, files, false, "", "", "")
	rel := relFilesOf(dir, files)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{"name":"left-pad","version":"2.0.0","main":"index.js"}`), 0o644))

	v := Verify(dir, rel, "left-pad", trust.NewStoreAt(t.TempDir()))
	require.Equal(t, StatusCompromised, v.Status)
	require.Equal(t, "package.json exists in the package, but was not in the signature", v.Reason)
}

// A corrupted signature (crypto check fails) is Compromised with the
// "does not match" reason, independent of file content checks passing.
func TestBadSignatureIsCompromised(t *testing.T) {
	signer := newTestSigner(t, "alice")
	other := newTestSigner(t, "mallory")
	files := map[string]string{"index.js": "module.exports = 1;\n"}
	dir := buildPackage(t, signer, files, true, "left-pad", "1.0.0", "index.js")
	rel := relFilesOf(dir, files)

	// Swap in an identity entry pointing at a different key than the one
	// that actually produced the signature — the crypto check must fail.
	raw, err := os.ReadFile(filepath.Join(dir, "signature.json"))
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &doc))
	entries := doc["entries"].([]interface{})
	for _, e := range entries {
		m := e.(map[string]interface{})
		if m["entry"] == "identity/v1alpha1" {
			m["pgpUrl"] = other.pgpURL
		}
	}
	raw2, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "signature.json"), raw2, 0o644))

	v := Verify(dir, rel, "left-pad", trust.NewStoreAt(t.TempDir()))
	require.Equal(t, StatusCompromised, v.Status)
	require.Equal(t, "The signature does not match", v.Reason)
}

// Two verifications of the same untampered package must reach the same
// verdict, exercising VerifyContext directly to confirm context propagation
// doesn't change outcomes.
func TestVerificationIsDeterministic(t *testing.T) {
	signer := newTestSigner(t, "alice")
	files := map[string]string{"a.js": "a", "b.js": "b"}
	dir := buildPackage(t, signer, files, true, "pkg", "1.0.0", "a.js")
	rel := relFilesOf(dir, files)

	store := trust.NewStoreAt(t.TempDir())
	v1 := VerifyContext(context.Background(), dir, rel, "pkg", store)
	v2 := VerifyContext(context.Background(), dir, rel, "pkg", store)
	require.Equal(t, v1, v2)
}

// A missing on-disk file that the signature lists is Compromised.
func TestMissingListedFileIsCompromised(t *testing.T) {
	signer := newTestSigner(t, "alice")
	files := map[string]string{"index.js": "module.exports = 1;\n"}
	dir := buildPackage(t, signer, files, true, "left-pad", "1.0.0", "index.js")

	require.NoError(t, os.Remove(filepath.Join(dir, "index.js")))

	v := Verify(dir, []string{"package.json"}, "left-pad", trust.NewStoreAt(t.TempDir()))
	require.Equal(t, StatusCompromised, v.Status)
	require.Equal(t, "index.js is expected by the signature, but is missing in the package", v.Reason)
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "unsigned", StatusUnsigned.String())
	require.Equal(t, "compromised", StatusCompromised.String())
	require.Equal(t, "untrusted", StatusUntrusted.String())
	require.Equal(t, "trusted", StatusTrusted.String())
}
