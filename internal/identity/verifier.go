package identity

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// Verifier is the one-operation capability every identity kind implements.
// Selection between implementations is by Identity variant (see Select), not
// by inheritance or a registration table.
type Verifier interface {
	// Verify reports whether signature is a valid detached signature over
	// message under the public key identity resolves to. Any cryptographic
	// mismatch, expired or malformed key, or network failure is reported as
	// false — callers treat false uniformly as "signature does not match".
	Verify(ctx context.Context, id Identity, signature []byte, message []byte) bool
}

// keyRingFetcher resolves an identity down to the PGP keyring used to check
// a detached signature. KeybaseVerifier and PGPURLVerifier differ only in
// this step; the cryptographic check itself is shared.
type keyRingFetcher interface {
	fetchKeyRing(ctx context.Context, client *http.Client, id Identity) (openpgp.EntityList, error)
}

// verifierBase implements the shared detached-signature check described in
// spec §4.3: both concrete verifiers route through here, differing only in
// their keyRingFetcher. Grounded on Helm's provenance.Signatory.Verify, which also
// separates "get a keyring" from "check a detached signature against it".
type verifierBase struct {
	client  *http.Client
	fetcher keyRingFetcher

	cacheTTL time.Duration
	mu       sync.Mutex
	cache    map[string]cachedRing
}

type cachedRing struct {
	ring    openpgp.EntityList
	fetched time.Time
}

// Option configures a verifier at construction time.
type Option func(*verifierBase)

// WithHTTPClient overrides the default HTTP client used for key fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(v *verifierBase) { v.client = c }
}

// WithKeyCache enables caching resolved keyrings for ttl. The cache key is
// the fetch URL itself (the Keybase username or the PGP-URL), so a key whose
// fetch URL changes is a guaranteed cache miss — per spec §5's requirement
// that a cached key can never survive its fetch URL changing.
func WithKeyCache(ttl time.Duration) Option {
	return func(v *verifierBase) {
		v.cacheTTL = ttl
		v.cache = make(map[string]cachedRing)
	}
}

func newVerifierBase(fetcher keyRingFetcher, opts ...Option) *verifierBase {
	v := &verifierBase{
		client:  &http.Client{Timeout: 15 * time.Second},
		fetcher: fetcher,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *verifierBase) Verify(ctx context.Context, id Identity, signature []byte, message []byte) bool {
	ring, err := v.resolveKeyRing(ctx, id)
	if err != nil {
		return false
	}

	_, err = openpgp.CheckArmoredDetachedSignature(ring, bytes.NewReader(message), bytes.NewReader(signature), nil)
	return err == nil
}

func (v *verifierBase) resolveKeyRing(ctx context.Context, id Identity) (openpgp.EntityList, error) {
	cacheKey := id.Keybase + "|" + id.PGPURL

	if v.cache != nil {
		v.mu.Lock()
		entry, ok := v.cache[cacheKey]
		v.mu.Unlock()
		if ok && time.Since(entry.fetched) < v.cacheTTL {
			return entry.ring, nil
		}
	}

	ring, err := v.fetcher.fetchKeyRing(ctx, v.client, id)
	if err != nil {
		return nil, err
	}

	if v.cache != nil {
		v.mu.Lock()
		v.cache[cacheKey] = cachedRing{ring: ring, fetched: time.Now()}
		v.mu.Unlock()
	}
	return ring, nil
}

// KeybaseVerifier resolves a Keybase username to that user's published
// public keys and checks the signature against them.
type KeybaseVerifier struct {
	*verifierBase
}

// NewKeybaseVerifier constructs a KeybaseVerifier.
func NewKeybaseVerifier(opts ...Option) *KeybaseVerifier {
	kv := &KeybaseVerifier{}
	kv.verifierBase = newVerifierBase(keybaseFetcher{}, opts...)
	return kv
}

type keybaseFetcher struct{}

func (keybaseFetcher) fetchKeyRing(ctx context.Context, client *http.Client, id Identity) (openpgp.EntityList, error) {
	if id.Keybase == "" {
		return nil, fmt.Errorf("identity: keybase verifier given identity without a keybase username")
	}
	keyURL := fmt.Sprintf("https://keybase.io/%s/pgp_keys.asc", url.PathEscape(id.Keybase))
	return fetchArmoredKeyRing(ctx, client, keyURL)
}

// PGPURLVerifier resolves the identity's own URL to an ASCII-armored public
// key and checks the signature against it.
type PGPURLVerifier struct {
	*verifierBase
}

// NewPGPURLVerifier constructs a PGPURLVerifier.
func NewPGPURLVerifier(opts ...Option) *PGPURLVerifier {
	pv := &PGPURLVerifier{}
	pv.verifierBase = newVerifierBase(pgpURLFetcher{}, opts...)
	return pv
}

type pgpURLFetcher struct{}

func (pgpURLFetcher) fetchKeyRing(ctx context.Context, client *http.Client, id Identity) (openpgp.EntityList, error) {
	if id.PGPURL == "" {
		return nil, fmt.Errorf("identity: pgp-url verifier given identity without a pgpUrl")
	}
	parsed, err := url.Parse(id.PGPURL)
	if err != nil || !parsed.IsAbs() {
		return nil, fmt.Errorf("identity: pgpUrl %q is not an absolute URL", id.PGPURL)
	}
	return fetchArmoredKeyRing(ctx, client, id.PGPURL)
}

func fetchArmoredKeyRing(ctx context.Context, client *http.Client, keyURL string) (openpgp.EntityList, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, keyURL, nil)
	if err != nil {
		return nil, fmt.Errorf("identity: build request for %s: %w", keyURL, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity: fetch %s: %w", keyURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity: fetch %s: unexpected status %s", keyURL, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("identity: read key body from %s: %w", keyURL, err)
	}

	ring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("identity: parse armored key from %s: %w", keyURL, err)
	}
	return ring, nil
}

// Select dispatches by inspecting which identity field is populated, never
// by a registration table (spec §9). It returns false when neither or both
// fields are populated — the caller treats that as a Compromised condition.
func Select(id Identity, opts ...Option) (Verifier, bool) {
	switch id.Variant() {
	case "keybase":
		return NewKeybaseVerifier(opts...), true
	case "pgp-url":
		return NewPGPURLVerifier(opts...), true
	default:
		return nil, false
	}
}
