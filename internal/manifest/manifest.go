// Package manifest decodes a package's package.json far enough to support
// verification: the declared name and the fields a package-manifest entry
// may constrain.
package manifest

import (
	"encoding/json"
	"fmt"
)

// Manifest is the subset of package.json fields pkgsign cares about.
type Manifest struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Main    string `json:"main"`
}

// Parse decodes package.json bytes. A missing "name" field is not itself an
// error here — callers (internal/verify) decide what an empty name means for
// the verdict; Parse only reports genuinely malformed JSON.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: invalid package.json: %w", err)
	}
	return &m, nil
}
