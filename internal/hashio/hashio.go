// Package hashio provides the file-reading and hashing primitives the rest of
// pkgsign builds on. Every function here fails only with an IO error carrying
// the offending path.
package hashio

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// ReadFile reads an entire file into memory. It is used only for the small
// UTF-8 documents (signature.json, package.json) a package ships, never for
// hashing arbitrary package content.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("hashio: read %s: %w", path, err)
	}
	return data, nil
}

// SHA512Hex streams path through SHA-512 and returns the lowercase hex
// digest, without holding the whole file in memory.
func SHA512Hex(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hashio: open %s: %w", path, err)
	}
	defer f.Close()

	h := sha512.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashio: hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
