// Package sigdoc parses signature.json into the ordered entry list and
// detached signature a package ships, and produces the canonical message
// that entry list was signed over.
package sigdoc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/RedpointGames/pkgsign/internal/entries"
)

// ErrUnparsable means signature.json failed schema validation or JSON
// decoding. Per the verdict state machine (spec §4.6 step 1) this always
// becomes Unsigned, never Compromised — a document that doesn't parse
// carries no claims to have been tampered with.
var ErrUnparsable = errors.New("sigdoc: signature.json is missing or unparsable")

// ErrUnknownEntryType means an entry in the list carries a type tag this
// build does not recognize. Per spec §4.4 this always becomes Compromised,
// since an attacker could otherwise hide content behind an unknown tag.
var ErrUnknownEntryType = errors.New("sigdoc: unknown entry type in signature.json")

// Document is the typed, parsed form of signature.json.
type Document struct {
	Entries   []entries.Entry
	Signature string
}

type rawDocument struct {
	Entries   []json.RawMessage `json:"entries"`
	Signature string            `json:"signature"`
}

type entryTag struct {
	Entry string `json:"entry"`
}

// Parse validates data against the signature.json schema, then decodes it
// into a Document, dispatching each entry by its type tag.
func Parse(data []byte) (*Document, error) {
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsable, err)
	}
	if err := schema.Validate(generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsable, err)
	}

	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsable, err)
	}

	doc := &Document{Signature: raw.Signature}
	for _, rawEntry := range raw.Entries {
		var tag entryTag
		if err := json.Unmarshal(rawEntry, &tag); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnparsable, err)
		}

		entry, err := entries.Parse(tag.Entry, rawEntry)
		if err != nil {
			if errors.Is(err, entries.ErrUnknownTag) {
				return nil, fmt.Errorf("%w: %s", ErrUnknownEntryType, tag.Entry)
			}
			return nil, fmt.Errorf("%w: %v", ErrUnparsable, err)
		}
		doc.Entries = append(doc.Entries, entry)
	}

	return doc, nil
}

// CanonicalMessage concatenates every entry's canonical serialization, in
// document order. This is the exact byte string the signer signed, and the
// only input to identity verification besides the signature and identity.
func (d *Document) CanonicalMessage() []byte {
	var out []byte
	for _, e := range d.Entries {
		out = append(out, e.Canonical()...)
	}
	return out
}

// HasEntry reports whether the document carries at least one entry with the
// given type tag — used by the module verifier to decide whether
// package.json belongs in the files entry's skip set.
func (d *Document) HasEntry(tag string) bool {
	for _, e := range d.Entries {
		if e.Tag() == tag {
			return true
		}
	}
	return false
}
