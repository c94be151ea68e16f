// Package ids generates the short, prefixed identifiers used for blobs
// within a single execution.
//
// Unlike the teacher's ULID-based internal/shared/id package, blob ids follow
// a fixed wire format (blob_[a-z0-9]{6}) mandated by the host↔guest contract,
// so generation here trades k-sortability for exactly matching that shape.
package ids

import (
	"crypto/rand"
	"fmt"
)

const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// BlobPrefix is prepended to every generated blob id.
const BlobPrefix = "blob_"

// Generator produces short random ids over a cryptographically secure
// entropy source. It carries no state, so the zero value is as usable as
// one from NewGenerator.
type Generator struct{}

// NewGenerator creates an id Generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Default is the package-level generator used by convenience functions.
var Default = NewGenerator()

// Blob returns a new id of the form "blob_" + 6 lowercase alphanumeric
// characters.
func (g *Generator) Blob() string {
	return BlobPrefix + g.random(6)
}

// NewBlobID is a package-level convenience wrapper around Default.Blob.
func NewBlobID() string {
	return Default.Blob()
}

func (g *Generator) random(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("ids: entropy source failed: %v", err))
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out)
}
