// Package identity computes the multihash content identities used
// throughout the engine. Plaintext bytes yield a content-id, encoded
// bytes a coded-id; both are SHA2-256 multihashes.
package identity

import (
	"crypto/sha256"
	"io"

	"github.com/multiformats/go-multihash"
)

// Sum streams r through SHA2-256 and wraps the digest as a multihash.
// It returns the byte count alongside the identity.
func Sum(r io.Reader) (multihash.Multihash, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return nil, n, err
	}
	mh, err := multihash.Encode(h.Sum(nil), multihash.SHA2_256)
	if err != nil {
		return nil, n, err
	}
	return multihash.Multihash(mh), n, nil
}

// SumBytes is Sum over an in-memory buffer.
func SumBytes(b []byte) (multihash.Multihash, error) {
	mh, err := multihash.Sum(b, multihash.SHA2_256, -1)
	if err != nil {
		return nil, err
	}
	return mh, nil
}

// Equal reports whether two identities are the same hash.
func Equal(a, b multihash.Multihash) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
