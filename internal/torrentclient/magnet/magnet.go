// Package magnet extracts the BitTorrent v1 info hash from a magnet URI.
//
// Only the leading exact-topic field is understood. The URI must start with
// Prefix and be followed by the 40 hex digits of the hash; anything after
// that (display name, trackers) is ignored.
package magnet

import (
	"encoding/hex"
	"errors"
	"fmt"
)

const Prefix = "magnet:?xt=urn:btih:"

const hexLen = 2 * HashSize

const HashSize = 20

var ErrInvalidMagnetURI = errors.New("invalid magnet URI")

// Hash is a 20-byte info hash. A Hash returned by Parse is never zero.
type Hash [HashSize]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

// URI renders h as the shortest magnet URI Parse accepts.
func (h Hash) URI() string {
	return Prefix + h.String()
}

func Parse(uri string) (Hash, error) {
	var h Hash
	if len(uri) < len(Prefix) || uri[:len(Prefix)] != Prefix {
		return h, fmt.Errorf("%w: missing %q prefix", ErrInvalidMagnetURI, Prefix)
	}
	field := uri[len(Prefix):]
	if len(field) < hexLen {
		return h, fmt.Errorf("%w: hash field has %d characters, want %d", ErrInvalidMagnetURI, len(field), hexLen)
	}
	if _, err := hex.Decode(h[:], []byte(field[:hexLen])); err != nil {
		return Hash{}, fmt.Errorf("%w: %v", ErrInvalidMagnetURI, err)
	}
	if h.IsZero() {
		return h, fmt.Errorf("%w: all-zero info hash", ErrInvalidMagnetURI)
	}
	return h, nil
}

func MustParse(uri string) Hash {
	h, err := Parse(uri)
	if err != nil {
		panic(err)
	}
	return h
}
