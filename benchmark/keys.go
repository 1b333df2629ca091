package benchmark

import (
	"encoding/binary"
	"encoding/hex"
	"strconv"

	"github.com/ethereum/go-ethereum/crypto"
)

// KeyScheme turns a numeric document id into the id written to the store.
// Every scheme is injective, so unique ids stay unique keys.
type KeyScheme string

const (
	// KeySchemeSequential uses the decimal id, so consecutive documents land
	// next to each other in ordered key spaces
	KeySchemeSequential KeyScheme = "sequential"

	// KeySchemeHashed uses the hex Keccak-256 of the id, spreading writes
	// uniformly across the key space
	KeySchemeHashed KeyScheme = "hashed"
)

// Valid reports whether s names a known scheme
func (s KeyScheme) Valid() bool {
	switch s {
	case KeySchemeSequential, KeySchemeHashed:
		return true
	default:
		return false
	}
}

// Key renders id under the scheme
func (s KeyScheme) Key(id int64) string {
	if s == KeySchemeHashed {
		var raw [8]byte
		binary.BigEndian.PutUint64(raw[:], uint64(id))
		return hex.EncodeToString(crypto.Keccak256(raw[:]))
	}
	return strconv.FormatInt(id, 10)
}
