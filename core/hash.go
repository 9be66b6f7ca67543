package core

import (
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"
)

// HashSize is the size in bytes of a Hash.
const HashSize = 32

// AddressSize is the size in bytes of an Address.
const AddressSize = 20

// Hash is the 32 byte Keccak-256 digest used to identify blocks and
// transactions.
type Hash [HashSize]byte

// Address is a 20 byte account address.
type Address [AddressSize]byte

// Keccak256 returns the Keccak-256 digest of the concatenation of the given
// byte slices.
func Keccak256(data ...[]byte) Hash {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	var hash Hash
	copy(hash[:], d.Sum(nil))
	return hash
}

// String returns the hash as the hexadecimal string of the bytes.
func (hash Hash) String() string {
	return hex.EncodeToString(hash[:])
}

// Short returns an abbreviated form of the hash used in log messages.
func (hash Hash) Short() string {
	return hex.EncodeToString(hash[:6])
}

// CloneBytes returns a copy of the bytes which represent the hash as a byte
// slice.
func (hash Hash) CloneBytes() []byte {
	newHash := make([]byte, HashSize)
	copy(newHash, hash[:])
	return newHash
}

// NewHash returns a new Hash from a byte slice. An error is returned if the
// number of bytes passed in is not HashSize.
func NewHash(newHash []byte) (Hash, error) {
	var hash Hash
	if len(newHash) != HashSize {
		return hash, errors.Errorf("invalid hash length of %d, want %d", len(newHash), HashSize)
	}
	copy(hash[:], newHash)
	return hash, nil
}

// ParseHash returns a Hash from its hexadecimal string form. A leading "0x"
// is allowed and ignored.
func ParseHash(s string) (Hash, error) {
	var hash Hash
	s = strings.TrimPrefix(s, "0x")
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return hash, errors.Wrapf(err, "invalid hash string %q", s)
	}
	return NewHash(decoded)
}

// String returns the address as the hexadecimal string of the bytes.
func (addr Address) String() string {
	return hex.EncodeToString(addr[:])
}

// ParseAddress returns an Address from its hexadecimal string form. A leading
// "0x" is allowed and ignored.
func ParseAddress(s string) (Address, error) {
	var addr Address
	s = strings.TrimPrefix(s, "0x")
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return addr, errors.Wrapf(err, "invalid address string %q", s)
	}
	if len(decoded) != AddressSize {
		return addr, errors.Errorf("invalid address length of %d, want %d", len(decoded), AddressSize)
	}
	copy(addr[:], decoded)
	return addr, nil
}
