package mining

import (
	"bytes"
	"crypto/sha256"
	"encoding"

	"github.com/pkg/errors"
)

// MergedMiningTag is the byte sequence that marks the merged mining hash
// inside the bitcoin coinbase transaction. The 32 byte hash for merged
// mining immediately follows it.
var MergedMiningTag = []byte("EMBERBLOCK:")

const (
	// mergedMiningHashSize is the size of the hash embedded after the
	// tag.
	mergedMiningHashSize = 32

	// MaxBytesAfterMergedMiningHash caps how much data the coinbase may
	// carry after the embedded hash.
	MaxBytesAfterMergedMiningHash = 128

	// sha256BlockSize is the internal block size of SHA-256. The codec
	// relies on the compression function state after whole blocks being
	// reproducible without the hashed prefix.
	sha256BlockSize = 64

	// midstateOffset and midstateTrimmedSize select the window of the
	// marshaled SHA-256 state that is kept as the compressed prefix.
	midstateOffset      = 8
	midstateTrimmedSize = 28
)

// ErrCoinbaseLayout is returned when a coinbase transaction does not have
// the layout the codec expects.
var ErrCoinbaseLayout = errors.New("invalid coinbase transaction layout")

// CompressCoinbase compresses a serialized bitcoin coinbase transaction
// around the last occurrence of the merged mining tag. See
// CompressCoinbaseWithTagPosition.
func CompressCoinbase(coinbaseTx []byte) ([]byte, error) {
	return CompressCoinbaseWithTagPosition(coinbaseTx, true)
}

// CompressCoinbaseWithTagPosition compresses a serialized bitcoin coinbase
// transaction: everything before the last whole 64 byte SHA-256 block
// preceding the merged mining tag is replaced by a trimmed SHA-256 midstate,
// while the remainder, tag and embedded hash included, is kept verbatim.
// The result reconstructs the transaction hash without carrying the full
// prefix, keeping the stored coinbase under the embedding size limit.
//
// lastOccurrence selects whether the last or the first occurrence of the
// tag anchors the layout.
func CompressCoinbaseWithTagPosition(coinbaseTx []byte, lastOccurrence bool) ([]byte, error) {
	var tagPosition int
	if lastOccurrence {
		tagPosition = bytes.LastIndex(coinbaseTx, MergedMiningTag)
	} else {
		tagPosition = bytes.Index(coinbaseTx, MergedMiningTag)
	}
	if tagPosition < 0 {
		return nil, errors.Wrap(ErrCoinbaseLayout, "merged mining tag not found")
	}

	remainingByteCount := len(coinbaseTx) - tagPosition - len(MergedMiningTag) - mergedMiningHashSize
	if remainingByteCount > MaxBytesAfterMergedMiningHash {
		return nil, errors.Wrapf(ErrCoinbaseLayout, "more than %d bytes after the merged mining hash",
			MaxBytesAfterMergedMiningHash)
	}

	hashedLength := (tagPosition / sha256BlockSize) * sha256BlockSize
	midstate, err := sha256Midstate(coinbaseTx[:hashedLength])
	if err != nil {
		return nil, err
	}

	compressed := make([]byte, 0, midstateTrimmedSize+len(coinbaseTx)-hashedLength)
	compressed = append(compressed, midstate...)
	compressed = append(compressed, coinbaseTx[hashedLength:]...)
	return compressed, nil
}

// sha256Midstate returns the trimmed SHA-256 midstate after hashing prefix,
// whose length must be a multiple of the SHA-256 block size.
func sha256Midstate(prefix []byte) ([]byte, error) {
	digest := sha256.New()
	digest.Write(prefix)
	state, err := digest.(encoding.BinaryMarshaler).MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal SHA-256 state")
	}
	return state[midstateOffset : midstateOffset+midstateTrimmedSize], nil
}
