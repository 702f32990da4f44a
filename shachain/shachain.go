// Package shachain implements the compact per-commitment revocation secret
// storage scheme BOLT #3 calls "shachain" (§3, GLOSSARY): a
// producer side that derives one secret per commitment number from a 32-byte
// seed, and a store side that can hold any prefix of up to 49 revealed
// secrets yet answer a lookup for every commitment number at or before the
// highest one it has seen.
//
// No shachain tree-walking implementation appears in the retrieved reference
// code — only its call shape, via the NewRevocationProducer/NewRevocationStore
// usage in lnwallet's wallet code — so the bit-trie algorithm
// itself is supplied here directly from BOLT #3, the same source this
// engine already implements other formulas from (the commitment-number
// obscurer, the per-commitment key derivations). The binary layout used by
// Store.Encode/Decode follows the length-prefixed record style of
// elkrem/serdes.go, a pre-BOLT3 precursor to this same scheme.
package shachain

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/lightninglabs/onchaind/errkind"
)

// maxHeight is the bit-depth of the commitment-number counter (§6: 48-bit
// commitment numbers).
const maxHeight = 48

// rootIndex is the shachain "I" value corresponding to commitment number 0;
// I descends as the commitment number increases.
const rootIndex = (uint64(1) << maxHeight) - 1

// Hash is a 32-byte shachain secret or seed.
type Hash [32]byte

// flipBit flips bit b (0 = least significant) of h, using a big-endian
// byte layout consistent between Producer and Store.
func flipBit(h Hash, b uint) Hash {
	h[31-b/8] ^= 1 << (b % 8)
	return h
}

// deriveSecret walks the BOLT #3 generation algorithm starting from seed,
// examining bits fromBit downto 0 of index and flipping+hashing wherever
// that bit is set.
func deriveSecret(seed Hash, fromBit int, index uint64) Hash {
	p := seed
	for b := fromBit; b >= 0; b-- {
		if index&(uint64(1)<<uint(b)) != 0 {
			p = flipBit(p, uint(b))
			p = sha256.Sum256(p[:])
		}
	}
	return p
}

// Producer derives the per-commitment secret for any commitment number from
// a single 32-byte seed (the secrets this side reveals).
type Producer struct {
	seed Hash
}

// NewRevocationProducer builds a Producer over the given seed.
func NewRevocationProducer(seed Hash) *Producer {
	return &Producer{seed: seed}
}

// AtIndex derives the per-commitment secret for commitNum.
func (p *Producer) AtIndex(commitNum uint64) Hash {
	index := rootIndex - commitNum
	return deriveSecret(p.seed, maxHeight-1, index)
}

// Encode writes the producer's seed.
func (p *Producer) Encode(w io.Writer) error {
	_, err := w.Write(p.seed[:])
	return err
}

// Decode reads a producer's seed.
func (p *Producer) Decode(r io.Reader) error {
	_, err := io.ReadFull(r, p.seed[:])
	return err
}

// element is one of the up-to-49 secrets a Store retains.
type element struct {
	index  uint64
	secret Hash
}

// Store retains per-commitment secrets revealed by the counterparty and can
// derive the secret for any previously revealed commitment
// number from the minimal set it chooses to keep.
type Store struct {
	elements [maxHeight + 1]*element
}

// NewRevocationStore returns an empty Store.
func NewRevocationStore() *Store {
	return &Store{}
}

// trailingZeros counts the number of trailing zero bits of a maxHeight-bit
// value; index 0 reports maxHeight (every bit is eligible to verify
// against).
func trailingZeros(index uint64) uint {
	if index == 0 {
		return maxHeight
	}
	var n uint
	for index&1 == 0 {
		index >>= 1
		n++
	}
	if n > maxHeight {
		return maxHeight
	}
	return n
}

// AddNextEntropy stores the secret revealed for commitNum, verifying it is
// consistent with every previously stored secret it is now responsible for
// deriving.
func (s *Store) AddNextEntropy(secret Hash, commitNum uint64) error {
	index := rootIndex - commitNum
	bucket := trailingZeros(index)

	for i := uint(0); i < bucket; i++ {
		known := s.elements[i]
		if known == nil {
			continue
		}
		derived := deriveSecret(secret, int(bucket)-1, known.index)
		if derived != known.secret {
			return errkind.NewCryptoFailed(
				"shachain: secret for commit_num %d is "+
					"inconsistent with previously stored secret",
				commitNum)
		}
	}

	s.elements[bucket] = &element{index: index, secret: secret}
	return nil
}

// LookupSecret returns the per-commitment secret for commitNum if it can be
// derived from a stored element, and whether it was found — this is the
// shachain_index(commit_num) test of §4.1 step 4.
func (s *Store) LookupSecret(commitNum uint64) (Hash, bool) {
	index := rootIndex - commitNum

	for b := uint(0); b <= maxHeight; b++ {
		known := s.elements[b]
		if known == nil {
			continue
		}
		mask := ^uint64(0) << b
		if known.index&mask != index&mask {
			continue
		}
		return deriveSecret(known.secret, int(b)-1, index), true
	}
	return Hash{}, false
}

// Encode serializes the store as a count-prefixed list of (bucket, index,
// secret) records.
func (s *Store) Encode(w io.Writer) error {
	var count uint8
	for _, e := range s.elements {
		if e != nil {
			count++
		}
	}
	if err := binary.Write(w, binary.BigEndian, count); err != nil {
		return err
	}
	for bucket, e := range s.elements {
		if e == nil {
			continue
		}
		if err := binary.Write(w, binary.BigEndian, uint8(bucket)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, e.index); err != nil {
			return err
		}
		if _, err := w.Write(e.secret[:]); err != nil {
			return err
		}
	}
	return nil
}

// Decode reads a store previously written by Encode.
func (s *Store) Decode(r io.Reader) error {
	var count uint8
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return err
	}
	for i := uint8(0); i < count; i++ {
		var bucket uint8
		if err := binary.Read(r, binary.BigEndian, &bucket); err != nil {
			return err
		}
		if bucket > maxHeight {
			return fmt.Errorf("shachain: invalid bucket %d", bucket)
		}
		var e element
		if err := binary.Read(r, binary.BigEndian, &e.index); err != nil {
			return err
		}
		if _, err := io.ReadFull(r, e.secret[:]); err != nil {
			return err
		}
		s.elements[bucket] = &e
	}
	return nil
}
