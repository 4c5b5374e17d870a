package mimalloc

import (
	"crypto/rand"
	"encoding/binary"
)

// prngState is the splittable PRNG named in §6 (random_next/random_split).
// A xoshiro256** generator, chosen because splitting it cheaply (seed the
// child's four state words from four successive outputs of the parent)
// avoids the correlation pitfalls of splitting a simpler LCG, while still
// being fast enough to call on every heap creation and its link-encoding
// key derivation.
type prngState struct {
	s [4]uint64
}

func rotl(x uint64, k uint) uint64 { return x<<k | x>>(64-k) }

// next advances the state and returns the next pseudo-random value. This
// is random_next(state) from §6.
func (p *prngState) next() uint64 {
	result := rotl(p.s[1]*5, 7) * 9

	t := p.s[1] << 17
	p.s[2] ^= p.s[0]
	p.s[3] ^= p.s[1]
	p.s[1] ^= p.s[2]
	p.s[0] ^= p.s[3]
	p.s[2] ^= t
	p.s[3] = rotl(p.s[3], 45)

	return result
}

// split derives an independent child state from p, advancing p in the
// process so the parent and every previously-split child remain
// decorrelated. This is random_split(parent, child) from §6, used when
// creating a heap to derive its PRNG state from its parent thread's.
func (p *prngState) split() prngState {
	var child prngState
	for i := range child.s {
		child.s[i] = p.next()
	}
	return child
}

// seedPRNG produces a fresh, independently-seeded root state for a
// backing heap (one with no parent PRNG to split from). Uses
// crypto/rand rather than a time-based seed since the PRNG's output
// doubles as the link-obfuscation key material (§4.3/§9).
func seedPRNG() prngState {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing indicates a broken OS entropy source; the
		// process is already in trouble, but callers of heap creation
		// should still get usable (if weaker) state rather than a panic.
		for i := range buf {
			buf[i] = byte(i*2654435761 + 0x9e3779b9)
		}
	}
	var s prngState
	for i := range s.s {
		s.s[i] = binary.LittleEndian.Uint64(buf[i*8 : i*8+8])
	}
	// Burn a few rounds so a weak fallback seed still mixes before first use.
	for i := 0; i < 16; i++ {
		s.next()
	}
	return s
}
