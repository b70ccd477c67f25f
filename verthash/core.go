package verthash

// VerthashCore is the pure hash function over a dataset and an 80-byte
// header template (spec.md §1, named VerthashCore). It is explicitly out of
// this module's scope — Manager only loads and publishes the dataset this
// interface consumes. ReferenceCore below is not a real Verthash
// implementation; it exists so Manager.Hash and the test suite have
// something deterministic to call.
type VerthashCore interface {
	Hash(dataset []byte, bitmask uint32, input80 [80]byte, output *[32]byte)
}

// ReferenceCore is a placeholder VerthashCore: deterministic, dataset- and
// input-dependent, but not cryptographically meaningful. A real build wires
// in the GPU/CPU kernel that actually implements Verthash.
type ReferenceCore struct{}

func (ReferenceCore) Hash(dataset []byte, bitmask uint32, input80 [80]byte, output *[32]byte) {
	if len(dataset) == 0 {
		for i := range output {
			output[i] = 0
		}
		return
	}
	var acc [32]byte
	copy(acc[:], input80[:32])
	wordSize := 4
	words := uint32(len(dataset) / wordSize)
	if words == 0 {
		words = 1
	}
	idx := bitmask % words
	for round := 0; round < 32; round++ {
		off := int(idx) * wordSize
		if off+wordSize > len(dataset) {
			off = 0
		}
		for i := 0; i < wordSize; i++ {
			acc[(round+i)%32] ^= dataset[off+i]
		}
		idx = (idx*2654435761 + uint32(round)) & bitmask
		if idx >= words {
			idx %= words
		}
	}
	copy(output[:], acc[:])
}
