// Package vectorize mirrors the pluggable batch transformer boundary
// described in original_source/vectorize_cli/backend.py: a ModelBackend ABC
// with one method that turns a chunk of input lines into fixed-width
// binary vector records. Spec §1 treats the actual ML model as an external
// collaborator ("any stub satisfying that contract is sufficient"); this
// package is that contract plus one deterministic stub, not a model.
package vectorize

import (
	"encoding/binary"
	"hash/fnv"
	"io"
	"math"
)

// RecordWidth is the fixed per-item byte count every Backend must produce,
// per spec §6: "Output record width: 4096 bytes per item". The worker
// runner's resume arithmetic (output file size / RecordWidth) depends on
// every implementation honoring this exactly.
const RecordWidth = 4096

// dims is the number of float32 lanes that fill one RecordWidth record.
const dims = RecordWidth / 4

// Backend turns a chunk of input lines into one binary write of
// len(chunk)*RecordWidth bytes, in order, mirroring
// ModelBackend.process_chunk_to_array in original_source/backends/*.py.
type Backend interface {
	ProcessChunk(chunk []string, w io.Writer) error
}

// HashBackend is a deterministic stand-in for a real embedding model,
// grounded on the structure of original_source/backends/bloom.go (load
// once, process_chunk per call) but replacing the tokenizer/model
// inference with an FNV-1a hash of the input line expanded into a
// fixed-width float32 vector. Determinism is required by the spec's
// résumé-idempotence law (§8): the same input chunk must always produce
// the same bytes, so a test can assert output equality between an
// uninterrupted run and a paused-then-resumed one.
type HashBackend struct{}

// NewHashBackend constructs the stub backend. Takes no arguments since it
// has no weights to load, unlike a real model backend.
func NewHashBackend() *HashBackend {
	return &HashBackend{}
}

// ProcessChunk writes one RecordWidth-byte vector per input line, each
// lane derived from a running FNV-1a hash of the line seeded by the lane
// index, folded into [-1, 1] the way a normalized embedding would be.
func (b *HashBackend) ProcessChunk(chunk []string, w io.Writer) error {
	buf := make([]byte, RecordWidth)

	for _, line := range chunk {
		h := fnv.New64a()
		_, _ = h.Write([]byte(line))
		seed := h.Sum64()

		for lane := 0; lane < dims; lane++ {
			v := mix(seed, uint64(lane))
			binary.LittleEndian.PutUint32(buf[lane*4:lane*4+4], math.Float32bits(v))
		}

		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// mix derives a pseudo-random float32 in [-1, 1] from a seed and a lane
// index, stable across runs and processes (no global RNG state).
func mix(seed, lane uint64) float32 {
	x := seed ^ (lane * 0x9E3779B97F4A7C15)
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33

	// Top 24 bits -> uniform in [0, 1), then rescale to [-1, 1].
	frac := float64(x>>40) / float64(1<<24)
	return float32(frac*2 - 1)
}
