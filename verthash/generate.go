package verthash

import (
	"io/ioutil"

	"github.com/bmkessler/haraka"
	"go.uber.org/zap"
)

// DefaultDatasetWords is small on purpose: a real Verthash dataset is
// ~1GiB, but this module never implements VerthashCore for real, so the
// generator produces a dataset sized for tests and local runs rather than
// actual mining.
const DefaultDatasetWords = 1 << 16

// GenerateDataFile synthesizes a dataset at path from seed, mirroring
// VerthashWrapper::generateDataFile's shape (CPU-bound, may run a long
// time for a real-sized dataset, progress-logged, returns 0 on success).
// It does not touch Manager's state (spec.md §4.1).
func GenerateDataFile(path string, seed []byte, words int, logger *zap.Logger) int {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.With(zap.String("component", "cpu"))
	if words <= 0 {
		words = DefaultDatasetWords
	}

	data := make([]byte, words*wordSize)
	var block [64]byte
	copy(block[:32], seed)

	const progressEvery = 1 << 20
	var out [32]byte
	for i := 0; i < words; i++ {
		haraka.Haraka512(&out, &block)
		copy(data[i*wordSize:(i+1)*wordSize], out[:wordSize])
		copy(block[32:], out[:])
		copy(block[:32], out[:])
		if i > 0 && i%progressEvery == 0 {
			log.Info("generating verthash dataset", zap.Int("words", i), zap.Int("total", words))
		}
	}

	if err := ioutil.WriteFile(path, data, 0o644); err != nil {
		log.Error("failed to write verthash dataset", zap.Error(err))
		return 1
	}
	if err := writeDigest(path, data); err != nil {
		log.Error("failed to write verthash dataset digest", zap.Error(err))
		return 1
	}
	log.Info("verthash dataset generated", zap.String("path", path), zap.Int("bytes", len(data)))
	return 0
}
