package verthash

import (
	"encoding/hex"
	"errors"
	"io/ioutil"
	"os"

	"golang.org/x/crypto/ripemd160"
)

const wordSize = 4

var errEmptyDataset = errors.New("verthash: dataset file is empty")
var errDigestMismatch = errors.New("verthash: dataset content digest mismatch")

// loadFile reads path into memory and computes its bitmask from the word
// count, per spec.md §3 ("supplied by the loader, not recomputed"). If a
// sidecar digest written by GenerateDataFile exists alongside path, its
// content is checked; a dataset dropped in from elsewhere with no sidecar
// loads without a digest check.
func loadFile(path string) ([]byte, uint32, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	if len(data) == 0 {
		return nil, 0, errEmptyDataset
	}
	if err := checkDigest(path, data); err != nil {
		return nil, 0, err
	}
	words := uint64(len(data) / wordSize)
	if words == 0 {
		words = 1
	}
	bitmask := uint32(nextPowerOfTwo(words) - 1)
	return data, bitmask, nil
}

func digestPath(path string) string { return path + ".ripemd160" }

func checkDigest(path string, data []byte) error {
	want, err := ioutil.ReadFile(digestPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	h := ripemd160.New()
	h.Write(data)
	got := hex.EncodeToString(h.Sum(nil))
	if string(want) != got {
		return errDigestMismatch
	}
	return nil
}

func writeDigest(path string, data []byte) error {
	h := ripemd160.New()
	h.Write(data)
	sum := hex.EncodeToString(h.Sum(nil))
	return ioutil.WriteFile(digestPath(path), []byte(sum), 0o644)
}

func nextPowerOfTwo(n uint64) uint64 {
	if n <= 1 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
