// Package verthash implements the dataset manager described in spec.md
// §4.1: a process-wide, mutex-guarded singleton owning the multi-gigabyte
// Verthash dataset, with idempotent init/reload and one-shot generation.
// The inner hash function itself (VerthashCore) is out of this module's
// scope per spec.md §1 — this package only loads, validates and publishes
// the dataset region, and hands it to whatever VerthashCore implementation
// is configured.
package verthash

import (
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// DatasetInfo is the published, read-only-after-init dataset region
// (spec.md §3). Consumers that snapshot a *DatasetInfo may keep using it
// even if the manager is reloaded onto a different path underneath them —
// the region a snapshot points at is never mutated in place.
type DatasetInfo struct {
	Data    []byte
	Bitmask uint32
	Path    string
}

func (d *DatasetInfo) valid() bool {
	return d != nil && len(d.Data) > 0
}

// Manager is the process-wide dataset singleton. Use Default() to reach the
// shared instance; Manager is also exported so tests can construct an
// isolated instance instead of sharing process-wide state.
type Manager struct {
	mu          sync.Mutex
	initialized atomic.Bool
	info        atomic.Value // holds *DatasetInfo
	core        VerthashCore
	logger      *zap.Logger
}

var defaultManager = NewManager(nil, nil)

// Default returns the process-wide DatasetManager singleton every GPU
// uploader shares, per spec.md §4.1's rationale: one ~1GiB dataset, mapped
// once.
func Default() *Manager { return defaultManager }

// NewManager constructs a standalone dataset manager. core defaults to
// ReferenceCore if nil; logger defaults to a no-op logger if nil.
func NewManager(core VerthashCore, logger *zap.Logger) *Manager {
	if core == nil {
		core = ReferenceCore{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{core: core, logger: logger.With(zap.String("component", "verthash"))}
	m.info.Store((*DatasetInfo)(nil))
	return m
}

func (m *Manager) current() *DatasetInfo {
	v := m.info.Load()
	if v == nil {
		return nil
	}
	return v.(*DatasetInfo)
}

// Init loads path into the dataset region. If the manager is already
// initialized with the same path it returns true immediately without
// touching disk (spec.md §3 invariant 4, §8 invariant 4). Initializing
// with a different path atomically swaps the region.
func (m *Manager) Init(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur := m.current(); cur.valid() && cur.Path == path {
		return true
	}

	m.releaseLocked()

	data, bitmask, err := loadFile(path)
	if err != nil {
		m.logger.Error("failed to load verthash dataset", zap.String("path", path), zap.Error(err))
		return false
	}

	info := &DatasetInfo{Data: data, Bitmask: bitmask, Path: path}
	// Release/acquire publication: the Store below is the single point at
	// which other goroutines may observe a fully constructed region. Every
	// field of info is set before this line, and atomic.Value.Store carries
	// a release fence on this write.
	m.info.Store(info)
	m.initialized.Store(true)
	m.logger.Info("verthash dataset ready", zap.String("path", path), zap.Int("bytes", len(data)))
	return true
}

// Release frees the current region and clears state. The dataset is
// intended to outlive transient strategy rebuilds; callers invoke this only
// on explicit shutdown (spec.md §5).
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked()
}

func (m *Manager) releaseLocked() {
	m.info.Store((*DatasetInfo)(nil))
	m.initialized.Store(false)
}

// Data, Size, Bitmask, Path and IsValid are readable without the mutex —
// the happens-before relationship is established by the atomic.Value
// publication in Init, per spec.md §4.1/§9. Readers on other goroutines
// must have observed a successful Init (or later) before calling these for
// the guarantee to hold.
func (m *Manager) Data() []byte {
	info := m.current()
	if !info.valid() {
		return nil
	}
	return info.Data
}

func (m *Manager) Size() int64 {
	info := m.current()
	if !info.valid() {
		return 0
	}
	return int64(len(info.Data))
}

func (m *Manager) Bitmask() uint32 {
	info := m.current()
	if !info.valid() {
		return 0
	}
	return info.Bitmask
}

func (m *Manager) Path() string {
	info := m.current()
	if info == nil {
		return ""
	}
	return info.Path
}

func (m *Manager) IsValid() bool {
	return m.current().valid()
}

// Hash is a convenience wrapper delegating to the configured VerthashCore
// over the loaded dataset. It never fails hard: if the dataset is not
// valid it writes zeros to output and returns, because this is called from
// hot paths where a GPU kernel is the authoritative hasher and a CPU-side
// miss here should never crash the process (spec.md §4.1).
func (m *Manager) Hash(input80 [80]byte, output *[32]byte) {
	info := m.current()
	if !info.valid() {
		for i := range output {
			output[i] = 0
		}
		return
	}
	m.core.Hash(info.Data, info.Bitmask, input80, output)
}
