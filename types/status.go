package types

// PoolStatus is the JSON shape reported by the miner's status API for a
// single PoolClient, replacing the teacher's PoolStates.
type PoolStatus struct {
	ID       int             `json:"id"`
	Pool     string          `json:"pool"`
	User     string          `json:"user"`
	State    ConnectionState `json:"state"`
	Active   bool            `json:"active"`
	Accepted int64           `json:"accepted"`
	Rejected int64           `json:"rejected"`
	Diff     float64         `json:"diff"`
	LastJob  string          `json:"lastJob"`
}

// DatasetStatus is the JSON shape reported for the Verthash dataset.
type DatasetStatus struct {
	Valid   bool   `json:"valid"`
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	Bitmask uint32 `json:"bitmask"`
}

// MinerStatus is the top-level status document served by the miner's API.
type MinerStatus struct {
	Pools      []PoolStatus  `json:"pools"`
	Dataset    DatasetStatus `json:"dataset"`
	DonateMode string        `json:"donateMode"`
	Time       int64         `json:"time"`
}
