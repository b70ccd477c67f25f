// Package types holds the data model shared by the client, strategy and
// verthash packages: pool descriptions, connection state, jobs and results.
package types

// Algorithm identifies the hashing algorithm a pool negotiates on login.
type Algorithm string

const (
	AlgoVerthash Algorithm = "verthash"
	// AlgoAutoETH is an algorithm name; nothing in this module selects it.
	// Donation pools are marked with ProtocolAutoETH (a ProtocolMode), not
	// with this constant.
	AlgoAutoETH Algorithm = "auto_eth"
)

// ProtocolMode names which wire handshake a pool expects. StratumPoolClient
// does not read it: it always sends mining.subscribe only.
type ProtocolMode int

const (
	// ProtocolStratum is the classic mining.subscribe/mining.authorize flow.
	ProtocolStratum ProtocolMode = iota
	// ProtocolAutoETH lets the client try the XMRig-style single "login"
	// call first and fall back to ProtocolStratum if the pool rejects it.
	ProtocolAutoETH
)

// Pool is an immutable description of a remote mining pool endpoint.
// Identity for equality purposes is (Host, Port, User, TLS) per spec.
type Pool struct {
	Host      string
	Port      int
	User      string
	Pass      string
	Secret    string
	TLS       bool
	Keepalive bool
	Mode      ProtocolMode
}

// Equal reports whether two pools have the same identity.
func (p Pool) Equal(o Pool) bool {
	return p.Host == o.Host && p.Port == o.Port && p.User == o.User && p.TLS == o.TLS
}

func (p Pool) String() string {
	scheme := "stratum+tcp"
	if p.TLS {
		scheme = "stratum+ssl"
	}
	return scheme + "://" + p.Host + ":" + portString(p.Port)
}

func portString(port int) string {
	if port == 0 {
		return "0"
	}
	neg := port < 0
	if neg {
		port = -port
	}
	var buf [8]byte
	i := len(buf)
	for port > 0 {
		i--
		buf[i] = byte('0' + port%10)
		port /= 10
	}
	s := string(buf[i:])
	if neg {
		return "-" + s
	}
	return s
}

// ConnectionState is the lifecycle state of a PoolClient.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateAuthorized
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthorized:
		return "authorized"
	default:
		return "unknown"
	}
}

// Extension is a bit in a PoolClient's capability mask, per
// original_source's IClient::Extension enum.
type Extension int

const (
	ExtAlgo Extension = 1 << iota
	ExtConnect
	ExtTLS
	ExtKeepalive
)

// Job is an opaque work unit. The core never interprets HeaderBlob; it only
// forwards it between the owning PoolClient and the StrategyListener.
type Job struct {
	Algo       Algorithm
	Height     uint64
	Diff       float64
	Seed       []byte
	HeaderBlob [80]byte
	ID         string
}

// ExtraParams carries the optional extra login/job parameters a listener or
// a DonateStrategy may attach (algo list, diff, height, seed_hash).
type ExtraParams struct {
	Algo     []Algorithm
	Diff     float64
	Height   uint64
	SeedHash string
}

// JobResult is a candidate solution forwarded from the hash runner back
// through a strategy to the owning PoolClient.
type JobResult struct {
	JobID    string
	Nonce    uint32
	Result   []byte
	PoolDiff float64
}

// SubmitResult is the outcome of a JobResult submission, forwarded verbatim
// from a PoolClient's onResultAccepted callback to the listener.
type SubmitResult struct {
	SeqNumber int64
	Accepted  bool
	Err       error
}
