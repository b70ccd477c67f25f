package strategy

import (
	"github.com/jinzhu/copier"

	"github.com/AGPFMiner/vertminer/client"
	"github.com/AGPFMiner/vertminer/types"
)

// DonateProxy is the self-connecting client DonateStrategy uses when the
// operator pool advertises ExtConnect: rather than opening a second socket
// to the donation endpoint, DonateStrategy points a client at the operator's
// own host/port and logs in with donation credentials, so the donated work
// actually travels over the pool's own proxy-aware connect extension
// (spec.md §4.4's "proxy donation" path; SPEC_FULL.md item 6).
//
// DonateProxy does not reimplement failover — it counts its own consecutive
// failures so DonateStrategy can fall back to the direct donation pool list
// after two in a row, and resets that count on any login success.
type DonateProxy struct {
	client.PoolClient
	consecutiveFailures int
}

// NewDonateProxy builds a PoolClient whose pool is the operator's current
// endpoint with donation credentials substituted in, via newClient (the
// same constructor the owning strategy uses for its other clients).
func NewDonateProxy(operatorPool types.Pool, donateUser, donatePass string, newClient func(types.Pool) client.PoolClient) *DonateProxy {
	// Clone the operator's endpoint (host, port, TLS, keepalive) rather than
	// listing those fields again here, so a later Pool field added to the
	// operator side is picked up without touching this constructor.
	var pool types.Pool
	copier.Copy(&pool, &operatorPool)
	pool.User = donateUser
	pool.Pass = donatePass
	pool.Mode = types.ProtocolAutoETH
	pool.Secret = ""
	return &DonateProxy{PoolClient: newClient(pool)}
}

// RecordFailure increments and returns the consecutive-failure count.
func (p *DonateProxy) RecordFailure() int {
	p.consecutiveFailures++
	return p.consecutiveFailures
}

// ResetFailures clears the consecutive-failure count, on any login success.
func (p *DonateProxy) ResetFailures() {
	p.consecutiveFailures = 0
}

// Exhausted reports whether the proxy has now failed twice in a row, the
// threshold at which DonateStrategy gives up on it for this CONNECT cycle
// and falls back to its own direct donation pool list.
func (p *DonateProxy) Exhausted() bool {
	return p.consecutiveFailures >= 2
}
