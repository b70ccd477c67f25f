// Package client defines the PoolClient contract the strategy layer
// consumes (spec.md §6) plus one concrete, intentionally small
// implementation (StratumPoolClient) and a scriptable mock used by the
// strategy test suite. Stratum wire framing, TLS termination and JSON
// parsing are out of this module's hard scope (spec.md §1 names PoolClient
// as an external collaborator) — StratumPoolClient exists only so the repo
// is runnable end to end, not as the thing under test.
package client

import (
	"time"

	"github.com/AGPFMiner/vertminer/types"
)

// LoginParams is the outbound login/authorize payload a Listener may amend
// before it is sent, per spec.md §6's "onLogin(doc, params) — mutates
// params before send".
type LoginParams struct {
	User     string
	Pass     string
	Algo     []types.Algorithm
	Diff     float64
	Height   uint64
	SeedHash string
}

// Listener is the capability set a PoolClient emits events on. Strategies
// implement it to receive exactly-once-per-event callbacks.
type Listener interface {
	OnLogin(c PoolClient, params *LoginParams)
	OnLoginSuccess(c PoolClient)
	OnJobReceived(c PoolClient, job types.Job, extra *types.ExtraParams)
	OnClose(c PoolClient, failures int)
	OnResultAccepted(c PoolClient, result types.SubmitResult)
	OnVerifyAlgorithm(c PoolClient, algo types.Algorithm, ok *bool)
}

// PoolClient is a polymorphic handle over a Pool (spec.md §3/§6). Exactly
// one strategy owns an instance; it is never aliased.
type PoolClient interface {
	ID() int
	SetID(id int)
	Pool() types.Pool
	IP() string
	IsTLS() bool
	HasExtension(ext types.Extension) bool
	State() types.ConnectionState

	SetListener(l Listener)
	SetRetries(n int)
	SetRetryPause(d time.Duration)
	SetQuiet(quiet bool)
	SetPool(p types.Pool)
	SetAlgo(algo types.Algorithm)
	SetProxy(proxyURL string)

	Connect()
	Disconnect()
	Submit(result types.JobResult) int64
	Tick(now time.Time)

	// DeleteLater schedules the client for deferred destruction; no further
	// callbacks are delivered after this call returns, per spec.md §5.
	DeleteLater()
}
