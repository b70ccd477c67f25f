// Package strategy implements the pool-connection strategy core: the
// layered state machine that decides which upstream pool a worker talks to,
// how it fails over, and how it time-multiplexes operator pools against a
// periodic donation pool set (spec.md §4).
package strategy

import (
	"time"

	"github.com/AGPFMiner/vertminer/client"
	"github.com/AGPFMiner/vertminer/types"
)

// Strategy is the abstraction every consumer holds, with exactly two
// variants (Single, Failover) per spec.md §9 — a DonateStrategy wraps one of
// them rather than being a third variant of the same interface, since it
// also owns a proxy and a clock-driven state machine no nested strategy has.
type Strategy interface {
	Connect()
	Stop()
	Resume()
	Tick(now time.Time)
	Submit(result types.JobResult) int64
	SetAlgo(algo types.Algorithm)
	SetProxy(proxyURL string)
	Active() client.PoolClient
}

// Listener is the StrategyListener capability set a Strategy emits events
// on (spec.md §6): every PoolClient event, plus onActive/onPause.
type Listener interface {
	OnLogin(c client.PoolClient, params *client.LoginParams)
	OnLoginSuccess(c client.PoolClient)
	OnJobReceived(c client.PoolClient, job types.Job, extra *types.ExtraParams)
	OnClose(c client.PoolClient, failures int)
	OnResultAccepted(c client.PoolClient, result types.SubmitResult)
	OnVerifyAlgorithm(c client.PoolClient, algo types.Algorithm, ok *bool)
	OnActive(c client.PoolClient)
	OnPause()
}
