package strategy

import (
	"time"

	"github.com/AGPFMiner/vertminer/client"
	"github.com/AGPFMiner/vertminer/types"
)

// FailoverStrategy owns an ordered list of PoolClient and cascades through
// them on failure (spec.md §4.3). It is the largest and most load-bearing
// piece of this module: the deferred-connect/tick-drain guard against
// client-callback re-entrancy, the zero-retry minAcceptableIndex cascade,
// and the nonzero-retry pool-0 retry-in-place branch all live here, ported
// from original_source/src/base/net/stratum/strategies/FailoverStrategy.cpp.
//
// All methods run on a single cooperative event loop (spec.md §5): none of
// them may block, and no client method is ever invoked from inside a
// callback from that same client — close events defer the next connect to
// the following Tick via pendingConnect/pendingIndex.
type FailoverStrategy struct {
	clients    []client.PoolClient
	retries    int
	retryPause time.Duration
	listener   Listener

	index              int // m_index: candidate currently being attempted/active
	active             int // m_active: id of the authorized client, -1 if none
	minAcceptableIndex int // m_minAcceptableIndex, zero-retry mode only

	pendingConnect bool
	pendingIndex   int

	lastJob types.Job
}

// NewFailoverStrategy constructs a FailoverStrategy over clients, each
// assigned id = its index in the slice, per spec.md §4.3.
func NewFailoverStrategy(clients []client.PoolClient, retries int, retryPause time.Duration, listener Listener) *FailoverStrategy {
	f := &FailoverStrategy{
		clients:    clients,
		retries:    retries,
		retryPause: retryPause,
		listener:   listener,
		active:     -1,
	}
	for i, c := range clients {
		c.SetID(i)
		c.SetListener(f)
		c.SetRetries(retries)
		c.SetRetryPause(retryPause)
	}
	return f
}

// Connect begins the cascade at pool 0.
func (f *FailoverStrategy) Connect() {
	f.index = 0
	f.clients[f.index].Connect()
}

// Submit forwards result to the active client, or reports -1 if none is
// active — there is no local queue (spec.md §4.3).
func (f *FailoverStrategy) Submit(result types.JobResult) int64 {
	if f.active < 0 {
		return -1
	}
	return f.clients[f.active].Submit(result)
}

// Tick forwards now to every owned client so their reconnect timers
// advance, then drains any pending deferred connect raised by onClose.
func (f *FailoverStrategy) Tick(now time.Time) {
	for _, c := range f.clients {
		c.Tick(now)
	}
	f.drainPendingConnect()
}

func (f *FailoverStrategy) drainPendingConnect() {
	if !f.pendingConnect {
		return
	}
	f.pendingConnect = false
	f.index = f.pendingIndex
	f.clients[f.index].Connect()
}

// Stop disconnects every client and resets to the initial cascade state.
// Idempotent: a second call disconnects already-disconnected clients and
// re-emits onPause, which is harmless.
func (f *FailoverStrategy) Stop() {
	for _, c := range f.clients {
		c.Disconnect()
	}
	f.index = 0
	f.active = -1
	f.pendingConnect = false
	f.listener.OnPause()
}

func (f *FailoverStrategy) SetAlgo(algo types.Algorithm) {
	for _, c := range f.clients {
		c.SetAlgo(algo)
	}
}

func (f *FailoverStrategy) SetProxy(proxyURL string) {
	for _, c := range f.clients {
		c.SetProxy(proxyURL)
	}
}

// Resume re-emits the current job to the listener with a null extra-params
// payload, if a pool is active.
func (f *FailoverStrategy) Resume() {
	if f.active < 0 {
		return
	}
	f.listener.OnJobReceived(f.clients[f.active], f.lastJob, nil)
}

// Active returns the authorized client, or nil if none.
func (f *FailoverStrategy) Active() client.PoolClient {
	if f.active < 0 {
		return nil
	}
	return f.clients[f.active]
}

// client.Listener — FailoverStrategy is its own clients' listener.

func (f *FailoverStrategy) OnLogin(c client.PoolClient, params *client.LoginParams) {
	f.listener.OnLogin(c, params)
}

func (f *FailoverStrategy) OnVerifyAlgorithm(c client.PoolClient, algo types.Algorithm, ok *bool) {
	f.listener.OnVerifyAlgorithm(c, algo, ok)
}

func (f *FailoverStrategy) OnResultAccepted(c client.PoolClient, result types.SubmitResult) {
	f.listener.OnResultAccepted(c, result)
}

// OnJobReceived forwards only jobs from the active client; every other
// pool is ignored even if it sends jobs, so nothing ever mines on a
// non-authorized pool.
func (f *FailoverStrategy) OnJobReceived(c client.PoolClient, job types.Job, extra *types.ExtraParams) {
	if c.ID() != f.active {
		return
	}
	f.lastJob = job
	f.listener.OnJobReceived(c, job, extra)
}

// OnLoginSuccess promotes client to active per spec.md §4.3. It
// unconditionally disconnects every other pool in the list, even
// lower-priority pools that might be valid backups in high-retry mode —
// this is the literal, intentional reading of spec.md §9's second Open
// Question.
func (f *FailoverStrategy) OnLoginSuccess(c client.PoolClient) {
	id := c.ID()
	if f.retries == 0 && id < f.minAcceptableIndex {
		// A lower-priority pool must not steal the active slot once we have
		// begun cascading upward.
		c.Disconnect()
		return
	}

	f.pendingConnect = false
	f.minAcceptableIndex = 0

	// keep is the tentative survivor: id itself if this login is actually
	// going to be promoted, otherwise whichever client is already active.
	// A spurious OnLoginSuccess from a stale/leftover connection must not
	// tear down a genuinely active pool just because it isn't id.
	promote := id == 0 || f.active < 0
	keep := f.active
	if promote {
		keep = id
	}

	for i, other := range f.clients {
		if i != keep {
			other.Disconnect()
		}
	}

	if !promote {
		return
	}
	f.index = id
	changed := f.active != id
	f.active = id
	if changed {
		f.listener.OnActive(c)
	}
}

// OnClose handles a client disconnect. failures == -1 marks an explicit
// local disconnect and is ignored entirely (spec.md §4.3, §8 invariant 2).
func (f *FailoverStrategy) OnClose(c client.PoolClient, failures int) {
	if failures == -1 {
		return
	}
	id := c.ID()
	if id == f.active {
		f.active = -1
		f.listener.OnPause()
	}
	if f.retries == 0 {
		f.onCloseZeroRetry(id)
		return
	}
	f.onCloseWithRetry(id, failures)
}

func (f *FailoverStrategy) onCloseZeroRetry(id int) {
	if id < f.minAcceptableIndex {
		// Cancel this pool's own reconnect timer; we're done listening to it
		// until the cascade wraps back around.
		f.clients[id].Disconnect()
		return
	}
	if id != f.index {
		return
	}
	for i, c := range f.clients {
		if i <= f.index {
			c.Disconnect()
		}
	}
	next := (f.index + 1) % len(f.clients)
	f.pendingIndex = next
	if next == 0 {
		f.minAcceptableIndex = 0
	} else {
		f.minAcceptableIndex = next
	}
	// Deferred to the next Tick: connecting synchronously here would
	// re-enter the client through its own DNS-failure close path.
	f.pendingConnect = true
}

func (f *FailoverStrategy) onCloseWithRetry(id, failures int) {
	if f.index == 0 && failures < f.retries {
		// Let the client retry in place via its own internal reconnect
		// timer, advanced by Tick.
		return
	}
	if id == f.index && f.index+1 < len(f.clients) {
		f.index++
		f.clients[f.index].Connect()
	}
}
