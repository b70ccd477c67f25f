package strategy

import (
	"encoding/hex"
	"fmt"
	"math/rand"
	"os"
	"time"

	solsha3 "github.com/miguelmota/go-solidity-sha3"
	"go.uber.org/zap"

	"github.com/AGPFMiner/vertminer/client"
	"github.com/AGPFMiner/vertminer/types"
)

// DonateState is a DonateStrategy's own clock-driven state, independent of
// any PoolClient's ConnectionState (spec.md §4.4).
type DonateState int

const (
	StateNew DonateState = iota
	StateIdle
	StateConnect
	StateActive
	StateWait
)

func (s DonateState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateIdle:
		return "idle"
	case StateConnect:
		return "connect"
	case StateActive:
		return "active"
	case StateWait:
		return "wait"
	default:
		return "unknown"
	}
}

// ProxyDonateMode selects whether DonateStrategy prefers tunneling donated
// work through the operator pool's own connect extension before falling
// back to its direct donation pool list.
type ProxyDonateMode int

const (
	ProxyDonateNone ProxyDonateMode = iota
	ProxyDonateAuto
)

// DonateConfig is the subset of the miner's configuration DonateStrategy
// needs to build its fixed-order donation pool list and its timing.
type DonateConfig struct {
	DonateLevel int // percent, e.g. 1 == 1% of mining time
	ProxyDonate ProxyDonateMode
	TestMode    bool // shrinks donate/idle timing to 30s/150s for tests

	Wallet string

	TLSSupported bool
	TLSHost      string
	TLSPort      int
	PlainHost    string
	PlainPort    int
	BackupHost   string
	BackupPort   int

	Retries    int
	RetryPause time.Duration
}

// DonateStrategy time-multiplexes the operator's pools against a periodic
// donation connection, per spec.md §4.4: NEW -> IDLE -> CONNECT -> ACTIVE ->
// WAIT -> IDLE, ticking forever once constructed. It never opens its own
// strategy variant; it wraps a Single or Failover strategy over the fixed
// three-pool donation list (TLS endpoint, plaintext endpoint, backup solo
// endpoint) and optionally tunnels through a DonateProxy instead, ported
// from original_source/src/base/net/stratum/strategies/DonateStrategy.cpp.
type DonateStrategy struct {
	cfg       DonateConfig
	operator  Strategy
	listener  Listener
	newClient func(types.Pool) client.PoolClient
	logger    *zap.Logger

	nested Strategy
	proxy  *DonateProxy

	state        DonateState
	idleTimer    *Timer
	activeTimer  *Timer
	connectTimer *Timer
	waitDeadline time.Time

	donateTime     time.Duration
	idleTime       time.Duration
	connectTimeout time.Duration
	retryPause     time.Duration
	rng            *rand.Rand

	algo       types.Algorithm
	lastDiff   float64
	lastHeight uint64
	lastSeed   []byte

	workerSuffix string
}

// NewDonateStrategy builds a DonateStrategy and immediately drives its NEW
// -> IDLE transition, arming the first idle timer.
func NewDonateStrategy(cfg DonateConfig, operator Strategy, listener Listener, newClient func(types.Pool) client.PoolClient, logger *zap.Logger) *DonateStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	workerSuffix, seed := deriveDonateSeed(cfg.Wallet)

	donateTime := time.Duration(cfg.DonateLevel) * time.Minute
	idleTime := time.Duration(100-cfg.DonateLevel) * time.Minute
	connectTimeout := 15 * time.Second
	retryPause := 20 * time.Second
	if cfg.TestMode {
		donateTime = 30 * time.Second
		idleTime = 150 * time.Second
		connectTimeout = 150 * time.Millisecond
		retryPause = 200 * time.Millisecond
	}

	d := &DonateStrategy{
		cfg:            cfg,
		operator:       operator,
		listener:       listener,
		newClient:      newClient,
		logger:         logger.With(zap.String("component", "donate")),
		idleTimer:      NewTimer(),
		activeTimer:    NewTimer(),
		connectTimer:   NewTimer(),
		donateTime:     donateTime,
		idleTime:       idleTime,
		connectTimeout: connectTimeout,
		retryPause:     retryPause,
		rng:            rand.New(rand.NewSource(seed)),
		algo:           types.AlgoVerthash,
		workerSuffix:   workerSuffix,
		state:          StateNew,
	}
	d.nested = d.newNestedStrategy()

	d.logger.Info("donate strategy initialized", zap.String("worker", workerSuffix), zap.Int("level", cfg.DonateLevel))
	d.state = StateIdle
	d.scheduleIdle(0.5, 1.5)
	return d
}

// deriveDonateSeed derives a per-process worker-name suffix and PRNG seed
// from the wallet, pid and start time, grounded on algorithms/trb/miner.go's
// use of solsha3.SoliditySHA3 for deterministic-but-unique byte derivation.
func deriveDonateSeed(wallet string) (workerSuffix string, rngSeed int64) {
	payload := []byte(fmt.Sprintf("%s:%d:%d", wallet, os.Getpid(), time.Now().UnixNano()))
	h := solsha3.SoliditySHA3(payload)
	n := 4
	if len(h) < n {
		n = len(h)
	}
	workerSuffix = hex.EncodeToString(h[:n])
	var seed int64
	for i := 0; i < 8 && i < len(h); i++ {
		seed = seed<<8 | int64(h[i])
	}
	if seed < 0 {
		seed = -seed
	}
	if seed == 0 {
		seed = 1
	}
	return workerSuffix, seed
}

func (d *DonateStrategy) donationUser() string {
	if d.workerSuffix == "" {
		return d.cfg.Wallet
	}
	return d.cfg.Wallet + "/" + d.workerSuffix
}

// donationPools builds the fixed-order list spec.md §4.4 names: TLS
// endpoint first (if compiled in and configured), then plaintext on the
// same host, then a solo-mode backup.
func (d *DonateStrategy) donationPools() []types.Pool {
	var pools []types.Pool
	if d.cfg.TLSSupported && d.cfg.TLSHost != "" {
		pools = append(pools, types.Pool{Host: d.cfg.TLSHost, Port: d.cfg.TLSPort, User: d.donationUser(), TLS: true, Mode: types.ProtocolAutoETH})
	}
	if d.cfg.PlainHost != "" {
		pools = append(pools, types.Pool{Host: d.cfg.PlainHost, Port: d.cfg.PlainPort, User: d.donationUser(), Mode: types.ProtocolAutoETH})
	}
	if d.cfg.BackupHost != "" {
		pools = append(pools, types.Pool{Host: d.cfg.BackupHost, Port: d.cfg.BackupPort, User: "solo:" + d.donationUser(), Mode: types.ProtocolAutoETH})
	}
	return pools
}

func (d *DonateStrategy) newNestedStrategy() Strategy {
	pools := d.donationPools()
	clients := make([]client.PoolClient, len(pools))
	for i, p := range pools {
		clients[i] = d.newClient(p)
	}
	if len(clients) == 1 {
		return NewSinglePoolStrategy(clients[0], d)
	}
	return NewFailoverStrategy(clients, d.cfg.Retries, d.cfg.RetryPause, d)
}

func (d *DonateStrategy) scheduleIdle(lo, hi float64) {
	jitter := lo + d.rng.Float64()*(hi-lo)
	delay := time.Duration(float64(d.idleTime) * jitter)
	d.idleTimer.Start(delay, 0)
}

// Connect is DonateStrategy's "donate now" trigger: it skips the remainder
// of the current idle wait and starts a connect attempt immediately. It is
// a no-op outside the IDLE state.
func (d *DonateStrategy) Connect() {
	if d.state != StateIdle {
		return
	}
	d.idleTimer.Stop()
	d.beginConnect()
}

func (d *DonateStrategy) beginConnect() {
	d.state = StateConnect
	d.connectTimer.Start(d.connectTimeout, 0)
	d.logger.Info("donate connecting")

	if d.cfg.ProxyDonate == ProxyDonateAuto && d.operator != nil {
		if active := d.operator.Active(); active != nil && active.HasExtension(types.ExtConnect) {
			d.proxy = NewDonateProxy(active.Pool(), d.donationUser(), "x", d.newClient)
			d.proxy.SetID(0)
			d.proxy.SetListener(d)
			d.proxy.SetAlgo(d.algo)
			d.proxy.Connect()
			return
		}
	}
	d.nested.Connect()
}

// abandonConnect gives up on the current CONNECT attempt — proxy exhausted,
// nested reported a loss, or the watchdog fired — and returns to IDLE on
// retryPause rather than the usual idleTime jitter, since this is a recovery
// retry, not a fresh cycle.
func (d *DonateStrategy) abandonConnect() {
	d.connectTimer.Stop()
	// Mark idle before tearing the nested strategy down: Stop() re-emits its
	// own OnPause synchronously, and without this guard that reentrant call
	// would see StateConnect and run OnPause's CONNECT branch a second time.
	d.state = StateIdle
	d.nested.Stop()
	if d.proxy != nil {
		d.proxy.DeleteLater()
		d.proxy = nil
	}
	d.idleTimer.Start(d.retryPause, 0)
	d.logger.Info("donate connect failed, retrying shortly")
}

// Stop tears down whatever connection attempt or active donation is in
// progress and reschedules the idle wait from scratch.
func (d *DonateStrategy) Stop() {
	d.idleTimer.Stop()
	d.activeTimer.Stop()
	d.nested.Stop()
	if d.proxy != nil {
		d.proxy.DeleteLater()
		d.proxy = nil
	}
	d.state = StateIdle
	d.scheduleIdle(0.5, 1.5)
}

// Resume is a no-op: donated jobs are pushed, not replayed on demand.
func (d *DonateStrategy) Resume() {}

func (d *DonateStrategy) Tick(now time.Time) {
	d.nested.Tick(now)
	if d.proxy != nil {
		d.proxy.Tick(now)
	}

	switch d.state {
	case StateIdle:
		if d.idleTimer.Fired() {
			d.beginConnect()
		}
	case StateConnect:
		if d.connectTimer.Fired() {
			d.abandonConnect()
		}
	case StateActive:
		if d.activeTimer.Fired() {
			d.enterWait(now)
		}
	case StateWait:
		if !now.Before(d.waitDeadline) {
			d.leaveWait()
		}
	}
}

func (d *DonateStrategy) enterWait(now time.Time) {
	d.state = StateWait
	d.waitDeadline = now.Add(3 * time.Second)
	d.logger.Info("donate cycle ending")
	d.listener.OnPause()
}

func (d *DonateStrategy) leaveWait() {
	d.nested.Stop()
	if d.proxy != nil {
		d.proxy.DeleteLater()
		d.proxy = nil
	}
	d.state = StateIdle
	d.scheduleIdle(0.8, 1.2)
}

func (d *DonateStrategy) transitionToActive(c client.PoolClient) {
	d.connectTimer.Stop()
	d.state = StateActive
	d.activeTimer.Start(d.donateTime, 0)
	d.logger.Info("donate cycle active")
	d.listener.OnActive(c)
}

func (d *DonateStrategy) Submit(result types.JobResult) int64 {
	active := d.Active()
	if active == nil {
		return -1
	}
	return active.Submit(result)
}

func (d *DonateStrategy) SetAlgo(algo types.Algorithm) {
	d.algo = algo
	d.nested.SetAlgo(algo)
	if d.proxy != nil {
		d.proxy.SetAlgo(algo)
	}
}

func (d *DonateStrategy) SetProxy(proxyURL string) {
	d.nested.SetProxy(proxyURL)
}

// Active returns whichever client is presently serving the donation cycle —
// the proxy tunnel if one is in use, otherwise the nested strategy's active
// client — or nil outside the ACTIVE state.
func (d *DonateStrategy) Active() client.PoolClient {
	if d.state != StateActive {
		return nil
	}
	if d.proxy != nil {
		return d.proxy.PoolClient
	}
	return d.nested.Active()
}

// NotifyOperatorJob lets the owning miner keep DonateStrategy's login
// parameters (diff, height, seed hash) fresh from the operator's current
// job, so setParams has something real to attach on the donation pools'
// next login.
func (d *DonateStrategy) NotifyOperatorJob(job types.Job) {
	d.lastDiff = job.Diff
	d.lastHeight = job.Height
	d.lastSeed = job.Seed
}

func (d *DonateStrategy) setParams(params *client.LoginParams) {
	params.Algo = []types.Algorithm{d.algo}
	params.Diff = d.lastDiff
	params.Height = d.lastHeight
	params.SeedHash = client.EncodeSeedHash(d.lastSeed)
}

// client.Listener / strategy.Listener — DonateStrategy is the listener for
// both its nested strategy and (when active) its DonateProxy.

func (d *DonateStrategy) OnLogin(c client.PoolClient, params *client.LoginParams) {
	d.setParams(params)
}

func (d *DonateStrategy) OnLoginSuccess(c client.PoolClient) {
	if d.proxy == nil || c != d.proxy.PoolClient {
		return
	}
	d.proxy.ResetFailures()
	if d.state == StateConnect {
		d.transitionToActive(c)
	}
}

func (d *DonateStrategy) OnJobReceived(c client.PoolClient, job types.Job, extra *types.ExtraParams) {
	if d.state != StateActive {
		return
	}
	d.listener.OnJobReceived(c, job, extra)
}

func (d *DonateStrategy) OnClose(c client.PoolClient, failures int) {
	if failures == -1 || d.proxy == nil || c != d.proxy.PoolClient {
		return
	}
	if d.proxy.RecordFailure(); d.proxy.Exhausted() {
		d.logger.Warn("donate proxy failed twice in a row, falling back to direct donation pools")
		d.proxy.DeleteLater()
		d.proxy = nil
		d.connectTimer.Start(d.connectTimeout, 0)
		d.nested.Connect()
	}
}

func (d *DonateStrategy) OnResultAccepted(c client.PoolClient, result types.SubmitResult) {
	if !result.Accepted {
		d.logger.Debug("donated share rejected", zap.Error(result.Err))
	}
}

func (d *DonateStrategy) OnVerifyAlgorithm(c client.PoolClient, algo types.Algorithm, ok *bool) {
	*ok = algo == d.algo
}

// OnActive is called by the nested strategy when it promotes a client to
// active — the CONNECT -> ACTIVE transition for the non-proxy path.
func (d *DonateStrategy) OnActive(c client.PoolClient) {
	if d.state == StateConnect {
		d.transitionToActive(c)
	}
}

// OnPause is called by the nested strategy when it loses its active client.
// In CONNECT this means the attempt failed outright and should retry sooner
// (per SPEC_FULL.md's 20s branch). In ACTIVE it is a no-op: the nested
// strategy cascades and reconnects among the donation pools on its own, and
// the donation window only ends via the donateTime timer (enterWait, from
// Tick) or Stop, never via a transient pause from the nested strategy. A
// proxy double-failure in OnClose switches to the nested direct pools
// without leaving ACTIVE. The original's onPause(IStrategy*) is a literal
// no-op too.
func (d *DonateStrategy) OnPause() {
	switch d.state {
	case StateConnect:
		// nested already ran its own close handling before calling us; no
		// need to Stop() it again here, just stop waiting on it.
		d.connectTimer.Stop()
		d.state = StateIdle
		d.idleTimer.Start(d.retryPause, 0)
		d.logger.Info("donate connect failed, retrying shortly")
	}
}
