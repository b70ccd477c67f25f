// Package miner is the top-level orchestrator: it owns the Verthash
// dataset, the operator pool strategy, the donation cycle wrapped around
// it, a HashRunner to actually produce results, and a small status/control
// HTTP API. Grounded on the teacher's miner/miner.go (the same four-part
// shape: pools+driver+web API+Reload), generalized away from FPGA-specific
// concerns that spec.md places out of scope.
package miner

import (
	"context"
	j "encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/rpc"
	"github.com/gorilla/rpc/json"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/AGPFMiner/vertminer/client"
	"github.com/AGPFMiner/vertminer/config"
	"github.com/AGPFMiner/vertminer/strategy"
	"github.com/AGPFMiner/vertminer/types"
	"github.com/AGPFMiner/vertminer/verthash"
)

// listenerSource tags an event as having come from the operator pools or
// from the donation cycle, since Miner registers itself (via sourceListener)
// as the listener for both independently and needs to tell them apart.
type listenerSource int

const (
	sourceNone listenerSource = iota
	sourceOperator
	sourceDonate
)

func (s listenerSource) String() string {
	switch s {
	case sourceOperator:
		return "operator"
	case sourceDonate:
		return "donate"
	default:
		return "none"
	}
}

// sourceListener adapts Miner's event handling to strategy.Listener,
// tagging every callback with its source before forwarding to Miner.
type sourceListener struct {
	m      *Miner
	source listenerSource
}

func (l sourceListener) OnLogin(c client.PoolClient, params *client.LoginParams) {
	l.m.onLogin(l.source, c, params)
}

// OnLoginSuccess is never invoked: both SinglePoolStrategy and
// FailoverStrategy consume the raw login-success event themselves and
// report OnActive instead, and DonateStrategy does the same for its own
// nested strategy.
func (l sourceListener) OnLoginSuccess(c client.PoolClient) {}

func (l sourceListener) OnJobReceived(c client.PoolClient, job types.Job, extra *types.ExtraParams) {
	l.m.onJobReceived(l.source, c, job, extra)
}

func (l sourceListener) OnClose(c client.PoolClient, failures int) {
	l.m.onClose(l.source, c, failures)
}

func (l sourceListener) OnResultAccepted(c client.PoolClient, result types.SubmitResult) {
	l.m.onResultAccepted(l.source, c, result)
}

func (l sourceListener) OnVerifyAlgorithm(c client.PoolClient, algo types.Algorithm, ok *bool) {
	l.m.onVerifyAlgorithm(l.source, c, algo, ok)
}

func (l sourceListener) OnActive(c client.PoolClient) {
	l.m.onActive(l.source, c)
}

func (l sourceListener) OnPause() {
	l.m.onPause(l.source)
}

type poolStat struct {
	accepted int64
	rejected int64
	lastJob  string
}

// Option customizes NewMiner's construction, mainly so tests can inject a
// scriptable client factory, a fake HashRunner, or an isolated dataset
// manager instead of process-wide/networked defaults.
type Option func(*Miner)

func WithClientFactory(f func(types.Pool) client.PoolClient) Option {
	return func(m *Miner) { m.clientFactory = f }
}

func WithRunner(r HashRunner) Option {
	return func(m *Miner) { m.runner = r }
}

func WithDataset(d *verthash.Manager) Option {
	return func(m *Miner) { m.dataset = d }
}

// Miner ties together the dataset manager, the operator/donation strategy
// pair and a HashRunner behind a small status/control HTTP API.
type Miner struct {
	mu sync.Mutex

	logger        *zap.Logger
	clientFactory func(types.Pool) client.PoolClient
	runner        HashRunner
	dataset       *verthash.Manager

	cfg             *config.Config
	operatorClients []client.PoolClient
	operator        strategy.Strategy
	donate          *strategy.DonateStrategy

	activeSource listenerSource
	activeClient client.PoolClient
	poolStats    map[int]*poolStat

	activity ActivityTracker
	accepted atomic.Int64
	rejected atomic.Int64

	stop   chan struct{}
	router *mux.Router

	httpServer *http.Server
}

// NewMiner builds a Miner from cfg but does not start it; call Start.
func NewMiner(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Miner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Miner{logger: logger.With(zap.String("component", "miner"))}
	for _, opt := range opts {
		opt(m)
	}
	if m.clientFactory == nil {
		m.clientFactory = func(p types.Pool) client.PoolClient { return client.NewStratumPoolClient(p, logger) }
	}
	if m.runner == nil {
		m.runner = NewSimRunner(50 * time.Millisecond)
	}
	if m.dataset == nil {
		m.dataset = verthash.Default()
	}
	if err := m.rebuild(cfg); err != nil {
		return nil, err
	}
	m.buildRouter()
	return m, nil
}

// rebuild constructs fresh operator clients, an operator strategy and a
// DonateStrategy from cfg, replacing whatever Miner held before. Callers
// must Stop the previous generation first. It never calls SetListener on a
// client itself — NewSinglePoolStrategy/NewFailoverStrategy already do
// that for every client they are given.
func (m *Miner) rebuild(cfg *config.Config) error {
	if cfg == nil || len(cfg.Pools) == 0 {
		return fmt.Errorf("miner: at least one pool is required")
	}

	clients := make([]client.PoolClient, len(cfg.Pools))
	for i, p := range cfg.Pools {
		clients[i] = m.clientFactory(p)
	}

	var operator strategy.Strategy
	if len(clients) == 1 {
		operator = strategy.NewSinglePoolStrategy(clients[0], sourceListener{m, sourceOperator})
	} else {
		operator = strategy.NewFailoverStrategy(clients, cfg.Donate.Retries, cfg.Donate.RetryPause, sourceListener{m, sourceOperator})
	}
	operator.SetAlgo(cfg.Algo)

	donate := strategy.NewDonateStrategy(cfg.Donate, operator, sourceListener{m, sourceDonate}, m.clientFactory, m.logger)
	donate.SetAlgo(cfg.Algo)

	stats := make(map[int]*poolStat, len(clients))
	for i := range clients {
		stats[i] = &poolStat{}
	}

	m.mu.Lock()
	m.cfg = cfg
	m.operatorClients = clients
	m.operator = operator
	m.donate = donate
	m.poolStats = stats
	m.activeSource = sourceNone
	m.activeClient = nil
	m.mu.Unlock()
	return nil
}

func (m *Miner) currentConfig() *config.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// initDataset generates a fresh dataset file first if configured to, then
// loads (or reloads) it into the shared Manager.
func (m *Miner) initDataset() error {
	cfg := m.currentConfig()
	if cfg.GenDataFile {
		seed := []byte(cfg.Donate.Wallet)
		if rc := verthash.GenerateDataFile(cfg.DataFile, seed, verthash.DefaultDatasetWords, m.logger); rc != 0 {
			return fmt.Errorf("miner: generating verthash dataset at %s failed", cfg.DataFile)
		}
	}
	if !m.dataset.Init(cfg.DataFile) {
		return fmt.Errorf("miner: failed to load verthash dataset from %s", cfg.DataFile)
	}
	return nil
}

// Start loads the dataset, starts the HashRunner, connects the operator
// strategy and begins the single-threaded tick loop that drives both
// strategies and the donation/operator activity sample.
func (m *Miner) Start() error {
	if err := m.initDataset(); err != nil {
		return err
	}

	cfg := m.currentConfig()
	m.runner.Init(RunnerConfig{Algo: cfg.Algo, Logger: m.logger})
	m.runner.SetResultSink(func(result types.JobResult) { m.Submit(result) })
	m.runner.Start()

	m.mu.Lock()
	m.stop = make(chan struct{})
	operator := m.operator
	m.mu.Unlock()

	operator.Connect()
	go m.tickLoop()

	if cfg.WebEnable {
		m.httpServer = &http.Server{Addr: cfg.WebListen, Handler: m.router}
		go func() {
			if err := m.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				m.logger.Error("status API stopped", zap.Error(err))
			}
		}()
	}
	return nil
}

func (m *Miner) tickLoop() {
	m.mu.Lock()
	stop := m.stop
	m.mu.Unlock()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			m.mu.Lock()
			operator := m.operator
			donate := m.donate
			m.mu.Unlock()
			operator.Tick(now)
			donate.Tick(now)

			m.mu.Lock()
			donateActive := m.activeSource == sourceDonate
			m.mu.Unlock()
			m.activity.Sample(donateActive)
		case <-stop:
			return
		}
	}
}

// Stop halts the tick loop, the HashRunner, both strategies and the HTTP
// API. Idempotent.
func (m *Miner) Stop() {
	m.mu.Lock()
	stop := m.stop
	m.stop = nil
	operator := m.operator
	donate := m.donate
	m.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	m.runner.Stop()
	if operator != nil {
		operator.Stop()
	}
	if donate != nil {
		donate.Stop()
	}
	if m.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		m.httpServer.Shutdown(ctx)
		cancel()
		m.httpServer = nil
	}
}

// Reload stops the running miner, rebuilds it from cfg and starts again,
// adapted from the teacher's Miner.Reload (stop driver, rebuild clients,
// restart driver).
func (m *Miner) Reload(cfg *config.Config) error {
	m.Stop()
	if err := m.rebuild(cfg); err != nil {
		return err
	}
	return m.Start()
}

// Submit routes a candidate result to whichever strategy currently holds
// the active client, or reports -1 if neither does.
func (m *Miner) Submit(result types.JobResult) int64 {
	m.mu.Lock()
	source := m.activeSource
	operator := m.operator
	donate := m.donate
	m.mu.Unlock()

	switch source {
	case sourceDonate:
		return donate.Submit(result)
	case sourceOperator:
		return operator.Submit(result)
	default:
		return -1
	}
}

func (m *Miner) onLogin(source listenerSource, c client.PoolClient, params *client.LoginParams) {
	if source != sourceOperator {
		return
	}
	cfg := m.currentConfig()
	params.Algo = []types.Algorithm{cfg.Algo}
}

func (m *Miner) onJobReceived(source listenerSource, c client.PoolClient, job types.Job, extra *types.ExtraParams) {
	if source == sourceOperator {
		m.mu.Lock()
		donate := m.donate
		if st, ok := m.poolStats[c.ID()]; ok {
			st.lastJob = job.ID
		}
		m.mu.Unlock()
		donate.NotifyOperatorJob(job)
	}

	m.mu.Lock()
	active := m.activeSource
	m.mu.Unlock()
	if active != source {
		return
	}
	m.runner.SubmitJob(job, extra)
}

func (m *Miner) onClose(source listenerSource, c client.PoolClient, failures int) {
	m.logger.Warn("pool connection closed",
		zap.String("source", source.String()),
		zap.Stringer("pool", c.Pool()),
		zap.Int("failures", failures))
}

func (m *Miner) onResultAccepted(source listenerSource, c client.PoolClient, result types.SubmitResult) {
	if result.Accepted {
		m.accepted.Inc()
	} else {
		m.rejected.Inc()
	}
	if source != sourceOperator {
		return
	}
	m.mu.Lock()
	st, ok := m.poolStats[c.ID()]
	m.mu.Unlock()
	if !ok {
		return
	}
	if result.Accepted {
		st.accepted++
	} else {
		st.rejected++
	}
}

func (m *Miner) onVerifyAlgorithm(source listenerSource, c client.PoolClient, algo types.Algorithm, ok *bool) {
	*ok = algo == m.currentConfig().Algo
}

func (m *Miner) onActive(source listenerSource, c client.PoolClient) {
	m.mu.Lock()
	m.activeSource = source
	m.activeClient = c
	m.mu.Unlock()
	m.logger.Info("active pool changed", zap.String("source", source.String()), zap.Stringer("pool", c.Pool()))
}

func (m *Miner) onPause(source listenerSource) {
	m.mu.Lock()
	if m.activeSource == source {
		m.activeSource = sourceNone
		m.activeClient = nil
	}
	m.mu.Unlock()
}

func (m *Miner) poolStatuses() []types.PoolStatus {
	m.mu.Lock()
	clients := append([]client.PoolClient{}, m.operatorClients...)
	active := m.activeClient
	stats := m.poolStats
	m.mu.Unlock()

	statuses := make([]types.PoolStatus, len(clients))
	for i, c := range clients {
		statuses[i] = types.PoolStatus{
			ID:     c.ID(),
			Pool:   c.Pool().String(),
			User:   c.Pool().User,
			State:  c.State(),
			Active: c == active,
		}
		if st := stats[c.ID()]; st != nil {
			statuses[i].Accepted = st.accepted
			statuses[i].Rejected = st.rejected
			statuses[i].LastJob = st.lastJob
		}
	}
	return statuses
}

func (m *Miner) datasetStatus() types.DatasetStatus {
	return types.DatasetStatus{
		Valid:   m.dataset.IsValid(),
		Path:    m.dataset.Path(),
		Size:    m.dataset.Size(),
		Bitmask: m.dataset.Bitmask(),
	}
}

func (m *Miner) status() types.MinerStatus {
	m.mu.Lock()
	donateMode := sourceOperator.String()
	if m.activeSource == sourceDonate {
		donateMode = sourceDonate.String()
	}
	m.mu.Unlock()

	return types.MinerStatus{
		Pools:      m.poolStatuses(),
		Dataset:    m.datasetStatus(),
		DonateMode: donateMode,
		Time:       time.Now().Unix(),
	}
}

// buildRouter wires the status/control HTTP API, grounded on the teacher's
// MinerMain: a gorilla/rpc JSON-RPC service alongside two plain mux
// handlers, renamed from GetPoolsStats/GetScriptaStatus/MinerCtrl.
func (m *Miner) buildRouter() {
	s := rpc.NewServer()
	s.RegisterCodec(json.NewCodec(), "application/json")
	s.RegisterCodec(json.NewCodec(), "application/json;charset=UTF-8")
	s.RegisterService(m, "miner")

	r := mux.NewRouter()
	r.Handle("/rpc", s)
	r.HandleFunc("/vertminer/status", m.Status)
	r.HandleFunc("/vertminer/control", m.Control)
	m.router = r
}

// RPCArgs is an empty placeholder: neither registered RPC method needs
// arguments, but gorilla/rpc still requires a concrete args type.
type RPCArgs struct{}

type PoolStatusReply struct {
	Pools []types.PoolStatus
}

// GetPoolStatus is a gorilla/rpc service method, renamed from the teacher's
// GetPoolsStats.
func (m *Miner) GetPoolStatus(r *http.Request, args *RPCArgs, reply *PoolStatusReply) error {
	reply.Pools = m.poolStatuses()
	return nil
}

type DatasetStatusReply struct {
	Dataset types.DatasetStatus
}

// GetDatasetStatus is a gorilla/rpc service method with no teacher
// counterpart — the teacher never managed a dataset.
func (m *Miner) GetDatasetStatus(r *http.Request, args *RPCArgs, reply *DatasetStatusReply) error {
	reply.Dataset = m.datasetStatus()
	return nil
}

// Status serves the aggregate status document as plain JSON, renamed from
// the teacher's GetScriptaStatus.
func (m *Miner) Status(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	j.NewEncoder(w).Encode(m.status())
}

// Control handles operator commands, renamed from the teacher's MinerCtrl.
func (m *Miner) Control(w http.ResponseWriter, r *http.Request) {
	cmds, ok := r.URL.Query()["command"]
	if !ok || len(cmds) == 0 || cmds[0] == "" {
		http.Error(w, "missing command", http.StatusBadRequest)
		return
	}

	switch cmds[0] {
	case "reload":
		if err := m.Reload(m.currentConfig()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	case "donate-now":
		m.mu.Lock()
		donate := m.donate
		m.mu.Unlock()
		donate.Connect()
	default:
		http.Error(w, "unknown command: "+cmds[0], http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// DonationRatio reports the fraction of the last recentn ticks spent
// donating, for tests and diagnostics.
func (m *Miner) DonationRatio(recentn int) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activity.DonationRatio(recentn)
}
