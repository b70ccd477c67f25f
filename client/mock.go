package client

import (
	"time"

	"github.com/AGPFMiner/vertminer/types"
)

// MockClient is a scriptable in-memory PoolClient used to drive the
// boundary scenarios in spec.md §8 deterministically, without a real
// network. Every call is recorded so tests can assert exact call counts
// and ordering (e.g. "no client method called re-entrantly").
type MockClient struct {
	BaseClient

	id       int
	pool     types.Pool
	listener Listener
	state    types.ConnectionState
	ext      types.Extension

	Retries    int
	RetryPause time.Duration
	Quiet      bool
	Algo       types.Algorithm
	ProxyURL   string

	ConnectCalls    int
	DisconnectCalls int
	SubmitCalls     int
	TickCalls       int
	seq             int64

	// ConnectHook, when set, runs synchronously inside Connect() — used to
	// simulate a synchronous DNS failure (boundary scenario 1).
	ConnectHook func(c *MockClient)
}

// NewMockClient returns a disconnected mock client for pool with id id.
func NewMockClient(id int, pool types.Pool) *MockClient {
	return &MockClient{id: id, pool: pool}
}

func (c *MockClient) ID() int                      { return c.id }
func (c *MockClient) SetID(id int)                 { c.id = id }
func (c *MockClient) Pool() types.Pool             { return c.pool }
func (c *MockClient) IP() string                   { return c.pool.Host }
func (c *MockClient) IsTLS() bool                  { return c.pool.TLS }
func (c *MockClient) State() types.ConnectionState { return c.state }

func (c *MockClient) HasExtension(ext types.Extension) bool { return c.ext&ext != 0 }

// SetExtensions lets a test declare which Extension bits this client
// advertises (e.g. types.ExtConnect for proxy-capability scenarios).
func (c *MockClient) SetExtensions(ext types.Extension) { c.ext = ext }

func (c *MockClient) SetListener(l Listener)        { c.listener = l }
func (c *MockClient) SetRetries(n int)              { c.Retries = n }
func (c *MockClient) SetRetryPause(d time.Duration) { c.RetryPause = d }
func (c *MockClient) SetQuiet(quiet bool)           { c.Quiet = quiet }
func (c *MockClient) SetPool(p types.Pool)          { c.pool = p }
func (c *MockClient) SetAlgo(algo types.Algorithm)  { c.Algo = algo }
func (c *MockClient) SetProxy(proxyURL string)      { c.ProxyURL = proxyURL }

func (c *MockClient) Connect() {
	c.ConnectCalls++
	c.state = types.StateConnecting
	if c.ConnectHook != nil {
		c.ConnectHook(c)
	}
}

func (c *MockClient) Disconnect() {
	c.DisconnectCalls++
	c.state = types.StateDisconnected
}

func (c *MockClient) Submit(result types.JobResult) int64 {
	c.SubmitCalls++
	c.seq++
	return c.seq
}

func (c *MockClient) Tick(now time.Time) { c.TickCalls++ }

func (c *MockClient) DeleteLater() {
	c.Disconnect()
	c.MarkDeleted()
}

// Fire* helpers let a test play the client's side of the protocol.

func (c *MockClient) FireLoginSuccess() {
	c.state = types.StateAuthorized
	if c.listener != nil && !c.IsDeleted() {
		c.listener.OnLoginSuccess(c)
	}
}

func (c *MockClient) FireClose(failures int) {
	c.state = types.StateDisconnected
	if c.listener != nil && !c.IsDeleted() {
		c.listener.OnClose(c, failures)
	}
}

func (c *MockClient) FireJob(job types.Job, extra *types.ExtraParams) {
	if c.listener != nil && !c.IsDeleted() {
		c.listener.OnJobReceived(c, job, extra)
	}
}

func (c *MockClient) FireResultAccepted(result types.SubmitResult) {
	if c.listener != nil && !c.IsDeleted() {
		c.listener.OnResultAccepted(c, result)
	}
}
