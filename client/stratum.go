package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/AGPFMiner/vertminer/types"
)

// rpcRequest/rpcReply mirror the line-delimited JSON-RPC framing the
// teacher's algorithms/generalstratum.go speaks. StratumPoolClient sends only
// mining.subscribe on connect: it does not read Pool.Mode, and sends neither
// an XMRig-style "login" call nor mining.authorize.
type rpcRequest struct {
	ID     int64       `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

type rpcReply struct {
	ID     int64       `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params"`
	Result interface{} `json:"result"`
	Error  interface{} `json:"error"`
}

type loginResult struct {
	ID         string `mapstructure:"id"`
	Job        map[string]interface{}
	Extensions []string
}

// StratumPoolClient is a minimal, concrete PoolClient. It exists so cmd and
// integration tests have something real to drive; the hardest parts of this
// module are FailoverStrategy and DonateStrategy, not this client (spec.md
// §1 keeps stratum wire framing external). Network I/O runs on its own
// goroutine and hands events to the owning strategy's cooperative loop via
// Tick, matching the single-threaded model of spec.md §5.
type StratumPoolClient struct {
	BaseClient

	id         int32
	pool       types.Pool
	retries    int32
	retryPause time.Duration
	quiet      bool
	algo       types.Algorithm
	proxyURL   string
	logger     *zap.Logger

	mu       sync.Mutex
	listener Listener
	state    types.ConnectionState
	conn     net.Conn
	nextSeq  int64
	extra1   []byte
	extra2sz uint

	pending chan func()
}

// NewStratumPoolClient constructs a disconnected client for pool.
func NewStratumPoolClient(pool types.Pool, logger *zap.Logger) *StratumPoolClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StratumPoolClient{
		pool:    pool,
		logger:  logger.With(zap.String("component", "network")),
		pending: make(chan func(), 64),
	}
}

func (c *StratumPoolClient) ID() int        { return int(atomic.LoadInt32(&c.id)) }
func (c *StratumPoolClient) SetID(id int)   { atomic.StoreInt32(&c.id, int32(id)) }
func (c *StratumPoolClient) Pool() types.Pool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pool
}
func (c *StratumPoolClient) IP() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}
func (c *StratumPoolClient) IsTLS() bool { return c.Pool().TLS }

func (c *StratumPoolClient) HasExtension(ext types.Extension) bool {
	mask := types.ExtAlgo
	if c.Pool().TLS {
		mask |= types.ExtTLS
	}
	return mask&ext != 0
}

func (c *StratumPoolClient) State() types.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *StratumPoolClient) setState(s types.ConnectionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *StratumPoolClient) SetListener(l Listener)        { c.mu.Lock(); c.listener = l; c.mu.Unlock() }
func (c *StratumPoolClient) SetRetries(n int)               { atomic.StoreInt32(&c.retries, int32(n)) }
func (c *StratumPoolClient) SetRetryPause(d time.Duration)  { c.retryPause = d }
func (c *StratumPoolClient) SetQuiet(quiet bool)            { c.quiet = quiet }
func (c *StratumPoolClient) SetPool(p types.Pool)           { c.mu.Lock(); c.pool = p; c.mu.Unlock() }
func (c *StratumPoolClient) SetAlgo(algo types.Algorithm)   { c.algo = algo }
func (c *StratumPoolClient) SetProxy(proxyURL string)       { c.proxyURL = proxyURL }

func (c *StratumPoolClient) enqueue(f func()) {
	select {
	case c.pending <- f:
	default:
		c.logger.Warn("dropping event, pending queue full", zap.Int("id", c.ID()))
	}
}

func (c *StratumPoolClient) listenerCallback(f func(l Listener)) {
	c.mu.Lock()
	l := c.listener
	deleted := c.IsDeleted()
	c.mu.Unlock()
	if l == nil || deleted {
		return
	}
	f(l)
}

// Connect dials the pool asynchronously; completion is observed through
// Tick, never synchronously from within Connect itself.
func (c *StratumPoolClient) Connect() {
	c.setState(types.StateConnecting)
	pool := c.Pool()
	go func() {
		addr := fmt.Sprintf("%s:%d", pool.Host, pool.Port)
		conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
		if err != nil {
			c.enqueue(func() {
				c.setState(types.StateDisconnected)
				c.listenerCallback(func(l Listener) { l.OnClose(c, 0) })
			})
			return
		}
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.setState(types.StateConnected)
		go c.readLoop(conn)
		c.login()
	}()
}

// login queues OnLogin for the next Tick and sends mining.subscribe. The
// LoginParams handed to OnLogin are not written to the wire.
func (c *StratumPoolClient) login() {
	params := LoginParams{User: c.Pool().User, Pass: c.Pool().Pass, Algo: []types.Algorithm{c.algo}}
	c.enqueue(func() {
		c.listenerCallback(func(l Listener) { l.OnLogin(c, &params) })
	})
	req := rpcRequest{ID: 1, Method: "mining.subscribe", Params: []string{"vertminer"}}
	if err := c.writeJSON(req); err != nil {
		c.enqueue(func() {
			c.setState(types.StateDisconnected)
			c.listenerCallback(func(l Listener) { l.OnClose(c, 0) })
		})
		return
	}
}

func (c *StratumPoolClient) writeJSON(v interface{}) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errNotConnected
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = conn.Write(b)
	return err
}

var errNotConnected = wireError("not connected")

func (c *StratumPoolClient) readLoop(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		var reply rpcReply
		if err := json.Unmarshal(line, &reply); err != nil {
			continue
		}
		r := reply
		c.enqueue(func() { c.handleReply(r) })
	}
	c.enqueue(func() {
		c.setState(types.StateDisconnected)
		c.listenerCallback(func(l Listener) { l.OnClose(c, 1) })
	})
}

func (c *StratumPoolClient) handleReply(reply rpcReply) {
	switch reply.Method {
	case "mining.notify":
		c.handleNotify(reply)
	case "":
		if reply.Result != nil {
			c.setState(types.StateAuthorized)
			c.listenerCallback(func(l Listener) { l.OnLoginSuccess(c) })
		}
	}
}

func (c *StratumPoolClient) handleNotify(reply rpcReply) {
	var lr loginResult
	_ = mapstructure.Decode(reply.Params, &lr)
	job := types.Job{Algo: c.algo, ID: lr.ID}
	c.AddJobToDeprecate(job.ID)
	c.listenerCallback(func(l Listener) { l.OnJobReceived(c, job, nil) })
}

// Submit fire-and-forgets a JobResult to the pool, nonblocking, returning
// the sequence number assigned to this submission (spec.md §6).
func (c *StratumPoolClient) Submit(result types.JobResult) int64 {
	seq := atomic.AddInt64(&c.nextSeq, 1)
	req := rpcRequest{ID: seq, Method: "mining.submit", Params: []interface{}{c.Pool().User, result.JobID, fmt.Sprintf("%08x", result.Nonce)}}
	go func() {
		err := c.writeJSON(req)
		c.enqueue(func() {
			c.listenerCallback(func(l Listener) {
				l.OnResultAccepted(c, types.SubmitResult{SeqNumber: seq, Accepted: err == nil, Err: err})
			})
		})
	}()
	return seq
}

// Tick drains pending network events onto the caller's goroutine, which by
// convention is the single strategy event loop.
func (c *StratumPoolClient) Tick(now time.Time) {
	for {
		select {
		case f := <-c.pending:
			f()
		default:
			return
		}
	}
}

// Disconnect closes the underlying connection idempotently and nonblocking.
func (c *StratumPoolClient) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	c.setState(types.StateDisconnected)
}

// DeleteLater marks this client so no further callbacks are delivered; the
// caller's runtime is responsible for eventually dropping the reference.
func (c *StratumPoolClient) DeleteLater() {
	c.Disconnect()
	c.MarkDeleted()
}
