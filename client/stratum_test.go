package client

import (
	"bufio"
	"encoding/json"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/AGPFMiner/vertminer/types"
)

// recordingClientListener captures every callback StratumPoolClient delivers,
// guarded by a mutex since callbacks and test assertions run on different
// goroutines until drained through Tick.
type recordingClientListener struct {
	mu           sync.Mutex
	loginParams  []*LoginParams
	loginSuccess int
	jobs         []types.Job
	closes       []int
	resultEvents []types.SubmitResult
}

func (l *recordingClientListener) OnLogin(c PoolClient, params *LoginParams) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loginParams = append(l.loginParams, params)
}

func (l *recordingClientListener) OnLoginSuccess(c PoolClient) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loginSuccess++
}

func (l *recordingClientListener) OnJobReceived(c PoolClient, job types.Job, extra *types.ExtraParams) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.jobs = append(l.jobs, job)
}

func (l *recordingClientListener) OnClose(c PoolClient, failures int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closes = append(l.closes, failures)
}

func (l *recordingClientListener) OnResultAccepted(c PoolClient, result types.SubmitResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resultEvents = append(l.resultEvents, result)
}

func (l *recordingClientListener) OnVerifyAlgorithm(c PoolClient, algo types.Algorithm, ok *bool) {
	*ok = true
}

func (l *recordingClientListener) jobCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.jobs)
}

func (l *recordingClientListener) loginSuccessCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loginSuccess
}

func (l *recordingClientListener) loginParamCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.loginParams)
}

func (l *recordingClientListener) resultEventCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.resultEvents)
}

func (l *recordingClientListener) closeCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.closes)
}

// drainUntil repeatedly ticks c, polling cond, until cond is satisfied or a
// two-second deadline passes. Keeps these tests free of fixed sleeps.
func drainUntil(t *testing.T, c *StratumPoolClient, cond func() bool) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.Tick(time.Now())
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// fakePoolServer accepts a single connection and lets the test script the
// lines it writes back, standing in for a real stratum pool.
type fakePoolServer struct {
	ln     net.Listener
	lines  chan string
	connCh chan net.Conn
}

func newFakePoolServer(t *testing.T) *fakePoolServer {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := &fakePoolServer{ln: ln, lines: make(chan string, 16), connCh: make(chan net.Conn, 1)}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s.connCh <- conn
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			s.lines <- scanner.Text()
		}
	}()
	return s
}

func (s *fakePoolServer) hostPort(t *testing.T) (string, int) {
	host, portStr, err := net.SplitHostPort(s.ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}
	return host, port
}

func (s *fakePoolServer) nextLine(t *testing.T) string {
	select {
	case l := <-s.lines:
		return l
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a line from the client")
		return ""
	}
}

func (s *fakePoolServer) send(t *testing.T, v interface{}) {
	var conn net.Conn
	select {
	case conn = <-s.connCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the client to connect")
	}
	s.connCh <- conn
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	b = append(b, '\n')
	if _, err := conn.Write(b); err != nil {
		t.Fatal(err)
	}
}

func (s *fakePoolServer) close() { s.ln.Close() }

func TestStratumPoolClientLoginSuccessAndJobDelivery(t *testing.T) {
	server := newFakePoolServer(t)
	defer server.close()
	host, port := server.hostPort(t)

	l := &recordingClientListener{}
	c := NewStratumPoolClient(types.Pool{Host: host, Port: port, User: "wallet.worker", Pass: "x"}, nil)
	c.SetListener(l)
	c.SetAlgo(types.AlgoVerthash)

	c.Connect()

	line := server.nextLine(t)
	var req rpcRequest
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		t.Fatal(err)
	}
	if req.Method != "mining.subscribe" {
		t.Fatalf("method = %q, want mining.subscribe", req.Method)
	}

	drainUntil(t, c, func() bool { return l.loginParamCount() == 1 })

	server.send(t, rpcReply{ID: 1, Result: "ok"})
	drainUntil(t, c, func() bool { return l.loginSuccessCount() == 1 })
	if c.State() != types.StateAuthorized {
		t.Fatalf("state = %v, want authorized", c.State())
	}

	server.send(t, rpcReply{Method: "mining.notify", Params: map[string]interface{}{"id": "job-1"}})
	drainUntil(t, c, func() bool { return l.jobCount() == 1 })
	if c.GetDeprecationChannel("job-1") == nil {
		t.Fatal("expected the delivered job to be registered for deprecation")
	}

	seq := c.Submit(types.JobResult{JobID: "job-1", Nonce: 42})
	if seq != 1 {
		t.Fatalf("first Submit seq = %d, want 1", seq)
	}
	drainUntil(t, c, func() bool { return l.resultEventCount() == 1 })

	c.Disconnect()
	if c.State() != types.StateDisconnected {
		t.Fatalf("state after Disconnect = %v, want disconnected", c.State())
	}
	c.Disconnect() // idempotent
}

func TestStratumPoolClientDialFailureReportsClose(t *testing.T) {
	l := &recordingClientListener{}
	// Port 1 on an address nothing listens on; DialTimeout fails fast enough
	// for the test deadline since nothing accepts on this loopback port.
	c := NewStratumPoolClient(types.Pool{Host: "127.0.0.1", Port: 1}, nil)
	c.SetListener(l)
	c.Connect()
	drainUntil(t, c, func() bool { return l.closeCount() == 1 })
	if c.State() != types.StateDisconnected {
		t.Fatalf("state = %v, want disconnected", c.State())
	}
}

func TestStratumPoolClientHasExtensionReflectsTLS(t *testing.T) {
	plain := NewStratumPoolClient(types.Pool{Host: "h", Port: 1}, nil)
	if !plain.HasExtension(types.ExtAlgo) {
		t.Fatal("expected ExtAlgo to always be advertised")
	}
	if plain.HasExtension(types.ExtTLS) {
		t.Fatal("a non-TLS pool should not advertise ExtTLS")
	}

	tlsClient := NewStratumPoolClient(types.Pool{Host: "h", Port: 1, TLS: true}, nil)
	if !tlsClient.HasExtension(types.ExtTLS) {
		t.Fatal("a TLS pool should advertise ExtTLS")
	}
	if tlsClient.HasExtension(types.ExtConnect) {
		t.Fatal("StratumPoolClient never advertises ExtConnect")
	}
}

func TestStratumPoolClientIDAndPoolAccessors(t *testing.T) {
	pool := types.Pool{Host: "h", Port: 1, User: "u"}
	c := NewStratumPoolClient(pool, nil)
	c.SetID(7)
	if c.ID() != 7 {
		t.Fatalf("ID() = %d, want 7", c.ID())
	}
	if c.Pool() != pool {
		t.Fatalf("Pool() = %+v, want %+v", c.Pool(), pool)
	}
	newPool := types.Pool{Host: "h2", Port: 2}
	c.SetPool(newPool)
	if c.Pool() != newPool {
		t.Fatalf("Pool() after SetPool = %+v, want %+v", c.Pool(), newPool)
	}
}
