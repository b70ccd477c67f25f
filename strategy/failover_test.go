package strategy

import (
	"testing"
	"time"

	"github.com/AGPFMiner/vertminer/client"
	"github.com/AGPFMiner/vertminer/types"
)

type recordingListener struct {
	activeClients []client.PoolClient
	pauses        int
	jobs          []types.Job
	results       []types.SubmitResult
}

func (r *recordingListener) OnLogin(c client.PoolClient, params *client.LoginParams) {}
func (r *recordingListener) OnLoginSuccess(c client.PoolClient)                      {}
func (r *recordingListener) OnJobReceived(c client.PoolClient, job types.Job, extra *types.ExtraParams) {
	r.jobs = append(r.jobs, job)
}
func (r *recordingListener) OnClose(c client.PoolClient, failures int) {}
func (r *recordingListener) OnResultAccepted(c client.PoolClient, result types.SubmitResult) {
	r.results = append(r.results, result)
}
func (r *recordingListener) OnVerifyAlgorithm(c client.PoolClient, algo types.Algorithm, ok *bool) {
	*ok = true
}
func (r *recordingListener) OnActive(c client.PoolClient) {
	r.activeClients = append(r.activeClients, c)
}
func (r *recordingListener) OnPause() { r.pauses++ }

func pool(host string, port int) types.Pool {
	return types.Pool{Host: host, Port: port, User: "wallet.worker"}
}

// Boundary scenario 1: pool 0's DNS lookup fails synchronously inside
// Connect() itself; the cascade must still reach pool 1 without FailoverStrategy
// ever calling back into pool 0 re-entrantly.
func TestFailoverDNSFailureCascadesToNextPool(t *testing.T) {
	l := &recordingListener{}
	c0 := client.NewMockClient(0, pool("bad.example", 3333))
	c1 := client.NewMockClient(1, pool("good.example", 3333))
	c0.ConnectHook = func(c *client.MockClient) { c.FireClose(1) }

	f := NewFailoverStrategy([]client.PoolClient{c0, c1}, 0, time.Second, l)
	f.Connect()
	f.Tick(time.Now())

	if c0.ConnectCalls != 1 {
		t.Fatalf("c0.ConnectCalls = %d, want 1", c0.ConnectCalls)
	}
	if c1.ConnectCalls != 1 {
		t.Fatalf("c1.ConnectCalls = %d, want 1 (cascade should have reached pool 1)", c1.ConnectCalls)
	}
}

// Boundary scenario 3: with three pools and zero retries, if every pool
// fails the cascade wraps back around to pool 0 rather than stopping dead.
func TestFailoverZeroRetryWrapsAround(t *testing.T) {
	l := &recordingListener{}
	clients := []client.PoolClient{
		client.NewMockClient(0, pool("p0", 1)),
		client.NewMockClient(1, pool("p1", 1)),
		client.NewMockClient(2, pool("p2", 1)),
	}
	f := NewFailoverStrategy(clients, 0, time.Second, l)
	f.Connect()

	m := func(i int) *client.MockClient { return clients[i].(*client.MockClient) }

	m(0).FireClose(1)
	f.Tick(time.Now())
	if m(1).ConnectCalls != 1 {
		t.Fatalf("expected pool 1 to be attempted after pool 0 closed")
	}

	m(1).FireClose(1)
	f.Tick(time.Now())
	if m(2).ConnectCalls != 1 {
		t.Fatalf("expected pool 2 to be attempted after pool 1 closed")
	}

	m(2).FireClose(1)
	f.Tick(time.Now())
	if m(0).ConnectCalls != 2 {
		t.Fatalf("expected the cascade to wrap back to pool 0, got %d calls", m(0).ConnectCalls)
	}
}

// Boundary scenario 2: the primary pool (0) flaps back in while the cascade
// has already moved on to a lower-priority pool; in zero-retry mode the
// flapping primary must not be allowed to steal the active slot until the
// cascade itself reaches it again.
func TestFailoverPrimaryFlapDuringCascadeIsRejected(t *testing.T) {
	l := &recordingListener{}
	clients := []client.PoolClient{
		client.NewMockClient(0, pool("p0", 1)),
		client.NewMockClient(1, pool("p1", 1)),
	}
	f := NewFailoverStrategy(clients, 0, time.Second, l)
	f.Connect()

	m0 := clients[0].(*client.MockClient)
	m1 := clients[1].(*client.MockClient)

	m0.FireClose(1)
	f.Tick(time.Now())
	if m1.ConnectCalls != 1 {
		t.Fatal("expected cascade to reach pool 1")
	}

	// Pool 0 flaps back in with a stale login success while minAcceptableIndex == 1.
	m0.FireLoginSuccess()
	if len(l.activeClients) != 0 {
		t.Fatal("a flapping lower-priority pool must not be promoted to active")
	}
	if m0.DisconnectCalls == 0 {
		t.Fatal("the flapping pool should be disconnected, not kept")
	}

	m1.FireLoginSuccess()
	if len(l.activeClients) != 1 || l.activeClients[0] != m1 {
		t.Fatal("pool 1 should be promoted once the cascade actually reaches it")
	}
}

func TestFailoverSubmitRoutesToActiveOnly(t *testing.T) {
	l := &recordingListener{}
	clients := []client.PoolClient{
		client.NewMockClient(0, pool("p0", 1)),
		client.NewMockClient(1, pool("p1", 1)),
	}
	f := NewFailoverStrategy(clients, 0, time.Second, l)
	f.Connect()

	if f.Submit(types.JobResult{}) != -1 {
		t.Fatal("submit with no active pool should report -1")
	}

	clients[0].(*client.MockClient).FireLoginSuccess()
	f.Submit(types.JobResult{})
	if clients[0].(*client.MockClient).SubmitCalls != 1 {
		t.Fatal("submit should have routed to the active client")
	}
}

func TestFailoverOnCloseIgnoresExplicitDisconnect(t *testing.T) {
	l := &recordingListener{}
	clients := []client.PoolClient{
		client.NewMockClient(0, pool("p0", 1)),
		client.NewMockClient(1, pool("p1", 1)),
	}
	f := NewFailoverStrategy(clients, 0, time.Second, l)
	f.Connect()
	clients[0].(*client.MockClient).FireLoginSuccess()

	clients[0].(*client.MockClient).FireClose(-1)
	if l.pauses != 0 {
		t.Fatal("an explicit local disconnect (failures == -1) must not trigger onPause")
	}
}

func TestSinglePoolStrategyPromotesOnLoginSuccess(t *testing.T) {
	l := &recordingListener{}
	c := client.NewMockClient(0, pool("p0", 1))
	s := NewSinglePoolStrategy(c, l)
	s.Connect()
	if c.ConnectCalls != 1 {
		t.Fatal("Connect should forward to the wrapped client")
	}
	c.FireLoginSuccess()
	if len(l.activeClients) != 1 {
		t.Fatal("login success should promote the single client to active")
	}
	if s.Active() != c {
		t.Fatal("Active() should return the authorized client")
	}
}

func TestSinglePoolStrategySubmitRequiresAuthorized(t *testing.T) {
	c := client.NewMockClient(0, pool("p0", 1))
	s := NewSinglePoolStrategy(c, &recordingListener{})
	if s.Submit(types.JobResult{}) != -1 {
		t.Fatal("submit before authorization should report -1")
	}
	c.FireLoginSuccess()
	s.Submit(types.JobResult{})
	if c.SubmitCalls != 1 {
		t.Fatal("submit after authorization should reach the client")
	}
}
