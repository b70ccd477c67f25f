package strategy

import (
	"testing"
	"time"

	"github.com/AGPFMiner/vertminer/client"
	"github.com/AGPFMiner/vertminer/types"
)

// fakeOperator is a minimal Strategy stand-in so DonateStrategy tests can
// control what operator.Active() reports without a real pool connection.
type fakeOperator struct {
	active client.PoolClient
}

func (f *fakeOperator) Connect()                     {}
func (f *fakeOperator) Stop()                        {}
func (f *fakeOperator) Resume()                      {}
func (f *fakeOperator) Tick(now time.Time)           {}
func (f *fakeOperator) Submit(types.JobResult) int64 { return -1 }
func (f *fakeOperator) SetAlgo(types.Algorithm)      {}
func (f *fakeOperator) SetProxy(string)              {}
func (f *fakeOperator) Active() client.PoolClient    { return f.active }

func testDonateConfig(wallet string) DonateConfig {
	return DonateConfig{
		DonateLevel:  1,
		TestMode:     true,
		Wallet:       wallet,
		TLSSupported: false,
		PlainHost:    "donate.example",
		PlainPort:    3333,
		BackupHost:   "backup.example",
		BackupPort:   3333,
		Retries:      2,
		RetryPause:   time.Second,
	}
}

// newTrackingClientFactory returns a newClient func for DonateStrategy that
// records every MockClient it builds, keyed by host, so a test can reach in
// and fire protocol events on whichever donation pool it cares about.
func newTrackingClientFactory() (func(types.Pool) client.PoolClient, func(host string) *client.MockClient) {
	byHost := map[string]*client.MockClient{}
	factory := func(p types.Pool) client.PoolClient {
		c := client.NewMockClient(0, p)
		byHost[p.Host] = c
		return c
	}
	lookup := func(host string) *client.MockClient { return byHost[host] }
	return factory, lookup
}

// Boundary scenario 4: a donation cycle runs NEW -> IDLE -> CONNECT -> ACTIVE
// -> WAIT -> IDLE without ever forwarding a job outside the ACTIVE window.
func TestDonateCycleTiming(t *testing.T) {
	l := &recordingListener{}
	factory, lookup := newTrackingClientFactory()
	cfg := testDonateConfig("wallet1")

	d := NewDonateStrategy(cfg, &fakeOperator{}, l, factory, nil)
	if d.state != StateIdle {
		t.Fatalf("state after construction = %v, want idle", d.state)
	}

	d.Connect() // donate-now trigger, skip the idle wait
	if d.state != StateConnect {
		t.Fatalf("state after Connect = %v, want connect", d.state)
	}

	plain := lookup("donate.example")
	if plain == nil {
		t.Fatal("expected a client constructed for the plaintext donation pool")
	}

	// A job arriving before login success must not reach the listener —
	// exercised directly against DonateStrategy's own state gate, since
	// FailoverStrategy would already filter a non-active client's job too.
	d.OnJobReceived(plain, types.Job{ID: "premature"}, nil)
	if len(l.jobs) != 0 {
		t.Fatal("jobs must not forward before the donation cycle is active")
	}

	plain.FireLoginSuccess()
	if d.state != StateActive {
		t.Fatalf("state after login success = %v, want active", d.state)
	}
	if len(l.activeClients) != 1 {
		t.Fatal("expected onActive to fire exactly once")
	}

	d.OnJobReceived(plain, types.Job{ID: "donated"}, nil)
	if len(l.jobs) != 1 || l.jobs[0].ID != "donated" {
		t.Fatal("jobs received while active should forward to the listener")
	}

	// Drive the active timer's real fire (30s in TestMode is too slow for a
	// unit test) by forcing the underlying Timer to report fired.
	d.activeTimer.mu.Lock()
	d.activeTimer.fired = true
	d.activeTimer.mu.Unlock()

	d.Tick(time.Now())
	if d.state != StateWait {
		t.Fatalf("state after active timer fires = %v, want wait", d.state)
	}
	if l.pauses != 1 {
		t.Fatalf("pauses = %d, want 1 after entering wait", l.pauses)
	}

	d.Tick(time.Now().Add(4 * time.Second))
	if d.state != StateIdle {
		t.Fatalf("state after wait deadline passes = %v, want idle", d.state)
	}

	d.OnJobReceived(plain, types.Job{ID: "late"}, nil)
	if len(l.jobs) != 1 {
		t.Fatal("jobs arriving after the cycle ends must not forward")
	}
}

func TestDonateSetParamsUsesOperatorJobContext(t *testing.T) {
	l := &recordingListener{}
	factory, lookup := newTrackingClientFactory()
	d := NewDonateStrategy(testDonateConfig("wallet1"), &fakeOperator{}, l, factory, nil)

	d.SetAlgo(types.AlgoVerthash)
	d.NotifyOperatorJob(types.Job{Diff: 4096, Height: 12345, Seed: []byte{0xde, 0xad, 0xbe, 0xef}})

	d.Connect()
	plain := lookup("donate.example")

	params := &client.LoginParams{}
	plain.FireLoginSuccess() // not a login callback, just puts the client in a known state
	// OnLogin is invoked by StratumPoolClient during its own login sequence;
	// MockClient doesn't drive it, so call DonateStrategy's hook directly as
	// StratumPoolClient would.
	d.OnLogin(plain, params)

	if len(params.Algo) != 1 || params.Algo[0] != types.AlgoVerthash {
		t.Fatalf("params.Algo = %v, want [verthash]", params.Algo)
	}
	if params.Diff != 4096 {
		t.Fatalf("params.Diff = %v, want 4096", params.Diff)
	}
	if params.Height != 12345 {
		t.Fatalf("params.Height = %v, want 12345", params.Height)
	}
	if params.SeedHash != "deadbeef" {
		t.Fatalf("params.SeedHash = %q, want deadbeef", params.SeedHash)
	}
}

// Boundary scenario 5: the proxy fails twice in a row, DonateStrategy falls
// back to the direct donation pool list instead of retrying the proxy a
// third time.
func TestDonateProxyFallsBackAfterTwoFailures(t *testing.T) {
	l := &recordingListener{}
	factory, lookup := newTrackingClientFactory()
	cfg := testDonateConfig("wallet1")
	cfg.ProxyDonate = ProxyDonateAuto

	operatorClient := client.NewMockClient(0, types.Pool{Host: "operator.example", Port: 3333})
	operatorClient.SetExtensions(types.ExtConnect)
	operator := &fakeOperator{active: operatorClient}

	d := NewDonateStrategy(cfg, operator, l, factory, nil)
	d.Connect()

	proxyClient := lookup("operator.example")
	if proxyClient == nil {
		t.Fatal("expected DonateStrategy to build a proxy client against the operator's endpoint")
	}
	if d.proxy == nil {
		t.Fatal("expected ProxyDonateAuto with an ExtConnect-capable operator to use the proxy path")
	}

	proxyClient.FireClose(1)
	if d.proxy == nil {
		t.Fatal("a single proxy failure should not trigger fallback yet")
	}

	proxyClient.FireClose(1)
	if d.proxy != nil {
		t.Fatal("two consecutive proxy failures should fall back to the direct donation pools")
	}

	direct := lookup("donate.example")
	if direct == nil || direct.ConnectCalls == 0 {
		t.Fatal("expected the nested direct strategy to connect after proxy fallback")
	}
}

func TestDonateProxyResetsFailureCountOnSuccess(t *testing.T) {
	l := &recordingListener{}
	factory, lookup := newTrackingClientFactory()
	cfg := testDonateConfig("wallet1")
	cfg.ProxyDonate = ProxyDonateAuto

	operatorClient := client.NewMockClient(0, types.Pool{Host: "operator.example", Port: 3333})
	operatorClient.SetExtensions(types.ExtConnect)
	operator := &fakeOperator{active: operatorClient}

	d := NewDonateStrategy(cfg, operator, l, factory, nil)
	d.Connect()

	proxyClient := lookup("operator.example")
	proxyClient.FireClose(1)
	if d.proxy.consecutiveFailures != 1 {
		t.Fatalf("consecutiveFailures = %d, want 1", d.proxy.consecutiveFailures)
	}

	proxyClient.FireLoginSuccess()
	if d.proxy.consecutiveFailures != 0 {
		t.Fatalf("consecutiveFailures after success = %d, want reset to 0", d.proxy.consecutiveFailures)
	}
	if d.state != StateActive {
		t.Fatalf("state after proxy login success = %v, want active", d.state)
	}
}
