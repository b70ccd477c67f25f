package strategy

import (
	"time"

	"github.com/AGPFMiner/vertminer/client"
	"github.com/AGPFMiner/vertminer/types"
)

// SinglePoolStrategy wraps exactly one PoolClient. It exists purely so a
// consumer holding an abstract Strategy never has to special-case the N=1
// case itself (spec.md §4.2).
type SinglePoolStrategy struct {
	c        client.PoolClient
	listener Listener
}

// NewSinglePoolStrategy constructs a strategy over a single client. The
// strategy registers itself as the client's Listener and reports to listener.
func NewSinglePoolStrategy(c client.PoolClient, listener Listener) *SinglePoolStrategy {
	s := &SinglePoolStrategy{c: c, listener: listener}
	c.SetID(0)
	c.SetListener(s)
	return s
}

func (s *SinglePoolStrategy) Connect()                   { s.c.Connect() }
func (s *SinglePoolStrategy) Stop()                       { s.c.Disconnect(); s.listener.OnPause() }
func (s *SinglePoolStrategy) Tick(now time.Time)          { s.c.Tick(now) }
func (s *SinglePoolStrategy) SetAlgo(algo types.Algorithm) { s.c.SetAlgo(algo) }
func (s *SinglePoolStrategy) SetProxy(proxyURL string)     { s.c.SetProxy(proxyURL) }

func (s *SinglePoolStrategy) Active() client.PoolClient {
	if s.c.State() == types.StateAuthorized {
		return s.c
	}
	return nil
}

func (s *SinglePoolStrategy) Submit(result types.JobResult) int64 {
	if s.Active() == nil {
		return -1
	}
	return s.c.Submit(result)
}

func (s *SinglePoolStrategy) Resume() {
	if s.Active() == nil {
		return
	}
	s.listener.OnJobReceived(s.c, types.Job{}, nil)
}

// client.Listener forwarding — login success is reported as OnActive, and a
// close other than an explicit local disconnect (-1) is reported as OnPause.

func (s *SinglePoolStrategy) OnLogin(c client.PoolClient, params *client.LoginParams) {
	s.listener.OnLogin(c, params)
}
func (s *SinglePoolStrategy) OnLoginSuccess(c client.PoolClient) { s.listener.OnActive(c) }
func (s *SinglePoolStrategy) OnJobReceived(c client.PoolClient, job types.Job, extra *types.ExtraParams) {
	s.listener.OnJobReceived(c, job, extra)
}
func (s *SinglePoolStrategy) OnClose(c client.PoolClient, failures int) {
	if failures == -1 {
		return
	}
	s.listener.OnPause()
}
func (s *SinglePoolStrategy) OnResultAccepted(c client.PoolClient, result types.SubmitResult) {
	s.listener.OnResultAccepted(c, result)
}
func (s *SinglePoolStrategy) OnVerifyAlgorithm(c client.PoolClient, algo types.Algorithm, ok *bool) {
	s.listener.OnVerifyAlgorithm(c, algo, ok)
}
