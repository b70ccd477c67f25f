package miner

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AGPFMiner/vertminer/types"
)

// RunnerConfig is what a HashRunner needs to start producing results; the
// teacher's MinerArgs carried FPGA device/mux/poll-delay fields this module
// has no use for, since the actual kernel loop is out of scope (spec.md §1
// names HashRunner as an external collaborator).
type RunnerConfig struct {
	Algo   types.Algorithm
	Logger *zap.Logger
}

// HashRunner is the seam this module hands jobs to and receives candidate
// results from. Grounded on the teacher's driver.Driver interface shape
// (Start/Stop/Init/SetClient), generalized away from FPGA-specific methods
// (RegisterMiningFuncs, ProgramBitstream) that have no meaning once the
// kernel itself is external.
type HashRunner interface {
	Init(cfg RunnerConfig)
	Start()
	Stop()
	SetAlgo(algo types.Algorithm)
	SubmitJob(job types.Job, extra *types.ExtraParams)
	SetResultSink(sink func(types.JobResult))
}

// SimRunner is a software-only HashRunner: it never touches a GPU or FPGA.
// On every SubmitJob it schedules a result after a short fixed delay, so
// the rest of the pipeline — submission, accept/reject bookkeeping, the
// donation/operator handoff — can be exercised end to end in tests and in
// cmd without real hardware, the same role the teacher's simulated mining
// loop would play if one existed for this algorithm family.
type SimRunner struct {
	mu      sync.Mutex
	logger  *zap.Logger
	algo    types.Algorithm
	sink    func(types.JobResult)
	delay   time.Duration
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewSimRunner builds a SimRunner that "solves" each job after delay. A
// delay of zero still responds asynchronously, on its own goroutine.
func NewSimRunner(delay time.Duration) *SimRunner {
	return &SimRunner{delay: delay}
}

func (r *SimRunner) Init(cfg RunnerConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.algo = cfg.Algo
	r.logger = cfg.Logger
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
}

func (r *SimRunner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.stop = make(chan struct{})
}

func (r *SimRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stop)
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *SimRunner) SetAlgo(algo types.Algorithm) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.algo = algo
}

func (r *SimRunner) SetResultSink(sink func(types.JobResult)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = sink
}

func (r *SimRunner) SubmitJob(job types.Job, extra *types.ExtraParams) {
	r.mu.Lock()
	running := r.running
	stop := r.stop
	delay := r.delay
	r.mu.Unlock()
	if !running {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-stop:
			return
		}
		r.mu.Lock()
		sink := r.sink
		r.mu.Unlock()
		if sink != nil {
			sink(types.JobResult{JobID: job.ID, PoolDiff: job.Diff})
		}
	}()
}
