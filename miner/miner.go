// Package miner implements the mining driver (spec §4.6/§5): a pool of
// worker threads searching disjoint nonce ranges for a PoW solution against
// the chain's current candidate template, reporting found blocks back to
// the chain thread.
//
// Grounded on the teacher's work/agent.go CpuAgent and work/worker.go's
// Agent/Task/Result channel loop: Work() generalizes CpuAgent's nonce-search
// channel, Result carries a found header back the way work/worker.go's recv
// channel does, and each worker's update()/mine() pair keeps the teacher's
// stop-then-restart shape — a fresh quitCurrentOp channel per task so a new
// best tip cancels whatever nonce search is in flight. Workers partition the
// nonce space by residue class (worker id, id+stride, id+2*stride, ...)
// rather than by range, so restarts never need to remember how far a
// follow-up worker had searched.
package miner

import (
	"sync"
	"sync/atomic"

	"github.com/rcrowley/go-metrics"

	"github.com/vision-chain/vision-node/crypto"
	"github.com/vision-chain/vision-node/log"
	"github.com/vision-chain/vision-node/types"
)

// batchSize bounds how many nonces a worker tries between stop-flag polls
// (spec §5: "Mining workers ... are interrupted by a stop-flag poll between
// inner loops (SIMD batches of 1-1024 nonces)").
const batchSize = 1024

// Profile sizes the worker pool (spec §4.6: "profile: laptop, balanced,
// beast").
type Profile int

const (
	ProfileLaptop Profile = iota
	ProfileBalanced
	ProfileBeast
)

// Workers returns how many nonce-search goroutines a profile runs.
func (p Profile) Workers() int {
	switch p {
	case ProfileBeast:
		return 16
	case ProfileBalanced:
		return 4
	default:
		return 1
	}
}

// Task is a candidate block template handed to every worker in the pool;
// each searches the same header for a nonce meeting its Difficulty.
type Task struct {
	Block *types.Block
}

// Result is a solved header: Nonce is the winning value, ready to be copied
// back onto Task.Block before the block is handed to the chain thread.
type Result struct {
	Task   *Task
	Header types.Header
}

// worker is one nonce-search goroutine, generalizing the teacher's CpuAgent.
type worker struct {
	mu sync.Mutex

	id     uint64
	stride uint64

	workCh        chan *Task
	stop          chan struct{}
	quitCurrentOp chan struct{}
	returnCh      chan<- *Result

	scratch *crypto.Scratchpad
	running int32

	hashrate metrics.Meter
}

func newWorker(id, stride uint64, returnCh chan<- *Result, hashrate metrics.Meter) (*worker, error) {
	scratch, err := crypto.NewScratchpad()
	if err != nil {
		return nil, err
	}
	return &worker{
		id:       id,
		stride:   stride,
		workCh:   make(chan *Task, 1),
		stop:     make(chan struct{}, 1),
		returnCh: returnCh,
		scratch:  scratch,
		hashrate: hashrate,
	}, nil
}

func (w *worker) Work() chan<- *Task { return w.workCh }

func (w *worker) Start() {
	if !atomic.CompareAndSwapInt32(&w.running, 0, 1) {
		return // already started
	}
	go w.update()
}

func (w *worker) Stop() {
	if !atomic.CompareAndSwapInt32(&w.running, 1, 0) {
		return // already stopped
	}
	w.stop <- struct{}{}
done:
	for {
		select {
		case <-w.workCh:
		default:
			break done
		}
	}
}

func (w *worker) update() {
	defer w.scratch.Close()
	for {
		select {
		case task := <-w.workCh:
			w.mu.Lock()
			if w.quitCurrentOp != nil {
				close(w.quitCurrentOp)
			}
			w.quitCurrentOp = make(chan struct{})
			go w.mine(task, w.quitCurrentOp)
			w.mu.Unlock()
		case <-w.stop:
			w.mu.Lock()
			if w.quitCurrentOp != nil {
				close(w.quitCurrentOp)
				w.quitCurrentOp = nil
			}
			w.mu.Unlock()
			return
		}
	}
}

// mine searches nonce = id, id+stride, id+2*stride, ... against task's
// header, checking stop every batchSize tries so a tip change is noticed
// promptly without synchronizing on every single hash.
func (w *worker) mine(task *Task, stop <-chan struct{}) {
	header := task.Block.Header
	preimage := header.PowPreimage()
	target := [16]byte(header.Difficulty)

	for nonce := w.id; ; {
		for i := 0; i < batchSize; i++ {
			hash := w.scratch.PowHash(preimage, nonce)
			if crypto.MeetsTarget(hash, target) {
				found := header
				found.Nonce = nonce
				w.returnCh <- &Result{Task: task, Header: found}
				return
			}
			nonce += w.stride
		}
		w.hashrate.Mark(batchSize)
		select {
		case <-stop:
			return
		default:
		}
	}
}

// Pool is the whole mining driver: a profile-sized set of workers sharing
// one candidate template, reporting solved headers on Results.
type Pool struct {
	log     log.Logger
	workers []*worker
	recv    chan *Result
	Results chan *Result

	hashrate    metrics.Meter
	blocksFound metrics.Counter
}

// New starts a worker pool sized by profile. Every worker begins idle; call
// SubmitWork to hand it a candidate template.
func New(profile Profile) (*Pool, error) {
	n := profile.Workers()
	p := &Pool{
		log:         log.NewModuleLogger(log.ModuleMiner),
		recv:        make(chan *Result, n),
		Results:     make(chan *Result, n),
		hashrate:    metrics.NewRegisteredMeter("miner/hashrate", nil),
		blocksFound: metrics.NewRegisteredCounter("miner/blocksfound", nil),
	}
	for i := 0; i < n; i++ {
		w, err := newWorker(uint64(i), uint64(n), p.recv, p.hashrate)
		if err != nil {
			p.Stop()
			return nil, err
		}
		w.Start()
		p.workers = append(p.workers, w)
	}
	go p.drain()
	return p, nil
}

func (p *Pool) drain() {
	for r := range p.recv {
		p.blocksFound.Inc(1)
		p.log.Info("candidate nonce found", "height", r.Task.Block.Header.Height, "nonce", r.Header.Nonce)
		p.Results <- r
	}
}

// SubmitWork broadcasts a new candidate template to every worker, restarting
// any search in flight (spec §4.6: "on new best tip, workers are signaled to
// restart with the new candidate header").
func (p *Pool) SubmitWork(block *types.Block) {
	task := &Task{Block: block}
	for _, w := range p.workers {
		w.Work() <- task
	}
}

// Stop halts every worker. The pool cannot be restarted; build a new one.
func (p *Pool) Stop() {
	for _, w := range p.workers {
		w.Stop()
	}
}
