package blockingpool

import (
	"math"
	"time"

	"github.com/ibs-source/bastion/internal/placement"
)

// runManager is the Pool Manager: one dedicated goroutine that polls
// every managerPollInterval, maintains the frequency window, and
// scales the dynamic worker count, including the throughput-hog
// branch.
func (p *Pool) runManager() {
	defer p.wg.Done()

	ticker := time.NewTicker(managerPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.tick()
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Pool) tick() {
	current := p.arrivals.Swap(0)

	p.window.ensureSeeded()
	prevEMA := p.window.ema()

	frequency := math.Floor(float64(current) / float64(managerPollInterval.Milliseconds()))
	p.window.push(frequency)

	currEMA := p.window.ema()

	delta := currEMA - prevEMA
	switch {
	case currEMA > prevEMA:
		p.spawnN(scaleCount(p.lowWatermark, delta, placement.CoreCount()))
	case math.Abs(delta) < machineEpsilon && current != 0:
		p.spawnN(p.lowWatermark)
	default:
		// no scaling action
	}
}

// machineEpsilon approximates the smallest meaningful float64 delta
// for this comparison.
const machineEpsilon = 2.220446049250313e-16

// scaleCount computes min(num_cpus, floor(lowWatermark*delta + lowWatermark)).
func scaleCount(lowWatermark int64, delta float64, numCPU int) int64 {
	raw := math.Floor(float64(lowWatermark)*delta + float64(lowWatermark))
	n := int64(raw)
	if cpus := int64(numCPU); n > cpus {
		n = cpus
	}
	if n < 0 {
		n = 0
	}
	return n
}

func (p *Pool) spawnN(n int64) {
	for i := int64(0); i < n; i++ {
		if !p.trySpawnDynamic() {
			return
		}
	}
}

// trySpawnDynamic applies the spawn policy: decline and reset
// MAX_THREADS once POOL_SIZE reaches it. A real OS refusal to spawn
// would additionally clamp MAX_THREADS to POOL_SIZE-1; this
// implementation's spawns are goroutines, which the Go runtime does
// not refuse, so that branch has no trigger here.
func (p *Pool) trySpawnDynamic() bool {
	size := int64(p.poolSize.Load())
	max := p.maxThreads.Load()
	if size >= max {
		p.maxThreads.Store(initialMaxThreads)
		return false
	}
	p.spawnDynamicWorker()
	return true
}
