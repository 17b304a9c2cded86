package engine

import (
	"context"
	"sync"
)

// runWork is one queued trigger request plus an optional channel for the
// synchronous caller waiting on the result.
type runWork struct {
	req     TriggerRequest
	resultC chan *TriggerResult
}

// runPool is a fixed-size goroutine pool with a bounded input queue.
type runPool struct {
	queue   chan *runWork
	process func(ctx context.Context, w *runWork)
	wg      sync.WaitGroup
}

// newRunPool creates and starts a pool with n goroutines and queue
// capacity depth.
func newRunPool(ctx context.Context, n, depth int, fn func(context.Context, *runWork)) *runPool {
	p := &runPool{
		queue:   make(chan *runWork, depth),
		process: fn,
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(ctx)
		}()
	}
	return p
}

func (p *runPool) run(ctx context.Context) {
	for {
		select {
		case w, ok := <-p.queue:
			if !ok {
				return
			}
			p.process(ctx, w)
		case <-ctx.Done():
			return
		}
	}
}

// submit enqueues work without blocking (returns false if full).
func (p *runPool) submit(w *runWork) bool {
	select {
	case p.queue <- w:
		return true
	default:
		return false
	}
}

// drainAndWait closes the queue and waits for all workers to finish.
func (p *runPool) drainAndWait() {
	close(p.queue)
	p.wg.Wait()
}

func (p *runPool) queueLen() int { return len(p.queue) }
func (p *runPool) queueCap() int { return cap(p.queue) }
