package worker

import (
	"sync"

	"github.com/kasilink/kasilink-backend/internal/metrics"
)

type task func()

// Pool runs best-effort side effects (bus publishes, notifications) off the
// request path. Stop drains the queue before returning, so submitted work is
// not dropped on graceful shutdown.
type Pool struct {
	wg   sync.WaitGroup
	jobs chan task
}

func NewPool(n int) *Pool {
	if n <= 0 {
		n = 1
	}
	p := &Pool{jobs: make(chan task, 1024)}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				job()
				metrics.WorkerQueueDepth.Set(float64(len(p.jobs)))
			}
		}()
	}
	return p
}

func (p *Pool) Submit(f task) {
	p.jobs <- f
	metrics.WorkerQueueDepth.Set(float64(len(p.jobs)))
}

func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
}
