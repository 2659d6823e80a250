// Package mm holds the memory objects shared between processes: page-frame
// pools, reference-counted regions and address spaces.
package mm

import (
	"fmt"
	"sync"

	"github.com/me/pmcore/pkg/model"
)

// PageSize is the size in bytes of one page frame.
const PageSize = 4096

// Pool is a fixed budget of physical page frames.
type Pool struct {
	mu    sync.Mutex
	total int
	used  int
}

// NewPool creates a pool of n frames.
func NewPool(frames int) *Pool {
	return &Pool{total: frames}
}

// Alloc claims n frames or fails with ENOMEM without claiming any.
func (p *Pool) Alloc(n int) error {
	if n < 0 {
		return fmt.Errorf("alloc %d frames: %w", n, model.EINVAL)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.used+n > p.total {
		return model.ENOMEM
	}
	p.used += n
	return nil
}

// Free returns n frames to the pool.
func (p *Pool) Free(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > p.used {
		panic(fmt.Sprintf("mm: freeing %d frames with only %d in use", n, p.used))
	}
	p.used -= n
}

// Used returns the number of claimed frames.
func (p *Pool) Used() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.used
}

// Total returns the size of the pool.
func (p *Pool) Total() int {
	return p.total
}
