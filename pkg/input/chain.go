package input

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Chain tries its sources in order and returns the first answer.
type Chain struct {
	sources []IdleSource

	mu                   sync.Mutex
	lastSuccessfulMethod string
}

func NewChain(sources ...IdleSource) *Chain {
	return &Chain{sources: sources}
}

func (c *Chain) Name() string {
	names := make([]string, len(c.sources))
	for i, s := range c.sources {
		names[i] = s.Name()
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

func (c *Chain) IsAvailable() bool {
	for _, s := range c.sources {
		if s.IsAvailable() {
			return true
		}
	}
	return false
}

func (c *Chain) IdleTime(ctx context.Context) (time.Duration, error) {
	var errs []string
	for _, s := range c.sources {
		idle, err := s.IdleTime(ctx)
		if err == nil {
			c.mu.Lock()
			c.lastSuccessfulMethod = s.Name()
			c.mu.Unlock()
			return idle, nil
		}
		errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
	}
	if len(errs) == 0 {
		return 0, errors.New("no idle sources configured")
	}
	return 0, errors.Errorf("all idle sources failed: %s", strings.Join(errs, "; "))
}

// LastSuccessful returns the name of the source that answered last.
func (c *Chain) LastSuccessful() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSuccessfulMethod
}

// Status describes the chain for the probe command.
func (c *Chain) Status() string {
	var b strings.Builder
	b.WriteString("Idle sources:\n")
	for _, s := range c.sources {
		fmt.Fprintf(&b, "  %s (available: %v)\n", s.Name(), s.IsAvailable())
	}
	fmt.Fprintf(&b, "  Last successful method: %s\n", c.LastSuccessful())
	return b.String()
}

func (c *Chain) Close() error {
	var first error
	for _, s := range c.sources {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
