package chaos

import (
	"math/rand"
	"sync"
	"time"

	"github.com/yanun0323/errors"

	"github.com/yanun0323/go-link/pkg/link"
)

// Config controls chaos injection behavior.
type Config struct {
	Seed          int64
	DropRate      float64
	DuplicateRate float64
	MaxDelay      time.Duration
}

// Reply is a message to write back to the client after Delay.
type Reply struct {
	Msg   link.Message
	Delay time.Duration
}

// Engine applies chaos rules to peer replies. It is safe for concurrent use.
type Engine struct {
	cfg Config

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine creates a chaos engine with validation.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	return &Engine{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if c.DropRate < 0 || c.DropRate > 1 {
		return errors.New("dropRate must be between 0 and 1")
	}
	if c.DuplicateRate < 0 || c.DuplicateRate > 1 {
		return errors.New("duplicateRate must be between 0 and 1")
	}
	if c.MaxDelay < 0 {
		return errors.New("maxDelay must be >= 0")
	}
	return nil
}

// Process applies chaos to a single reply and returns what should actually be written.
// A dropped reply yields nothing; a duplicated one yields the same message twice.
func (e *Engine) Process(msg link.Message) []Reply {
	if e == nil {
		return []Reply{{Msg: msg}}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.shouldDrop() {
		return nil
	}
	out := []Reply{{Msg: msg, Delay: e.delay()}}
	if e.cfg.DuplicateRate > 0 && e.rng.Float64() < e.cfg.DuplicateRate {
		out = append(out, Reply{Msg: msg, Delay: e.delay()})
	}
	return out
}

func (e *Engine) shouldDrop() bool {
	return e.cfg.DropRate > 0 && e.rng.Float64() < e.cfg.DropRate
}

func (e *Engine) delay() time.Duration {
	maxDelay := e.cfg.MaxDelay.Nanoseconds()
	if maxDelay <= 0 {
		return 0
	}
	return time.Duration(e.rng.Int63n(maxDelay + 1))
}
