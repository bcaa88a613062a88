package countdown

import "sync"

// DefaultTicks is the length of an ad view in ticks (one tick per second).
const DefaultTicks = 30

type State int

const (
	Idle State = iota
	Running
	Complete
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Complete:
		return "complete"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Countdown is a single-shot countdown. It knows nothing about how ticks are
// scheduled; the owner calls Tick.
type Countdown struct {
	mu        sync.Mutex
	total     int
	state     State
	remaining int
}

func New(ticks int) *Countdown {
	if ticks <= 0 {
		ticks = DefaultTicks
	}
	return &Countdown{total: ticks}
}

// Start (re)starts the countdown from the full length.
func (c *Countdown) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Running
	c.remaining = c.total
}

// Tick advances a running countdown by one and returns the remaining ticks and
// whether this tick completed it. Ticks outside Running are ignored.
func (c *Countdown) Tick() (remaining int, completed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Running {
		return c.remaining, false
	}
	c.remaining--
	if c.remaining <= 0 {
		c.remaining = 0
		c.state = Complete
		return 0, true
	}
	return c.remaining, false
}

// Cancel forfeits the countdown. Cancelling an idle countdown is a no-op.
func (c *Countdown) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Idle {
		return
	}
	c.state = Cancelled
	c.remaining = 0
}

func (c *Countdown) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Unlocked reports whether the claim control may be used.
func (c *Countdown) Unlocked() bool {
	return c.State() == Complete
}
