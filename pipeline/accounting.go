package pipeline

import (
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
)

// Polling endpoints excluded from traffic accounting so the busy indicator
// does not flicker on background polls.
const (
	EndpointPresence    = "/presence"
	EndpointUnreadCount = "/notifications/unread-count"
)

func defaultAccountingExempt() []string {
	return []string{EndpointPresence, EndpointUnreadCount}
}

// InFlightCounter tracks concurrent requests and reports busy-state edges:
// the first in-flight request turns the indicator on, the last completion
// turns it off. The count clamps at zero.
type InFlightCounter struct {
	count    atomic.Int64
	mu       sync.Mutex
	onChange func(busy bool)
}

// NewInFlightCounter creates a counter. onChange may be nil; it is invoked
// on the 0→1 and 1→0 edges only.
func NewInFlightCounter(onChange func(busy bool)) *InFlightCounter {
	return &InFlightCounter{onChange: onChange}
}

// Increment records a dispatched request.
func (c *InFlightCounter) Increment() {
	if c.count.Add(1) == 1 {
		c.notify(true)
	}
}

// Decrement records a completed request. A decrement with nothing in
// flight is ignored rather than driving the count negative.
func (c *InFlightCounter) Decrement() {
	for {
		current := c.count.Load()
		if current == 0 {
			return
		}
		if c.count.CompareAndSwap(current, current-1) {
			if current == 1 {
				c.notify(false)
			}
			return
		}
	}
}

// Count returns the number of requests currently in flight.
func (c *InFlightCounter) Count() int64 {
	return c.count.Load()
}

// Busy reports whether any accounted request is in flight.
func (c *InFlightCounter) Busy() bool {
	return c.count.Load() > 0
}

func (c *InFlightCounter) notify(busy bool) {
	if c.onChange == nil {
		return
	}
	// Serialize edge callbacks so on/off cannot interleave out of order.
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange(busy)
}

// AccountingStage wraps dispatch with the in-flight counter. Completion is
// counted on success and failure alike.
type AccountingStage struct {
	counter *InFlightCounter
	exempt  []string
}

func NewAccountingStage(counter *InFlightCounter, exempt []string) *AccountingStage {
	if counter == nil {
		counter = NewInFlightCounter(nil)
	}
	if exempt == nil {
		exempt = defaultAccountingExempt()
	}
	return &AccountingStage{counter: counter, exempt: exempt}
}

func (s *AccountingStage) Name() string { return "accounting" }

func (s *AccountingStage) Execute(req *http.Request, next Dispatch) (*http.Response, error) {
	if s.exempted(req.URL.Path) {
		return next(req)
	}

	s.counter.Increment()
	defer s.counter.Decrement()
	return next(req)
}

func (s *AccountingStage) exempted(path string) bool {
	for _, fragment := range s.exempt {
		if strings.Contains(path, fragment) {
			return true
		}
	}
	return false
}

// Counter exposes the shared counter for UI bindings.
func (s *AccountingStage) Counter() *InFlightCounter {
	return s.counter
}
