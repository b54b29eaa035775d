package observability

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Counters implements every hook interface by counting events. It is safe for
// concurrent use and cheap enough to leave registered in production.
type Counters struct {
	started   time.Time
	inFlight  atomic.Int64
	acked     atomic.Int64
	requeued  atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
	cacheHit  atomic.Int64
	cacheMiss atomic.Int64
	httpReqs  atomic.Int64
	httpErrs  atomic.Int64

	mu    sync.Mutex
	tools map[string]*ToolStats
}

// ToolStats aggregates attempts for one tool.
type ToolStats struct {
	Attempts    int64 `json:"attempts"`
	Failures    int64 `json:"failures"`
	Unavailable int64 `json:"unavailable"`
}

// Stats is a point-in-time copy of the counters.
type Stats struct {
	Uptime      string               `json:"uptime"`
	InFlight    int64                `json:"inFlight"`
	Acked       int64                `json:"acked"`
	Requeued    int64                `json:"requeued"`
	Dropped     int64                `json:"dropped"`
	Failed      int64                `json:"failed"`
	CacheHits   int64                `json:"cacheHits"`
	CacheMisses int64                `json:"cacheMisses"`
	HTTP        int64                `json:"httpRequests"`
	HTTPErrors  int64                `json:"httpErrors"`
	Tools       map[string]ToolStats `json:"tools"`
}

// NewCounters returns zeroed counters.
func NewCounters() *Counters {
	return &Counters{started: time.Now(), tools: make(map[string]*ToolStats)}
}

func (c *Counters) OnJobStart(context.Context, string) { c.inFlight.Add(1) }

func (c *Counters) OnJobComplete(_ context.Context, _ string, outcome string, _ time.Duration, err error) {
	c.inFlight.Add(-1)
	if err != nil {
		c.failed.Add(1)
	}
	switch outcome {
	case OutcomeAcked:
		c.acked.Add(1)
	case OutcomeRequeued:
		c.requeued.Add(1)
	case OutcomeDropped:
		c.dropped.Add(1)
	}
}

func (c *Counters) OnToolAttempt(_ context.Context, tool string, _ int, class string, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.tool(tool)
	s.Attempts++
	if class != "" {
		s.Failures++
	}
}

func (c *Counters) OnToolUnavailable(_ context.Context, tool, _ string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tool(tool).Unavailable++
}

func (c *Counters) tool(name string) *ToolStats {
	s, ok := c.tools[name]
	if !ok {
		s = &ToolStats{}
		c.tools[name] = s
	}
	return s
}

func (c *Counters) OnCacheHit(context.Context, string)      { c.cacheHit.Add(1) }
func (c *Counters) OnCacheMiss(context.Context, string)     { c.cacheMiss.Add(1) }
func (c *Counters) OnCacheSet(context.Context, string, int) {}

func (c *Counters) OnRequest(context.Context, string, string, string) { c.httpReqs.Add(1) }
func (c *Counters) OnResponse(context.Context, string, string, string, int, time.Duration) {
}
func (c *Counters) OnError(context.Context, string, string, string, error) { c.httpErrs.Add(1) }

// Snapshot returns the current values.
func (c *Counters) Snapshot() Stats {
	s := Stats{
		Uptime:      time.Since(c.started).Round(time.Second).String(),
		InFlight:    c.inFlight.Load(),
		Acked:       c.acked.Load(),
		Requeued:    c.requeued.Load(),
		Dropped:     c.dropped.Load(),
		Failed:      c.failed.Load(),
		CacheHits:   c.cacheHit.Load(),
		CacheMisses: c.cacheMiss.Load(),
		HTTP:        c.httpReqs.Load(),
		HTTPErrors:  c.httpErrs.Load(),
		Tools:       make(map[string]ToolStats),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, t := range c.tools {
		s.Tools[name] = *t
	}
	return s
}
