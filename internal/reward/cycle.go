package reward

import (
	"sync"
	"time"
)

// CycleMetrics is the in-memory diagnostic aggregate for the poll loop.
// It accumulates over the process lifetime and is never persisted.
type CycleMetrics struct {
	mu              sync.Mutex
	cyclesRun       int64
	pollsTotal      int64
	pollsSuccessful int64
	pollsFailed     int64
	rewardsDetected int64
	perSource       map[string]*sourceStats
}

type sourceStats struct {
	requests     int64
	successes    int64
	totalLatency time.Duration
}

// Summary is the JSON shape served on the diagnostics endpoint.
type Summary struct {
	CyclesRun       int64                    `json:"cycles_run"`
	PollsTotal      int64                    `json:"polls_total"`
	PollsSuccessful int64                    `json:"polls_successful"`
	PollsFailed     int64                    `json:"polls_failed"`
	RewardsDetected int64                    `json:"rewards_detected"`
	Pools           map[string]SourceSummary `json:"pools"`
}

type SourceSummary struct {
	Requests          int64   `json:"requests"`
	SuccessRate       float64 `json:"success_rate"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
}

func NewCycleMetrics() *CycleMetrics {
	return &CycleMetrics{perSource: make(map[string]*sourceStats)}
}

func (c *CycleMetrics) recordCycle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cyclesRun++
}

func (c *CycleMetrics) recordPoll(source string, latency time.Duration, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pollsTotal++
	s := c.perSource[source]
	if s == nil {
		s = &sourceStats{}
		c.perSource[source] = s
	}
	s.requests++
	s.totalLatency += latency
	if ok {
		c.pollsSuccessful++
		s.successes++
	} else {
		c.pollsFailed++
	}
}

func (c *CycleMetrics) recordReward() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rewardsDetected++
}

func (c *CycleMetrics) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	pools := make(map[string]SourceSummary, len(c.perSource))
	for name, s := range c.perSource {
		summary := SourceSummary{Requests: s.requests}
		if s.requests > 0 {
			summary.SuccessRate = float64(s.successes) / float64(s.requests)
			summary.AvgResponseTimeMs = float64(s.totalLatency.Milliseconds()) / float64(s.requests)
		}
		pools[name] = summary
	}

	return Summary{
		CyclesRun:       c.cyclesRun,
		PollsTotal:      c.pollsTotal,
		PollsSuccessful: c.pollsSuccessful,
		PollsFailed:     c.pollsFailed,
		RewardsDetected: c.rewardsDetected,
		Pools:           pools,
	}
}
