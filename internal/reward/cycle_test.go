package reward

import (
	"testing"
	"time"
)

func TestCycleMetricsEmpty(t *testing.T) {
	s := NewCycleMetrics().Summary()
	if s.PollsTotal != 0 || s.CyclesRun != 0 || len(s.Pools) != 0 {
		t.Errorf("empty summary = %+v, want zeroes", s)
	}
}

func TestCycleMetricsAccumulates(t *testing.T) {
	c := NewCycleMetrics()

	c.recordPoll("cpu-pool", 100*time.Millisecond, true)
	c.recordPoll("cpu-pool", 300*time.Millisecond, true)
	c.recordPoll("cpu-pool", 200*time.Millisecond, false)
	c.recordPoll("zpool", 50*time.Millisecond, true)
	c.recordReward()
	c.recordCycle()

	s := c.Summary()
	if s.CyclesRun != 1 {
		t.Errorf("CyclesRun = %d, want 1", s.CyclesRun)
	}
	if s.PollsTotal != 4 || s.PollsSuccessful != 3 || s.PollsFailed != 1 {
		t.Errorf("polls = %d/%d/%d, want 4/3/1", s.PollsTotal, s.PollsSuccessful, s.PollsFailed)
	}
	if s.RewardsDetected != 1 {
		t.Errorf("RewardsDetected = %d, want 1", s.RewardsDetected)
	}

	cp := s.Pools["cpu-pool"]
	if cp.Requests != 3 {
		t.Errorf("cpu-pool requests = %d, want 3", cp.Requests)
	}
	if got, want := cp.SuccessRate, 2.0/3.0; got < want-1e-9 || got > want+1e-9 {
		t.Errorf("cpu-pool success rate = %f, want %f", got, want)
	}
	if cp.AvgResponseTimeMs != 200 {
		t.Errorf("cpu-pool avg latency = %f, want 200", cp.AvgResponseTimeMs)
	}

	zp := s.Pools["zpool"]
	if zp.Requests != 1 || zp.SuccessRate != 1 {
		t.Errorf("zpool = %+v, want 1 request at 100%% success", zp)
	}
}
