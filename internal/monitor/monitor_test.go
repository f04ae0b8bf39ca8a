package monitor

import (
	"testing"
	"time"

	"github.com/mkb23/overcode/internal/detect"
	"github.com/mkb23/overcode/internal/registry"
)

func TestAdvanceLifecycleOnChildDoneMarksDone(t *testing.T) {
	s := registry.NewSession("", "alpha", "main", 1)
	advanceLifecycleOnChildDone(&s, detect.Result{Status: detect.StatusTerminated, ChildReportedDone: true})
	if s.Status != registry.LifecycleDone {
		t.Errorf("expected lifecycle done, got %v", s.Status)
	}
}

func TestAdvanceLifecycleOnChildDoneIgnoresPlainTerminated(t *testing.T) {
	s := registry.NewSession("", "alpha", "main", 1)
	advanceLifecycleOnChildDone(&s, detect.Result{Status: detect.StatusTerminated})
	if s.Status != registry.LifecycleRunning {
		t.Errorf("expected lifecycle unchanged without a child-reported signal, got %v", s.Status)
	}
}

func TestAdvanceLifecycleOnChildDoneNeverDowngradesTerminated(t *testing.T) {
	s := registry.NewSession("", "alpha", "main", 1)
	s.Status = registry.LifecycleTerminated
	advanceLifecycleOnChildDone(&s, detect.Result{Status: detect.StatusTerminated, ChildReportedDone: true})
	if s.Status != registry.LifecycleTerminated {
		t.Errorf("expected already-terminated session to stay terminated, got %v", s.Status)
	}
}

func TestAccumulatorFirstObservationAnchorsOnly(t *testing.T) {
	a := newAccumulator()
	s := registry.NewSession("", "alpha", "main", 1)
	now := time.Now()
	a.update("id1", &s, detect.StatusRunning, true, now, s.StartTime)
	if s.Stats.GreenTimeSeconds != 0 {
		t.Errorf("expected no accumulation on first observation, got %v", s.Stats.GreenTimeSeconds)
	}
}

func TestAccumulatorAccumulatesGreenTime(t *testing.T) {
	a := newAccumulator()
	s := registry.NewSession("", "alpha", "main", 1)
	start := s.StartTime
	t0 := start
	a.update("id1", &s, detect.StatusRunning, true, t0, start)
	t1 := t0.Add(5 * time.Second)
	a.update("id1", &s, detect.StatusRunning, true, t1, start)
	if s.Stats.GreenTimeSeconds < 4.9 || s.Stats.GreenTimeSeconds > 5.1 {
		t.Errorf("expected ~5s green time, got %v", s.Stats.GreenTimeSeconds)
	}
}

func TestAccumulatorSleepBucketWhenAsleep(t *testing.T) {
	a := newAccumulator()
	s := registry.NewSession("", "alpha", "main", 1)
	s.IsAsleep = true
	start := s.StartTime
	a.update("id1", &s, detect.StatusAsleep, false, start, start)
	a.update("id1", &s, detect.StatusAsleep, false, start.Add(3*time.Second), start)
	if s.Stats.SleepTimeSeconds < 2.9 {
		t.Errorf("expected sleep time to accumulate, got %v", s.Stats.SleepTimeSeconds)
	}
	if s.Stats.GreenTimeSeconds != 0 || s.Stats.NonGreenTimeSeconds != 0 {
		t.Error("expected green/non-green to remain zero while asleep")
	}
}

func TestAccumulatorRescalesOnUptimeCapBreach(t *testing.T) {
	a := newAccumulator()
	s := registry.NewSession("", "alpha", "main", 1)
	start := s.StartTime
	now := start.Add(10 * time.Second)

	s.Stats.GreenTimeSeconds = 6
	s.Stats.NonGreenTimeSeconds = 6
	s.Stats.SleepTimeSeconds = 0
	a.states["id1"] = &accumState{lastStateTime: now, lastStatus: detect.StatusRunning, seen: true}

	a.update("id1", &s, detect.StatusRunning, true, now.Add(1*time.Second), start)

	total := s.Stats.GreenTimeSeconds + s.Stats.NonGreenTimeSeconds + s.Stats.SleepTimeSeconds
	uptimeCap := now.Add(1*time.Second).Sub(start).Seconds() * 1.1
	if total > uptimeCap+0.01 {
		t.Errorf("expected total %v to respect cap %v", total, uptimeCap)
	}
	// Ratio between green and non-green should be preserved (both were equal).
	if diff := s.Stats.GreenTimeSeconds - s.Stats.NonGreenTimeSeconds; diff > 0.01 || diff < -0.01 {
		t.Errorf("expected rescale to preserve green/non-green ratio, got green=%v nongreen=%v",
			s.Stats.GreenTimeSeconds, s.Stats.NonGreenTimeSeconds)
	}
}

func TestEstimateCostMatchesReferencePricing(t *testing.T) {
	got := EstimateCost(DefaultPricing, 1_000_000, 0, 0, 0)
	if got != 15.0 {
		t.Errorf("expected $15 for 1M input tokens, got %v", got)
	}
	got = EstimateCost(DefaultPricing, 0, 1_000_000, 0, 0)
	if got != 75.0 {
		t.Errorf("expected $75 for 1M output tokens, got %v", got)
	}
	got = EstimateCost(DefaultPricing, 500_000, 0, 200_000, 1_000_000)
	if diff := got - 20.25; diff > 0.001 || diff < -0.001 {
		t.Errorf("expected $20.25, got %v", got)
	}
}

func TestHeartbeatDueRespectsGates(t *testing.T) {
	s := registry.NewSession("", "alpha", "main", 1)
	s.HeartbeatEnabled = true
	s.HeartbeatFrequencySeconds = 60
	s.HeartbeatInstruction = "status update"
	now := s.StartTime.Add(61 * time.Second)

	if !heartbeatDue(&s, now) {
		t.Error("expected heartbeat due after frequency elapses")
	}

	s.HeartbeatPaused = true
	if heartbeatDue(&s, now) {
		t.Error("expected paused heartbeat to be suppressed")
	}
	s.HeartbeatPaused = false

	s.IsAsleep = true
	if heartbeatDue(&s, now) {
		t.Error("expected asleep session to suppress heartbeat")
	}
	s.IsAsleep = false

	s.BudgetExceeded = true
	if heartbeatDue(&s, now) {
		t.Error("expected budget-exceeded session to suppress heartbeat")
	}
}

func TestCSVEscape(t *testing.T) {
	if csvEscape("plain") != "plain" {
		t.Error("plain text should not be quoted")
	}
	if got := csvEscape("has,comma"); got != `"has,comma"` {
		t.Errorf("got %q", got)
	}
	if got := csvEscape(`has"quote`); got != `"has""quote"` {
		t.Errorf("got %q", got)
	}
}
