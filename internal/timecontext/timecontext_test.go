package timecontext

import (
	"strings"
	"testing"
	"time"
)

func TestBuildDisabledReturnsEmpty(t *testing.T) {
	if got := Build(false, Input{}); got != "" {
		t.Errorf("expected empty digest when disabled, got %q", got)
	}
}

func TestBuildOmitsUptimeAndHeartbeatWhenUnset(t *testing.T) {
	now := time.Date(2026, 7, 30, 14, 32, 0, 0, time.UTC)
	got := Build(true, Input{Now: now, Presence: PresenceActive, Office: OfficeHours{9, 17}})
	if strings.Contains(got, "Uptime") {
		t.Errorf("expected no uptime field, got %q", got)
	}
	if strings.Contains(got, "Heartbeat") {
		t.Errorf("expected no heartbeat field, got %q", got)
	}
	if !strings.Contains(got, "User: active") || !strings.Contains(got, "Office: yes") {
		t.Errorf("unexpected digest: %q", got)
	}
}

func TestBuildIncludesUptimeAndHeartbeat(t *testing.T) {
	now := time.Date(2026, 7, 30, 14, 32, 0, 0, time.UTC)
	start := now.Add(-83 * time.Minute)
	lastHB := now.Add(-8 * time.Minute)
	got := Build(true, Input{
		Now: now, Presence: PresenceInactive, Office: OfficeHours{9, 17},
		SessionStart: start, HeartbeatFreq: 15 * time.Minute, LastHeartbeat: lastHB,
	})
	if !strings.Contains(got, "Uptime: 1h23m") {
		t.Errorf("expected uptime 1h23m, got %q", got)
	}
	if !strings.Contains(got, "Heartbeat: 15m (next: 7m)") {
		t.Errorf("expected heartbeat next 7m, got %q", got)
	}
}

func TestOfficeHoursMidnightWrap(t *testing.T) {
	oh := OfficeHours{StartHour: 22, EndHour: 6}
	lateNight := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	earlyMorning := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)
	midday := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if formatOfficeHours(lateNight, oh) != "yes" {
		t.Error("expected 23:00 to be in office hours with midnight wrap")
	}
	if formatOfficeHours(earlyMorning, oh) != "yes" {
		t.Error("expected 03:00 to be in office hours with midnight wrap")
	}
	if formatOfficeHours(midday, oh) != "no" {
		t.Error("expected 12:00 to be outside office hours with midnight wrap")
	}
}

func TestHeartbeatDueNow(t *testing.T) {
	now := time.Date(2026, 7, 30, 14, 32, 0, 0, time.UTC)
	last := now.Add(-20 * time.Minute)
	s, ok := formatHeartbeat(15*time.Minute, last, now)
	if !ok || s != "15m (next: now)" {
		t.Errorf("expected overdue heartbeat to read 'next: now', got %q ok=%v", s, ok)
	}
}

func TestUptimeNegativeClampsToZero(t *testing.T) {
	now := time.Date(2026, 7, 30, 14, 32, 0, 0, time.UTC)
	future := now.Add(5 * time.Minute)
	s, ok := formatUptime(future, now)
	if !ok || s != "0m" {
		t.Errorf("expected clamped 0m uptime, got %q ok=%v", s, ok)
	}
}

func TestPresenceStringUnknownFallback(t *testing.T) {
	if Presence(99).String() != "unknown" {
		t.Error("expected unrecognized presence value to map to unknown")
	}
}
