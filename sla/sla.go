package sla

import "time"

// Level is the badge severity derived from how long a case has sat in
// its current status.
type Level string

const (
	LevelOK       Level = "ok"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Threshold defines the warning and critical deadlines, in hours, for
// one case status. A zero hour disables that level.
type Threshold struct {
	CaseStatus    string
	WarningHours  int
	CriticalHours int
}

// Evaluate returns the badge level for a case that entered its current
// status at since, observed at now.
func Evaluate(t Threshold, since, now time.Time) Level {
	elapsed := now.Sub(since)
	if t.CriticalHours > 0 && elapsed >= time.Duration(t.CriticalHours)*time.Hour {
		return LevelCritical
	}
	if t.WarningHours > 0 && elapsed >= time.Duration(t.WarningHours)*time.Hour {
		return LevelWarning
	}
	return LevelOK
}

// DefaultThresholds apply until an admin stores overrides.
var DefaultThresholds = []Threshold{
	{CaseStatus: "open", WarningHours: 48, CriticalHours: 96},
	{CaseStatus: "in_progress", WarningHours: 120, CriticalHours: 240},
}
