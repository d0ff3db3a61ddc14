package models

// MaxSummaryLines is the hard cap on log lines sent to the AI summarizer
const MaxSummaryLines = 200

// TriggerSettings is the per-organization auto-incident configuration
type TriggerSettings struct {
	Enabled          bool `json:"auto_incident_enabled" yaml:"enabled"`
	ErrorThreshold   int  `json:"auto_incident_error_threshold" yaml:"error_threshold"`
	WindowSeconds    int  `json:"auto_incident_window_seconds" yaml:"window_seconds"`
	CooldownSeconds  int  `json:"auto_incident_cooldown_seconds" yaml:"cooldown_seconds"`
	AISummaryEnabled bool `json:"auto_incident_ai_enabled" yaml:"ai_enabled"`
	SummaryLineCap   int  `json:"auto_incident_summary_lines" yaml:"summary_lines"`
}

// DefaultTriggerSettings returns the documented defaults used when nothing is configured
func DefaultTriggerSettings() TriggerSettings {
	return TriggerSettings{
		Enabled:          false,
		ErrorThreshold:   20,
		WindowSeconds:    60,
		CooldownSeconds:  300,
		AISummaryEnabled: false,
		SummaryLineCap:   MaxSummaryLines,
	}
}

// Normalize replaces unusable numeric fields with the given defaults and
// clamps the summary line cap.
func (s TriggerSettings) Normalize(defaults TriggerSettings) TriggerSettings {
	if s.ErrorThreshold <= 0 {
		s.ErrorThreshold = defaults.ErrorThreshold
	}
	if s.WindowSeconds <= 0 {
		s.WindowSeconds = defaults.WindowSeconds
	}
	if s.CooldownSeconds < 0 {
		s.CooldownSeconds = defaults.CooldownSeconds
	}
	if s.SummaryLineCap <= 0 {
		s.SummaryLineCap = defaults.SummaryLineCap
	}
	if s.SummaryLineCap <= 0 || s.SummaryLineCap > MaxSummaryLines {
		s.SummaryLineCap = MaxSummaryLines
	}
	return s
}
