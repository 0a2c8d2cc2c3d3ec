package perf

// Quality is a coarse rendering-quality hint derived from frame rate.
type Quality int

const (
	QualityHigh Quality = iota
	QualityMedium
	QualityLow
	QualityMinimal
)

func (q Quality) String() string {
	switch q {
	case QualityHigh:
		return "high"
	case QualityMedium:
		return "medium"
	case QualityLow:
		return "low"
	default:
		return "minimal"
	}
}

// SuggestQuality maps the rolling average against the target: at or above
// target is High, 75% Medium, 50% Low, anything slower Minimal. An empty
// window suggests High.
func (m *Monitor) SuggestQuality() Quality {
	if m.count == 0 {
		return QualityHigh
	}
	ratio := m.AverageFPS() / m.cfg.TargetFPS
	switch {
	case ratio >= 1:
		return QualityHigh
	case ratio >= 0.75:
		return QualityMedium
	case ratio >= 0.5:
		return QualityLow
	default:
		return QualityMinimal
	}
}
