package entity

import "time"

// ProcessingStat holds the daily pipeline counters. One row per day, upserted;
// counters are monotonic within the day.
type ProcessingStat struct {
	ID                    int64
	Date                  time.Time
	ArticlesFetched       int64
	ArticlesProcessed     int64
	APICallsMade          int64
	ErrorsCount           int64
	ProcessingTimeSeconds float64
}

// DomainMemory is the persisted per-host snapshot of the content extractor's
// learned state. Advisory only: extraction must work with an empty memory.
type DomainMemory struct {
	Domain           string
	BestMethod       string
	Successes        map[string]int64
	Failures         map[string]int64
	SelectorRates    map[string]float64
	LastAIAnalysis   *time.Time
	ConsecutiveFails int
	Stable           bool
	UpdatedAt        time.Time
}

// TotalAttempts returns the number of recorded extraction attempts.
func (m *DomainMemory) TotalAttempts() int64 {
	var n int64
	for _, c := range m.Successes {
		n += c
	}
	for _, c := range m.Failures {
		n += c
	}
	return n
}

// SuccessRate returns the overall success ratio, or 0 with no attempts.
func (m *DomainMemory) SuccessRate() float64 {
	total := m.TotalAttempts()
	if total == 0 {
		return 0
	}
	var ok int64
	for _, c := range m.Successes {
		ok += c
	}
	return float64(ok) / float64(total)
}
