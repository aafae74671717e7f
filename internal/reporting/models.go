package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type Period string

const (
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// DailyUsage is one pre-aggregated row of daily_usage. The table is
// maintained outside this service; we only read it.
type DailyUsage struct {
	Date         time.Time `json:"date" db:"date"`
	TotalCalls   int       `json:"total_calls" db:"total_calls"`
	TotalMinutes int       `json:"total_minutes" db:"total_minutes"`
}

type OverviewStats struct {
	TotalCalls   int    `json:"totalCalls"`
	TotalMinutes int    `json:"totalMinutes"`
	ActiveCalls  int    `json:"activeCalls"`
	Period       Period `json:"period"`
}
