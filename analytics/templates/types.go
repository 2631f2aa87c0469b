// Package templates contains view models and components for the visits dashboard.
// These types mirror the analytics types to avoid import cycles.
package templates

// SeriesViewModel represents a daily visit series for templating.
type SeriesViewModel struct {
	From        string
	To          string
	Days        int
	Points      []PointViewModel
	TotalVisits int
	TotalUnique int
	MaxVisits   int
}

// PointViewModel represents one day of the series.
type PointViewModel struct {
	Date   string
	Visits int
	Unique int
}

// BarWidth returns the point's visits as a percentage of the busiest day.
func (vm *SeriesViewModel) BarWidth(p PointViewModel) int {
	if vm.MaxVisits == 0 {
		return 0
	}
	return p.Visits * 100 / vm.MaxVisits
}
