package domain

// DailyUsage tracks AI spend for one calendar day (UTC, "2006-01-02").
type DailyUsage struct {
	Date         string
	TotalCost    float64
	RequestCount int
	DailyLimit   float64
	Exhausted    bool
}

// Remaining returns the budget left for the day, never negative.
func (u DailyUsage) Remaining() float64 {
	r := u.DailyLimit - u.TotalCost
	if r < 0 {
		return 0
	}
	return r
}
