package domain

import "time"

// LiveEvent is one update from a live sports/data feed consumed by the scalper.
type LiveEvent struct {
	ID        string
	Source    string
	Sport     string
	HomeTeam  string
	AwayTeam  string
	HomeScore int
	AwayScore int
	Period    int
	Status    string
	Received  time.Time
}

// Leader returns the team currently ahead, or "" on a tie.
func (e LiveEvent) Leader() string {
	switch {
	case e.HomeScore > e.AwayScore:
		return e.HomeTeam
	case e.AwayScore > e.HomeScore:
		return e.AwayTeam
	default:
		return ""
	}
}
