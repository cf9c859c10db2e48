package scalper

import (
	"strings"

	"github.com/alanyoungcy/kalshibot/internal/config"
	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// TriggerLateLeadChange fires when the lead changes hands late in a game.
const TriggerLateLeadChange = "late_lead_change"

// Signal is a fired trigger.
type Signal struct {
	Leader string
	Reason string
}

// Trigger decides whether an update for a relevant game is tradeable. A
// Trigger is owned by one executor and may keep per-game state.
type Trigger interface {
	Name() string
	Evaluate(ev domain.LiveEvent) (Signal, bool)
}

var triggers = map[string]func(config.ScalperConfig) Trigger{
	TriggerLateLeadChange: func(cfg config.ScalperConfig) Trigger { return NewLateLeadChange(cfg.LatePeriod) },
}

// NewTrigger builds the named trigger. ok is false for unknown names.
func NewTrigger(name string, cfg config.ScalperConfig) (Trigger, bool) {
	f, ok := triggers[name]
	if !ok {
		return nil, false
	}
	return f(cfg), true
}

// LateLeadChange tracks the leader of each game and fires when a different
// team takes the lead at or after the late period. Ties do not reset the
// remembered leader, so a tie followed by the trailing team going ahead still
// counts as a change.
type LateLeadChange struct {
	latePeriod int
	leaders    map[string]string
}

// NewLateLeadChange creates the trigger.
func NewLateLeadChange(latePeriod int) *LateLeadChange {
	return &LateLeadChange{latePeriod: latePeriod, leaders: make(map[string]string)}
}

// Name implements Trigger.
func (l *LateLeadChange) Name() string { return TriggerLateLeadChange }

// Evaluate implements Trigger.
func (l *LateLeadChange) Evaluate(ev domain.LiveEvent) (Signal, bool) {
	leader := ev.Leader()
	if leader == "" {
		return Signal{}, false
	}
	prev := l.leaders[ev.ID]
	l.leaders[ev.ID] = leader
	if prev == "" || prev == leader || ev.Period < l.latePeriod {
		return Signal{}, false
	}
	return Signal{Leader: leader, Reason: "late lead change from " + prev}, true
}

// Relevant reports whether ev is about the game a market is priced on: both
// team names must appear in the title.
func Relevant(ev domain.LiveEvent, title string) bool {
	if ev.HomeTeam == "" || ev.AwayTeam == "" {
		return false
	}
	t := strings.ToLower(title)
	return strings.Contains(t, strings.ToLower(ev.HomeTeam)) &&
		strings.Contains(t, strings.ToLower(ev.AwayTeam))
}

// SideFor picks the contract side that backs leader. Market titles name the
// team the YES side is about first ("Will Chiefs beat Bills?"), so YES backs
// the team mentioned earliest.
func SideFor(ev domain.LiveEvent, title, leader string) domain.Side {
	t := strings.ToLower(title)
	home := strings.Index(t, strings.ToLower(ev.HomeTeam))
	away := strings.Index(t, strings.ToLower(ev.AwayTeam))
	subject := ev.HomeTeam
	if away >= 0 && (home < 0 || away < home) {
		subject = ev.AwayTeam
	}
	if strings.EqualFold(leader, subject) {
		return domain.SideYes
	}
	return domain.SideNo
}
