package scalper

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alanyoungcy/kalshibot/internal/config"
)

// Route is one row of the routing table: markets whose title contains any
// keyword belong to the route and are traded with its trigger.
type Route struct {
	Name     string
	Keywords []string
	Trigger  string
	Enabled  bool
}

// Router classifies market titles. Routes are matched in table order and the
// first keyword hit wins.
type Router struct {
	routes []Route
}

// NewRouter validates the table and builds a Router. Every route needs a
// unique name and at least one keyword; enabled routes need a known trigger.
func NewRouter(table []config.RouteConfig) (*Router, error) {
	var errs []error
	seen := make(map[string]bool, len(table))
	routes := make([]Route, 0, len(table))

	for i, rc := range table {
		name := strings.TrimSpace(rc.Name)
		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("route %d: missing name", i))
			continue
		case seen[name]:
			errs = append(errs, fmt.Errorf("route %q: duplicate name", name))
			continue
		}
		seen[name] = true

		r := Route{Name: name, Trigger: rc.Trigger, Enabled: rc.Enabled}
		for _, kw := range rc.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				r.Keywords = append(r.Keywords, kw)
			}
		}
		if len(r.Keywords) == 0 {
			errs = append(errs, fmt.Errorf("route %q: no keywords", name))
		}
		if r.Enabled {
			if _, ok := triggers[r.Trigger]; !ok {
				errs = append(errs, fmt.Errorf("route %q: unknown trigger %q", name, r.Trigger))
			}
		}
		routes = append(routes, r)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("scalper: routing table: %w", err)
	}
	return &Router{routes: routes}, nil
}

// Match returns the route for title. ok is false when no keyword matches.
// Disabled routes still match so callers can report the coverage gap.
func (r *Router) Match(title string) (Route, bool) {
	t := strings.ToLower(title)
	for _, route := range r.routes {
		for _, kw := range route.Keywords {
			if strings.Contains(t, kw) {
				return route, true
			}
		}
	}
	return Route{}, false
}

// Routes returns the table in match order.
func (r *Router) Routes() []Route {
	out := make([]Route, len(r.routes))
	copy(out, r.routes)
	return out
}
