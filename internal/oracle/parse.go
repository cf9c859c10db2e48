package oracle

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

var (
	jsonObject    = regexp.MustCompile(`(?s)\{.*\}`)
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
)

// ParseDecision extracts the first JSON object from a model reply and maps it
// onto a Decision. Unknown actions become SKIP, a missing side defaults to
// YES and a missing limit price to 50 cents. Confidence is clamped to [0, 1]
// and the limit price to [0, 100].
func ParseDecision(text string) (domain.Decision, error) {
	raw := jsonObject.FindString(text)
	if raw == "" {
		return domain.Decision{}, fmt.Errorf("oracle: no json object in reply: %w", domain.ErrMalformedDecision)
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		repaired := trailingComma.ReplaceAllString(raw, "$1")
		if err2 := json.Unmarshal([]byte(repaired), &fields); err2 != nil {
			return domain.Decision{}, fmt.Errorf("oracle: decode reply: %v: %w", err, domain.ErrMalformedDecision)
		}
	}

	d := domain.Decision{
		Action:     domain.ActionSkip,
		Side:       domain.SideYes,
		LimitPrice: 50,
		Reasoning:  "No reasoning provided.",
	}

	switch domain.DecisionAction(strings.ToUpper(stringField(fields, "action"))) {
	case domain.ActionBuy:
		d.Action = domain.ActionBuy
	case domain.ActionSell:
		d.Action = domain.ActionSell
	}
	if strings.EqualFold(stringField(fields, "side"), "no") {
		d.Side = domain.SideNo
	}
	if c, ok := numberField(fields, "confidence"); ok {
		d.Confidence = math.Max(0, math.Min(1, c))
	}
	if p, ok := numberField(fields, "limit_price"); ok {
		d.LimitPrice = int(math.Round(math.Max(0, math.Min(100, p))))
	}
	if r := stringField(fields, "reasoning"); r != "" {
		d.Reasoning = r
	}
	return d, nil
}

func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return fmt.Sprint(v)
}

func numberField(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
