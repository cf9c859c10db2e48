package evaluation

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
)

// RenderCosts prints the AI cost report.
func RenderCosts(w io.Writer, r CostReport) {
	fmt.Fprintf(w, "\n  --- AI COSTS ---\n")
	tbl := tablewriter.NewWriter(w)
	tbl.Header("Period", "Cost", "Requests", "Limit", "Exhausted")
	tbl.Append("today", fmt.Sprintf("$%.4f", r.Today.TotalCost), fmt.Sprintf("%d", r.Today.RequestCount),
		fmt.Sprintf("$%.2f", r.Today.DailyLimit), fmt.Sprintf("%t", r.Today.Exhausted))
	tbl.Append("yesterday", fmt.Sprintf("$%.4f", r.Yesterday.TotalCost), fmt.Sprintf("%d", r.Yesterday.RequestCount),
		fmt.Sprintf("$%.2f", r.Yesterday.DailyLimit), fmt.Sprintf("%t", r.Yesterday.Exhausted))
	tbl.Append("7 days", fmt.Sprintf("$%.4f", r.WeekCost), fmt.Sprintf("%d", r.WeekRequests), "", "")
	tbl.Render()

	fmt.Fprintf(w, "  Budget used today: %.1f%%  Cost per request: $%.4f\n", r.BudgetUtilization*100, r.CostPerRequest)
	for _, rec := range r.Recommendations {
		fmt.Fprintf(w, "  ! %s\n", rec)
	}
}

// RenderPerformance prints the trading performance report.
func RenderPerformance(w io.Writer, r PerformanceReport) {
	fmt.Fprintf(w, "\n  --- PERFORMANCE (7 days) ---\n")
	fmt.Fprintf(w, "  Trades: %d  Wins: %d  Win rate: %.1f%%\n", r.Trades, r.Wins, r.WinRate*100)
	fmt.Fprintf(w, "  Total P&L: $%.2f  Avg P&L: $%.4f\n", r.TotalPnL, r.AvgPnL)

	if len(r.ByReason) > 0 {
		tbl := tablewriter.NewWriter(w)
		tbl.Header("Exit reason", "Trades", "P&L", "Avg P&L")
		for _, reason := range sortedReasons(r.ByReason) {
			s := r.ByReason[reason]
			tbl.Append(string(reason), fmt.Sprintf("%d", s.Count), fmt.Sprintf("$%.2f", s.PnL), fmt.Sprintf("$%.4f", s.AvgPnL))
		}
		tbl.Render()
	}

	if len(r.ByStrategy) > 0 {
		tbl := tablewriter.NewWriter(w)
		tbl.Header("Strategy", "Trades", "P&L", "Avg P&L")
		for _, name := range sortedStrategies(r.ByStrategy) {
			s := r.ByStrategy[name]
			tbl.Append(name, fmt.Sprintf("%d", s.Count), fmt.Sprintf("$%.2f", s.PnL), fmt.Sprintf("$%.4f", s.AvgPnL))
		}
		tbl.Render()
	}

	fmt.Fprintf(w, "  Open positions: %d  Cost basis: $%.2f  Avg hours held: %.1f\n",
		r.OpenPositions, r.OpenCost, r.AvgHoursHeld)
}
