package reporting

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// PrintSessionBanner renders the run parameters before trading starts.
func PrintSessionBanner(underlying, exchangeName, env string, strategies []string, exitTime string) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("SESSION INITIALIZATION")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"📊 Underlying", underlying},
		{"🏪 Exchange", exchangeName},
		{"🔧 Environment", env},
		{"🎯 Strategies", fmt.Sprintf("%v", strategies)},
		{"⏰ Exit Time", exitTime},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 15, WidthMax: 15, Align: text.AlignLeft},
		{Number: 2, WidthMin: 30, WidthMax: 40, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Println()
}

// PrintSummary renders the per-episode results table at the end of the day.
func (r *SessionReport) PrintSummary() {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("SESSION RESULTS %s", r.Day.Format("2006-01-02")))
	t.SetStyle(table.StyleRounded)

	t.AppendHeader(table.Row{"Strategy", "Outcome", "Points", "Profit", "Trend Pts"})
	for _, res := range r.Results() {
		t.AppendRow(table.Row{
			res.Strategy,
			res.Outcome,
			fmt.Sprintf("%.2f", res.ProfitPoints),
			fmt.Sprintf("%.2f", res.ProfitRupees),
			fmt.Sprintf("%.2f", res.TrendPoints),
		})
	}
	t.AppendSeparator()
	t.AppendRow(table.Row{"TOTAL", "", "", fmt.Sprintf("%.2f", r.TotalRupees()), ""})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})

	t.Render()
	fmt.Println()
}
