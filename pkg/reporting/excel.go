package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/quantpulse/strangle-bot/internal/state"
)

type excelStyles struct {
	header   int
	currency int
}

func newExcelStyles(fx *excelize.File) (excelStyles, error) {
	var styles excelStyles
	var err error

	styles.header, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF", Family: "Calibri"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"2F4F4F"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return styles, err
	}

	styles.currency, err = fx.NewStyle(&excelize.Style{
		NumFmt:    4, // #,##0.00
		Alignment: &excelize.Alignment{Horizontal: "right"},
	})
	return styles, err
}

// WriteXLSX writes the session workbook: an Episodes sheet with one row
// per strategy result and a Positions sheet with the recorded leg
// snapshots.
func (r *SessionReport) WriteXLSX(path string, snapshots []state.PositionSnapshot) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const episodesSheet = "Episodes"
	const positionsSheet = "Positions"
	fx.SetSheetName(fx.GetSheetName(0), episodesSheet)
	fx.NewSheet(positionsSheet)

	styles, err := newExcelStyles(fx)
	if err != nil {
		return err
	}

	if err := r.writeEpisodesSheet(fx, episodesSheet, styles); err != nil {
		return err
	}
	if err := writePositionsSheet(fx, positionsSheet, snapshots, styles); err != nil {
		return err
	}
	return fx.SaveAs(path)
}

func (r *SessionReport) writeEpisodesSheet(fx *excelize.File, sheet string, styles excelStyles) error {
	headers := []string{"Date", "Underlying", "Strategy", "Outcome", "Points", "Profit", "Trend Points", "Exit Time"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, styles.header)
	}

	for row, res := range r.Results() {
		values := []interface{}{
			r.Day.Format("2006-01-02"),
			res.Underlying,
			res.Strategy,
			res.Outcome,
			res.ProfitPoints,
			res.ProfitRupees,
			res.TrendPoints,
			res.ExitTime.Format("15:04:05"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			fx.SetCellValue(sheet, cell, v)
		}
		for _, col := range []int{5, 6, 7} {
			cell, _ := excelize.CoordinatesToCellName(col, row+2)
			fx.SetCellStyle(sheet, cell, cell, styles.currency)
		}
	}
	fx.SetColWidth(sheet, "A", "H", 16)
	return nil
}

func writePositionsSheet(fx *excelize.File, sheet string, snapshots []state.PositionSnapshot, styles excelStyles) error {
	headers := []string{"Timestamp", "Strategy", "Spot", "Instrument", "Role", "Qty", "Avg Price", "Last Price", "Stop Price"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, styles.header)
	}

	row := 2
	for _, snap := range snapshots {
		for _, leg := range snap.Legs {
			values := []interface{}{
				snap.Timestamp.Format("15:04:05"),
				snap.StrategyTag,
				snap.UnderlyingPrice,
				leg.Instrument,
				leg.Role,
				leg.ActiveQty,
				leg.AvgPrice,
				leg.LastPrice,
				leg.StopPrice,
			}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row)
				fx.SetCellValue(sheet, cell, v)
			}
			row++
		}
	}
	fx.SetColWidth(sheet, "A", "I", 15)
	return nil
}

// DefaultXLSXPath places the workbook under results/ named by underlying
// and day.
func (r *SessionReport) DefaultXLSXPath() string {
	return filepath.Join("results",
		fmt.Sprintf("%s_%s.xlsx", r.Underlying, r.Day.Format("2006-01-02")))
}
