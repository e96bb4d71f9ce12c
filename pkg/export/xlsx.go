package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/lenardflx/ai-data-migration/internal/model"
)

// Sheet names of the review workbook.
const (
	SheetProducts = "products"
	SheetReview   = "review"
)

var xlsxHeader = []interface{}{
	"id", "name", "description", "category", "location", "is_active",
	"needs_review", "lost_data", "modified_data", "other_data_modifications", "comment",
}

// WriteXLSX writes records to w as a workbook. Every record lands on the products
// sheet; records flagged for review are repeated on the review sheet.
func WriteXLSX(w io.Writer, records []model.OutputRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetProducts); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetReview); err != nil {
		return fmt.Errorf("create review sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	rows := map[string]int{SheetProducts: 1, SheetReview: 1}
	put := func(sheet string, values []interface{}) error {
		cell, err := excelize.CoordinatesToCellName(1, rows[sheet])
		if err != nil {
			return err
		}
		rows[sheet]++
		return f.SetSheetRow(sheet, cell, &values)
	}

	for _, sheet := range []string{SheetProducts, SheetReview} {
		if err := put(sheet, xlsxHeader); err != nil {
			return err
		}
		end, _ := excelize.CoordinatesToCellName(len(xlsxHeader), 1)
		if err := f.SetCellStyle(sheet, "A1", end, bold); err != nil {
			return err
		}
	}

	for _, rec := range records {
		row := xlsxRow(rec)
		if err := put(SheetProducts, row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
		if rec.Log.NeedsReview {
			if err := put(SheetReview, row); err != nil {
				return fmt.Errorf("write review row: %w", err)
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func xlsxRow(rec model.OutputRecord) []interface{} {
	p, l := rec.Product, rec.Log
	loc := make([]string, len(p.Location))
	for i, v := range p.Location {
		loc[i] = strconv.Itoa(v)
	}
	return []interface{}{
		p.ID, deref(p.Name), deref(p.Description), deref(p.Category),
		strings.Join(loc, ","), p.IsActive, l.NeedsReview,
		strings.Join(l.LostData, "; "), strings.Join(l.ModifiedData, "; "),
		strings.Join(l.OtherDataModifications, "; "), l.Comment,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
