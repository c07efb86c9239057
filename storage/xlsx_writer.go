package storage

import (
	"fmt"
	"io"
	"slices"
	"sort"

	"listing-scraper/models"

	"github.com/xuri/excelize/v2"
)

const emptySheet = "listings"

var columnWidths = map[string]float64{
	"A": 14, "B": 24, "C": 40, "D": 12, "E": 40, "F": 60, "G": 22, "H": 50,
}

// XLSXStore writes one sheet per source site, each with a frozen header.
type XLSXStore struct{}

func (XLSXStore) Load(path string) ([]models.ListingRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []models.ListingRecord
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		for i, row := range rows {
			if i == 0 && isHeader(row) {
				continue
			}
			if len(row) == 0 {
				continue
			}
			r, err := fromRow(row)
			if err != nil {
				return nil, fmt.Errorf("%s sheet %s row %d: %w", path, sheet, i+1, err)
			}
			records = append(records, r)
		}
	}
	return records, nil
}

func (XLSXStore) Save(path string, records []models.ListingRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	bySite := make(map[string][]models.ListingRecord)
	for _, r := range records {
		bySite[r.SourceSite] = append(bySite[r.SourceSite], r)
	}
	sheets := make([]string, 0, len(bySite))
	for site := range bySite {
		sheets = append(sheets, site)
	}
	sort.Strings(sheets)
	if len(sheets) == 0 {
		sheets = []string{emptySheet}
	}

	defaultSheet := f.GetSheetName(0)
	for i, sheet := range sheets {
		idx, err := f.NewSheet(sheet)
		if err != nil {
			return fmt.Errorf("create sheet %s: %w", sheet, err)
		}
		if i == 0 {
			f.SetActiveSheet(idx)
		}
		if err := writeSheet(f, sheet, bySite[sheet]); err != nil {
			return err
		}
	}
	if !slices.Contains(sheets, defaultSheet) {
		if err := f.DeleteSheet(defaultSheet); err != nil {
			return fmt.Errorf("drop default sheet: %w", err)
		}
	}

	return writeAtomic(path, func(w io.Writer) error {
		if _, err := f.WriteTo(w); err != nil {
			return fmt.Errorf("xlsx write error: %w", err)
		}
		return nil
	})
}

func writeSheet(f *excelize.File, sheet string, records []models.ListingRecord) error {
	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := toRow(r)
		row := make([]interface{}, len(values))
		for j, v := range values {
			row[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}
	for col, width := range columnWidths {
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return fmt.Errorf("column width: %w", err)
		}
	}
	return nil
}
