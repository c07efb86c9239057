package config

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// LocationsConfig fans a City/Province table out into one job per site and
// row.
type LocationsConfig struct {
	File     string   `mapstructure:"file"`
	Sites    []string `mapstructure:"sites"`
	MaxPages int      `mapstructure:"max_pages"`
	Output   string   `mapstructure:"output"`

	SkipDetails bool `mapstructure:"skip_details"`
}

type Location struct {
	City  string
	State string
}

var (
	cityColumns  = []string{"city name", "city"}
	stateColumns = []string{"province", "state", "province/state"}
)

// LoadLocations reads a CSV or XLSX table with a header naming a city
// column ("City Name" or "City") and a region column ("Province" or
// "State"). Rows missing either value are skipped. Only the first sheet of
// a workbook is read.
func LoadLocations(path string) ([]Location, error) {
	path = strings.Trim(path, `"'`)

	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err = readCSVRows(path)
	case ".xlsx", ".xlsm":
		rows, err = readXLSXRows(path)
	default:
		return nil, fmt.Errorf("locations file %s: unsupported format, use .csv or .xlsx", path)
	}
	if err != nil {
		return nil, fmt.Errorf("locations file %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("locations file %s: empty", path)
	}

	cityIdx, stateIdx := columnIndex(rows[0], cityColumns), columnIndex(rows[0], stateColumns)
	if cityIdx < 0 || stateIdx < 0 {
		return nil, fmt.Errorf("locations file %s: header needs a City Name and a Province column, got %v", path, rows[0])
	}

	var locations []Location
	for _, row := range rows[1:] {
		city, state := cell(row, cityIdx), cell(row, stateIdx)
		if city == "" || state == "" {
			continue
		}
		locations = append(locations, Location{City: city, State: state})
	}
	return locations, nil
}

func columnIndex(header []string, names []string) int {
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, n := range names {
			if h == n {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func readCSVRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}

func readXLSXRows(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	return f.GetRows(sheets[0])
}
