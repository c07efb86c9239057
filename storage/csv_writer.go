package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"listing-scraper/models"
)

// CSVStore keeps records in a single CSV file with a Columns header.
type CSVStore struct{}

func (CSVStore) Load(path string) ([]models.ListingRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	var records []models.ListingRecord
	for line := 1; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if line == 1 && isHeader(row) {
			continue
		}
		r, err := fromRow(row)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		records = append(records, r)
	}
	return records, nil
}

// Save replaces path with records. The header is written even when there
// are no records.
func (CSVStore) Save(path string, records []models.ListingRecord) error {
	return writeAtomic(path, func(w io.Writer) error {
		// csv.NewWriter handles quoting, commas inside fields, line endings
		writer := csv.NewWriter(w)
		if err := writer.Write(Columns); err != nil {
			return fmt.Errorf("csv write error: %w", err)
		}
		for _, r := range records {
			if err := writer.Write(toRow(r)); err != nil {
				return fmt.Errorf("csv write error: %w", err)
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return fmt.Errorf("csv write error: %w", err)
		}
		return nil
	})
}
