package backfill

import (
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/vmpay_warehouse/vmpaysync"
	"github.com/xuri/excelize/v2"
)

// WriteCanonicalCSV writes the consolidated dataset to one tabular file.
func WriteCanonicalCSV(records []vmpaysync.Record, path string) error {
	data, err := EncodeCSV(records)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// WriteCanonicalXLSX writes the consolidated dataset as a spreadsheet for
// analysts who do not read from the warehouse directly.
func WriteCanonicalXLSX(records []vmpaysync.Record, path string) error {
	columns := columnOrder(records)

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Sheet1"
	for i, col := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, col); err != nil {
			return err
		}
	}

	for rowIdx, rec := range records {
		for colIdx, col := range columns {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, csvValue(rec[col])); err != nil {
				return err
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("write xlsx %s: %w", path, err)
	}
	return nil
}
