package importer

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/HerbHall/aims/pkg/models"
)

const exportDateLayout = "2006-01-02"

// Export writes devices as a single-sheet workbook named after coll. The
// header row matches what Parse accepts, so an export can be re-imported.
func Export(w io.Writer, coll models.Collection, devices []models.Device) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := string(coll)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	if err := f.SetSheetRow(sheet, "A1", &Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := range devices {
		d := &devices[i]
		lastMaint := ""
		if d.LastMaintenanceDate != nil {
			lastMaint = d.LastMaintenanceDate.Format(exportDateLayout)
		}
		dateAdded := ""
		if !d.DateAdded.IsZero() {
			dateAdded = d.DateAdded.Format(exportDateLayout)
		}
		row := []any{
			d.Tag, string(d.DeviceType), d.Brand, d.Model, d.SerialNumber, d.StorageMedium,
			string(d.Condition), dateAdded, d.Remarks, d.AssignedTo,
			string(d.Status), lastMaint,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
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

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
