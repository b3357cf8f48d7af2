package importer

import (
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Canonical column keys. Header cells are matched case-insensitively
// against these and their aliases.
const (
	colTag          = "tag"
	colDeviceType   = "device type"
	colBrand        = "brand"
	colModel        = "model"
	colSerialNumber = "serial number"
	colStorage      = "storage"
	colCondition    = "condition"
	colDateAdded    = "date added"
	colRemarks      = "remarks"
	colAssignedTo   = "assigned to"

	colLastMaintenance = "last maintenance"
)

// Columns is the header row written by Export, in order.
var Columns = []string{
	"Tag", "Device Type", "Brand", "Model", "Serial Number", "Storage",
	"Condition", "Date Added", "Remarks", "Assigned To",
	"Status", "Last Maintenance",
}

var columnAliases = map[string]string{
	"tag":            colTag,
	"asset tag":      colTag,
	"device tag":     colTag,
	"device type":    colDeviceType,
	"type":           colDeviceType,
	"brand":          colBrand,
	"model":          colModel,
	"serial number":  colSerialNumber,
	"serial":         colSerialNumber,
	"serial no":      colSerialNumber,
	"storage":        colStorage,
	"storage medium": colStorage,
	"condition":      colCondition,
	"date added":     colDateAdded,
	"added":          colDateAdded,
	"remarks":        colRemarks,
	"notes":          colRemarks,
	"assigned to":    colAssignedTo,
	"assignee":       colAssignedTo,

	"last maintenance":      colLastMaintenance,
	"last maintenance date": colLastMaintenance,
	"last maintained":       colLastMaintenance,
}

// normalizeHeader lower-cases h and folds underscores, dots and repeated
// spaces so "Serial_No." and "serial  no" match the same key.
func normalizeHeader(h string) string {
	h = strings.ToLower(h)
	h = strings.NewReplacer("_", " ", ".", " ", "-", " ").Replace(h)
	return strings.Join(strings.Fields(h), " ")
}

// columnIndex maps canonical keys to their position in the header row.
// Unknown headers are ignored; the first occurrence of a key wins.
func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		key, ok := columnAliases[normalizeHeader(h)]
		if !ok {
			continue
		}
		if _, seen := idx[key]; !seen {
			idx[key] = i
		}
	}
	return idx
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-06",
	"1-2-06",
	"01/02/06",
	"Jan 2, 2006",
	"2-Jan-2006",
	"02-Jan-06",
}

// parseDate accepts the common spreadsheet date renderings and Excel
// serial day numbers.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
