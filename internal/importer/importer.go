// Package importer loads devices from spreadsheets and writes them back
// out. Every imported row is classified and persisted on its own so one
// bad row never fails the batch.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/HerbHall/aims/pkg/models"
)

// Row outcomes reported per spreadsheet row.
const (
	RowCreated = "created"
	RowFailed  = "failed"
)

// ErrNoSheet is returned for a workbook without any worksheet or without a
// header row.
var ErrNoSheet = errors.New("workbook has no header row")

// Sink persists one imported device. maintenance.Projector satisfies it.
type Sink interface {
	Create(ctx context.Context, coll models.Collection, d *models.Device) error
}

// RowObserver counts processed rows. internal/metrics implements it.
type RowObserver interface {
	ObserveImportRow(result string)
}

// Row is a parsed spreadsheet row.
type Row struct {
	Number   int
	Device   models.Device
	Warnings []string
	Err      error
}

// RowResult is the outcome of one row.
type RowResult struct {
	Row      int      `json:"row"`
	Tag      string   `json:"tag,omitempty"`
	Result   string   `json:"result"`
	Status   string   `json:"status,omitempty"`
	Error    string   `json:"error,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Result summarizes an import.
type Result struct {
	Collection models.Collection `json:"collection"`
	Total      int               `json:"total"`
	Created    int               `json:"created"`
	Failed     int               `json:"failed"`
	Rows       []RowResult       `json:"rows"`
}

// Importer reads workbooks and creates devices through a Sink.
type Importer struct {
	sink     Sink
	workers  int
	logger   *zap.Logger
	observer RowObserver
	now      func() time.Time
}

// Option configures an Importer.
type Option func(*Importer)

// WithWorkers bounds the number of rows persisted concurrently.
func WithWorkers(n int) Option {
	return func(im *Importer) {
		if n > 0 {
			im.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(im *Importer) { im.logger = l } }

// WithObserver sets the row counter.
func WithObserver(o RowObserver) Option { return func(im *Importer) { im.observer = o } }

// WithNow overrides the time used for date fallbacks.
func WithNow(now func() time.Time) Option { return func(im *Importer) { im.now = now } }

// New creates an Importer writing to sink.
func New(sink Sink, opts ...Option) *Importer {
	im := &Importer{
		sink:    sink,
		workers: 4,
		logger:  zap.NewNop(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(im)
	}
	return im
}

// Parse reads the first worksheet of the workbook in r. The first
// non-empty row is the header. Rows that cannot become a device carry Err;
// unparseable dates fall back to now and add a warning.
func (im *Importer) Parse(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheet
	}
	raw, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	start := 0
	for start < len(raw) && blank(raw[start]) {
		start++
	}
	if start == len(raw) {
		return nil, ErrNoSheet
	}
	idx := columnIndex(raw[start])
	if _, ok := idx[colTag]; !ok {
		return nil, fmt.Errorf("%w: no tag column", ErrNoSheet)
	}

	now := im.now()
	var rows []Row
	for i := start + 1; i < len(raw); i++ {
		if blank(raw[i]) {
			continue
		}
		rows = append(rows, im.parseRow(i+1, raw[i], idx, now))
	}
	return rows, nil
}

func (im *Importer) parseRow(number int, cells []string, idx map[string]int, now time.Time) Row {
	cell := func(key string) string {
		i, ok := idx[key]
		if !ok || i >= len(cells) {
			return ""
		}
		return strings.TrimSpace(cells[i])
	}

	row := Row{Number: number}
	d := &row.Device
	d.Tag = cell(colTag)
	d.DeviceType = models.DeviceType(cell(colDeviceType))
	d.Brand = cell(colBrand)
	d.Model = cell(colModel)
	d.SerialNumber = cell(colSerialNumber)
	d.StorageMedium = cell(colStorage)
	d.Remarks = cell(colRemarks)
	d.AssignedTo = cell(colAssignedTo)

	if d.Tag == "" {
		row.Err = errors.New("missing tag")
		return row
	}
	if d.DeviceType == "" {
		row.Err = errors.New("missing device type")
		return row
	}

	if raw := cell(colCondition); raw != "" {
		if c, ok := models.ParseCondition(raw); ok {
			d.Condition = c
		} else {
			row.Warnings = append(row.Warnings, fmt.Sprintf("unknown condition %q ignored", raw))
		}
	}

	raw := cell(colDateAdded)
	if t, ok := parseDate(raw); ok {
		d.DateAdded = t
	} else {
		d.DateAdded = now
		if raw != "" {
			row.Warnings = append(row.Warnings, fmt.Sprintf("invalid date added %q, using import time", raw))
			im.logger.Info("import date fallback",
				zap.Int("row", number),
				zap.String("tag", d.Tag),
				zap.String("value", raw),
			)
		}
	}

	// A corrupt maintenance date stays unset; the device is then judged on
	// its age alone.
	if raw := cell(colLastMaintenance); raw != "" {
		if t, ok := parseDate(raw); ok {
			d.LastMaintenanceDate = &t
		} else {
			row.Warnings = append(row.Warnings, fmt.Sprintf("invalid last maintenance %q ignored", raw))
		}
	}
	return row
}

// Import parses the workbook in r and creates every valid row in coll.
// Only an unreadable workbook or a cancelled context is an error; row
// failures are reported in the Result.
func (im *Importer) Import(ctx context.Context, coll models.Collection, r io.Reader) (*Result, error) {
	rows, err := im.Parse(r)
	if err != nil {
		return nil, err
	}

	results := make([]RowResult, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.workers)
	for i := range rows {
		row := &rows[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = im.store(gctx, coll, row)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Collection: coll, Total: len(rows), Rows: results}
	for _, rr := range results {
		if rr.Result == RowCreated {
			res.Created++
		} else {
			res.Failed++
		}
	}
	im.logger.Info("import finished",
		zap.String("collection", string(coll)),
		zap.Int("total", res.Total),
		zap.Int("created", res.Created),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (im *Importer) store(ctx context.Context, coll models.Collection, row *Row) RowResult {
	rr := RowResult{Row: row.Number, Tag: row.Device.Tag, Warnings: row.Warnings}
	err := row.Err
	if err == nil {
		if coll == models.CollectionInventory {
			row.Device.AssignedTo = ""
		}
		err = im.sink.Create(ctx, coll, &row.Device)
	}
	if err != nil {
		rr.Result = RowFailed
		rr.Error = err.Error()
	} else {
		rr.Result = RowCreated
		rr.Status = string(row.Device.Status)
	}
	if im.observer != nil {
		im.observer.ObserveImportRow(rr.Result)
	}
	return rr
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
