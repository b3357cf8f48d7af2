package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HerbHall/aims/internal/services"
	"github.com/HerbHall/aims/pkg/models"
	"go.uber.org/zap"
)

var (
	// ErrPersist wraps any store failure while writing a projected status.
	// When it is returned nothing from the operation was committed.
	ErrPersist = errors.New("persist device status")

	// ErrUnknownTask is returned when toggling a task the device's type and
	// storage medium do not require.
	ErrUnknownTask = errors.New("task not in device checklist")

	// ErrSameCollection is returned by Move when source and target match.
	ErrSameCollection = errors.New("source and target collection are the same")
)

// Recorder observes projection outcomes. internal/metrics implements it.
type Recorder interface {
	ObserveProjection(coll models.Collection, status models.MaintenanceStatus)
	ObservePersistFailure(coll models.Collection)
}

type nopRecorder struct{}

func (nopRecorder) ObserveProjection(models.Collection, models.MaintenanceStatus) {}
func (nopRecorder) ObservePersistFailure(models.Collection)                       {}

// Projector computes device status and writes it back together with the
// fields it was derived from. Every write path that touches a device's
// checklist, maintenance date or age goes through a Projector.
type Projector struct {
	repo     services.DeviceRepository
	clock    Clock
	logger   *zap.Logger
	recorder Recorder
}

// Option configures a Projector.
type Option func(*Projector)

// WithClock overrides the time source.
func WithClock(c Clock) Option { return func(p *Projector) { p.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(p *Projector) { p.logger = l } }

// WithRecorder sets the projection observer.
func WithRecorder(r Recorder) Option { return func(p *Projector) { p.recorder = r } }

// NewProjector returns a Projector writing through repo.
func NewProjector(repo services.DeviceRepository, opts ...Option) *Projector {
	p := &Projector{
		repo:     repo,
		clock:    SystemClock{},
		logger:   zap.NewNop(),
		recorder: nopRecorder{},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Now returns the projector's current time.
func (p *Projector) Now() time.Time { return p.clock.Now() }

// Project sets d.Status to its classification at now and returns it. It
// does not persist anything.
func (p *Projector) Project(d *models.Device, now time.Time) models.MaintenanceStatus {
	status := Classify(d, now)
	if d != nil {
		d.Status = status
	}
	return status
}

// Create projects d and inserts it into coll. On failure every field the
// projection touched (status, date added, updated at) is restored.
func (p *Projector) Create(ctx context.Context, coll models.Collection, d *models.Device) error {
	now := p.clock.Now()
	prev := snapshot(d)
	if d.DateAdded.IsZero() {
		d.DateAdded = now
	}
	d.UpdatedAt = now
	status := p.Project(d, now)

	err := p.repo.Atomic(ctx, func(repo services.DeviceRepository) error {
		return repo.Create(ctx, coll, d)
	})
	if err != nil {
		prev.restore(d)
		return p.persistErr(coll, d.Tag, err)
	}
	p.recorder.ObserveProjection(coll, status)
	return nil
}

// Persist projects d and replaces the stored document. On failure d is
// left as it was before the call.
func (p *Projector) Persist(ctx context.Context, coll models.Collection, d *models.Device) error {
	now := p.clock.Now()
	prev := snapshot(d)
	d.UpdatedAt = now
	status := p.Project(d, now)

	err := p.repo.Atomic(ctx, func(repo services.DeviceRepository) error {
		return repo.Update(ctx, coll, d)
	})
	if err != nil {
		prev.restore(d)
		return p.persistErr(coll, d.Tag, err)
	}
	p.recorder.ObserveProjection(coll, status)
	return nil
}

// written holds the fields a write stamps on the caller's device.
type written struct {
	status    models.MaintenanceStatus
	dateAdded time.Time
	updatedAt time.Time
}

func snapshot(d *models.Device) written {
	return written{status: d.Status, dateAdded: d.DateAdded, updatedAt: d.UpdatedAt}
}

func (w written) restore(d *models.Device) {
	d.Status, d.DateAdded, d.UpdatedAt = w.status, w.dateAdded, w.updatedAt
}

// Edit loads tag from coll, applies fn, reclassifies and writes the result
// in one transaction. If fn returns an error nothing is written and that
// error is returned unwrapped.
func (p *Projector) Edit(ctx context.Context, coll models.Collection, tag string, fn func(d *models.Device, now time.Time) error) (*models.Device, error) {
	now := p.clock.Now()
	var out *models.Device
	var fnErr error

	err := p.repo.Atomic(ctx, func(repo services.DeviceRepository) error {
		d, err := repo.Get(ctx, coll, tag)
		if err != nil {
			return err
		}
		if fnErr = fn(d, now); fnErr != nil {
			return fnErr
		}
		d.UpdatedAt = now
		p.Project(d, now)
		if err := repo.Update(ctx, coll, d); err != nil {
			return err
		}
		out = d
		return nil
	})
	switch {
	case fnErr != nil:
		return nil, fnErr
	case errors.Is(err, services.ErrNotFound):
		return nil, err
	case err != nil:
		return nil, p.persistErr(coll, tag, err)
	}
	p.recorder.ObserveProjection(coll, out.Status)
	return out, nil
}

// ToggleTask marks task completed or not on the device and reclassifies it.
// Completing a task stamps both its completion date and the device's last
// maintenance date with the current time; clearing it removes the date.
func (p *Projector) ToggleTask(ctx context.Context, coll models.Collection, tag, task string, completed bool) (*models.Device, error) {
	return p.Edit(ctx, coll, tag, func(d *models.Device, now time.Time) error {
		if !requires(d, task) {
			return fmt.Errorf("%w: %q", ErrUnknownTask, task)
		}
		if d.MaintenanceChecklist == nil {
			d.MaintenanceChecklist = make(map[string]models.TaskRecord)
		}
		rec := models.TaskRecord{Completed: completed}
		if completed {
			stamp := now
			rec.CompletedDate = &stamp
			last := now
			d.LastMaintenanceDate = &last
		}
		d.MaintenanceChecklist[task] = rec
		return nil
	})
}

// Assignment carries the deployment fields applied by Move.
type Assignment struct {
	AssignedTo string `json:"assigned_to"`
	ClientID   string `json:"client_id"`
}

// Move transfers tag from one collection to the other, reclassifying it on
// the way. Moving into inventory clears any assignment; moving into
// deployed applies a. The delete and insert commit together.
func (p *Projector) Move(ctx context.Context, tag string, from, to models.Collection, a Assignment) (*models.Device, error) {
	if from == to {
		return nil, ErrSameCollection
	}
	now := p.clock.Now()
	var out *models.Device

	err := p.repo.Atomic(ctx, func(repo services.DeviceRepository) error {
		d, err := repo.Get(ctx, from, tag)
		if err != nil {
			return err
		}
		if err := repo.Delete(ctx, from, tag); err != nil {
			return err
		}
		if to == models.CollectionInventory {
			d.AssignedTo, d.ClientID = "", ""
		} else {
			d.AssignedTo, d.ClientID = a.AssignedTo, a.ClientID
		}
		d.UpdatedAt = now
		p.Project(d, now)
		if err := repo.Create(ctx, to, d); err != nil {
			return err
		}
		out = d
		return nil
	})
	if errors.Is(err, services.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, p.persistErr(to, tag, err)
	}
	p.recorder.ObserveProjection(to, out.Status)
	return out, nil
}

// ResyncResult summarizes a Resync run.
type ResyncResult struct {
	Collection models.Collection `json:"collection"`
	Checked    int               `json:"checked"`
	Changed    int               `json:"changed"`
	Migrated   int               `json:"migrated"`
	Failed     int               `json:"failed"`
}

// Resync recomputes the status of every device in coll so time-based decay
// is reflected in the persisted field. Each device is rewritten in its own
// transaction and only when its status or condition changed. Devices whose
// status field still holds a legacy condition value are migrated.
func (p *Projector) Resync(ctx context.Context, coll models.Collection) (ResyncResult, error) {
	res := ResyncResult{Collection: coll}
	devices, err := p.repo.All(ctx, coll)
	if err != nil {
		return res, fmt.Errorf("resync %s: %w", coll, err)
	}
	now := p.clock.Now()

	for i := range devices {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Checked++
		tag := devices[i].Tag

		var changed, migrated bool
		err := p.repo.Atomic(ctx, func(repo services.DeviceRepository) error {
			d, err := repo.Get(ctx, coll, tag)
			if err != nil {
				return err
			}
			migrated = MigrateLegacyStatus(d)
			prev := d.Status
			changed = p.Project(d, now) != prev
			if !changed && !migrated {
				return nil
			}
			d.UpdatedAt = now
			return repo.Update(ctx, coll, d)
		})
		if errors.Is(err, services.ErrNotFound) {
			// Moved or deleted since the scan began.
			continue
		}
		if err != nil {
			res.Failed++
			p.recorder.ObservePersistFailure(coll)
			p.logger.Warn("resync device failed",
				zap.String("collection", string(coll)),
				zap.String("tag", tag),
				zap.Error(err),
			)
			continue
		}
		if changed {
			res.Changed++
		}
		if migrated {
			res.Migrated++
		}
	}

	p.logger.Info("resync complete",
		zap.String("collection", string(coll)),
		zap.Int("checked", res.Checked),
		zap.Int("changed", res.Changed),
		zap.Int("migrated", res.Migrated),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

// MigrateLegacyStatus moves a condition value found in d.Status into
// d.Condition. Older documents stored the physical condition in the status
// field. It reports whether d was changed; d.Status is left for the caller
// to recompute.
func MigrateLegacyStatus(d *models.Device) bool {
	if d.Status == "" || d.Status.Valid() {
		return false
	}
	if c, ok := models.ParseCondition(string(d.Status)); ok && d.Condition == "" {
		d.Condition = c
	}
	d.Status = ""
	return true
}

func (p *Projector) persistErr(coll models.Collection, tag string, err error) error {
	p.recorder.ObservePersistFailure(coll)
	p.logger.Warn("device write failed",
		zap.String("collection", string(coll)),
		zap.String("tag", tag),
		zap.Error(err),
	)
	return fmt.Errorf("%w: %s/%s: %w", ErrPersist, coll, tag, err)
}

func requires(d *models.Device, task string) bool {
	for _, t := range ResolveTasks(string(d.DeviceType), d.StorageMedium) {
		if t.Name == task {
			return true
		}
	}
	return false
}
