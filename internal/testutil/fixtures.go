package testutil

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/HerbHall/aims/pkg/models"
)

// NewDevice returns a Device with sensible defaults, suitable for test fixtures.
// Override individual fields with options.
func NewDevice(opts ...func(*models.Device)) models.Device {
	d := models.Device{
		Tag:           "TEST-" + strings.ToUpper(uuid.New().String()[:8]),
		DeviceType:    models.DeviceTypePC,
		Brand:         "Dell",
		Model:         "OptiPlex 7090",
		SerialNumber:  "SN-" + uuid.New().String()[:6],
		StorageMedium: "512GB SSD",
		Condition:     models.ConditionGood,
		DateAdded:     time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// WithTag sets the device tag.
func WithTag(tag string) func(*models.Device) {
	return func(d *models.Device) { d.Tag = tag }
}

// WithDeviceType sets the device type.
func WithDeviceType(dt models.DeviceType) func(*models.Device) {
	return func(d *models.Device) { d.DeviceType = dt }
}

// WithStorage sets the storage medium.
func WithStorage(medium string) func(*models.Device) {
	return func(d *models.Device) { d.StorageMedium = medium }
}

// WithCondition sets the physical condition.
func WithCondition(c models.Condition) func(*models.Device) {
	return func(d *models.Device) { d.Condition = c }
}

// WithStatus sets the stored status.
func WithStatus(s models.MaintenanceStatus) func(*models.Device) {
	return func(d *models.Device) { d.Status = s }
}

// WithDateAdded sets the date the device was added.
func WithDateAdded(t time.Time) func(*models.Device) {
	return func(d *models.Device) { d.DateAdded = t }
}

// WithLastMaintenance sets the last maintenance date.
func WithLastMaintenance(t time.Time) func(*models.Device) {
	return func(d *models.Device) { d.LastMaintenanceDate = &t }
}

// WithCompletedTask records task as completed at the given time.
func WithCompletedTask(task string, at time.Time) func(*models.Device) {
	return func(d *models.Device) {
		if d.MaintenanceChecklist == nil {
			d.MaintenanceChecklist = make(map[string]models.TaskRecord)
		}
		d.MaintenanceChecklist[task] = models.TaskRecord{Completed: true, CompletedDate: &at}
	}
}

// WithPendingTask records task as not completed.
func WithPendingTask(task string) func(*models.Device) {
	return func(d *models.Device) {
		if d.MaintenanceChecklist == nil {
			d.MaintenanceChecklist = make(map[string]models.TaskRecord)
		}
		d.MaintenanceChecklist[task] = models.TaskRecord{}
	}
}

// WithAssignee sets the employee the device is deployed to.
func WithAssignee(employeeID string) func(*models.Device) {
	return func(d *models.Device) { d.AssignedTo = employeeID }
}
