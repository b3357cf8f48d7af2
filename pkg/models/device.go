package models

import (
	"strings"
	"time"
)

// DeviceType categorizes an asset. Values are free text entered by staff
// ("PC", "Laptop", "RAM", ...); comparisons are case-insensitive.
type DeviceType string

const (
	DeviceTypePC       DeviceType = "PC"
	DeviceTypeLaptop   DeviceType = "Laptop"
	DeviceTypeMonitor  DeviceType = "Monitor"
	DeviceTypePrinter  DeviceType = "Printer"
	DeviceTypeRAM      DeviceType = "RAM"
	DeviceTypeKeyboard DeviceType = "Keyboard"
	DeviceTypeMouse    DeviceType = "Mouse"
	DeviceTypeUPS      DeviceType = "UPS"
	DeviceTypeRouter   DeviceType = "Router"
)

// Is reports whether dt names the same type as other, ignoring case and
// surrounding whitespace.
func (dt DeviceType) Is(other DeviceType) bool {
	return strings.EqualFold(strings.TrimSpace(string(dt)), string(other))
}

// MaintenanceStatus is the derived health classification of a device. It
// is a cache of the maintenance engine's output and never edited directly.
type MaintenanceStatus string

const (
	StatusHealthy          MaintenanceStatus = "Healthy"
	StatusNeedsMaintenance MaintenanceStatus = "Needs Maintenance"
	StatusCritical         MaintenanceStatus = "Critical"
)

// Statuses lists every maintenance status in dashboard order.
var Statuses = []MaintenanceStatus{StatusHealthy, StatusNeedsMaintenance, StatusCritical}

// Valid reports whether s is one of the three known statuses.
func (s MaintenanceStatus) Valid() bool {
	switch s {
	case StatusHealthy, StatusNeedsMaintenance, StatusCritical:
		return true
	}
	return false
}

// Condition is the physical condition recorded by staff. It is unrelated
// to MaintenanceStatus.
type Condition string

const (
	ConditionBrandNew    Condition = "BRANDNEW"
	ConditionGood        Condition = "GOOD"
	ConditionNeedsRepair Condition = "NEEDS REPAIR"
	ConditionDefective   Condition = "DEFECTIVE"
	ConditionRetired     Condition = "RETIRED"
)

var conditions = []Condition{
	ConditionBrandNew, ConditionGood, ConditionNeedsRepair, ConditionDefective, ConditionRetired,
}

// ParseCondition matches s case-insensitively against the known conditions.
// "BRAND NEW" and "BRAND-NEW" are accepted as BRANDNEW.
func ParseCondition(s string) (Condition, bool) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	if norm == "BRAND NEW" || norm == "BRAND-NEW" {
		return ConditionBrandNew, true
	}
	for _, c := range conditions {
		if string(c) == norm {
			return c, true
		}
	}
	return "", false
}

// Collection identifies one of the two physical device collections. A
// device lives in exactly one of them at a time.
type Collection string

const (
	CollectionInventory Collection = "inventory" // In stock.
	CollectionDeployed  Collection = "deployed"  // Issued to an employee or client.
)

// Collections lists both device collections.
var Collections = []Collection{CollectionInventory, CollectionDeployed}

// ParseCollection validates a collection name from a URL or request body.
func ParseCollection(s string) (Collection, bool) {
	switch Collection(strings.ToLower(strings.TrimSpace(s))) {
	case CollectionInventory:
		return CollectionInventory, true
	case CollectionDeployed:
		return CollectionDeployed, true
	}
	return "", false
}

// TaskRecord is the persisted completion state of one checklist task.
type TaskRecord struct {
	Completed     bool       `json:"completed"`
	CompletedDate *time.Time `json:"completed_date"`
}

// Device is an IT asset tracked by AIMS.
type Device struct {
	Tag                  string                `json:"tag"`
	DeviceType           DeviceType            `json:"device_type"`
	Brand                string                `json:"brand,omitempty"`
	Model                string                `json:"model,omitempty"`
	SerialNumber         string                `json:"serial_number,omitempty"`
	StorageMedium        string                `json:"storage_medium,omitempty"`
	Condition            Condition             `json:"condition,omitempty"`
	Status               MaintenanceStatus     `json:"status"`
	DateAdded            time.Time             `json:"date_added"`
	LastMaintenanceDate  *time.Time            `json:"last_maintenance_date"`
	MaintenanceChecklist map[string]TaskRecord `json:"maintenance_checklist,omitempty"`
	AssignedTo           string                `json:"assigned_to,omitempty"`
	ClientID             string                `json:"client_id,omitempty"`
	Remarks              string                `json:"remarks,omitempty"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

// Clone returns a deep copy of d.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	cp := *d
	if d.LastMaintenanceDate != nil {
		t := *d.LastMaintenanceDate
		cp.LastMaintenanceDate = &t
	}
	if d.MaintenanceChecklist != nil {
		cp.MaintenanceChecklist = make(map[string]TaskRecord, len(d.MaintenanceChecklist))
		for name, rec := range d.MaintenanceChecklist {
			if rec.CompletedDate != nil {
				t := *rec.CompletedDate
				rec.CompletedDate = &t
			}
			cp.MaintenanceChecklist[name] = rec
		}
	}
	return &cp
}
