package maintenance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/HerbHall/aims/pkg/models"
)

// device builds a recently maintained device whose listed tasks were
// completed ten days before testNow.
func device(deviceType, storage string, done ...string) *models.Device {
	d := &models.Device{
		Tag:           "T-1",
		DeviceType:    models.DeviceType(deviceType),
		StorageMedium: storage,
		DateAdded:     daysAgo(20),
	}
	last := daysAgo(10)
	d.LastMaintenanceDate = &last
	d.MaintenanceChecklist = map[string]models.TaskRecord{}
	for _, name := range done {
		d.MaintenanceChecklist[name] = completedAt(daysAgo(10))
	}
	return d
}

func TestClassifyNilDevice(t *testing.T) {
	assert.Equal(t, models.StatusCritical, Classify(nil, testNow))
}

func TestClassifyThresholdBoundaries(t *testing.T) {
	tests := []struct {
		name string
		dev  *models.Device
		want models.MaintenanceStatus
	}{
		{
			name: "4 of 5 critical is healthy",
			dev: device("Laptop", "256GB SSD",
				TaskPhysicalInspection, TaskOSUpdate, TaskAntivirusScan, TaskBatteryHealth),
			want: models.StatusHealthy,
		},
		{
			name: "2 of 4 critical needs maintenance",
			dev:  device("Laptop", "", TaskPhysicalInspection, TaskOSUpdate),
			want: models.StatusNeedsMaintenance,
		},
		{
			name: "1 of 3 critical is critical",
			dev:  device("Monitor", "", TaskOSUpdate),
			want: models.StatusCritical,
		},
		{
			name: "non-critical tasks do not count",
			dev:  device("Monitor", "", TaskDustCleaning, TaskCableCheck, TaskDiskCleanup),
			want: models.StatusCritical,
		},
		{
			name: "all critical done",
			dev:  device("Monitor", "", TaskPhysicalInspection, TaskOSUpdate, TaskAntivirusScan),
			want: models.StatusHealthy,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.dev, testNow))
		})
	}
}

func TestClassifyPCWithHDD(t *testing.T) {
	all := []string{
		TaskPhysicalInspection, TaskOSUpdate, TaskAntivirusScan,
		TaskPowerSupply, TaskTemperature, TaskHDDHealth,
	}
	d := device("PC", "1TB HDD", all...)
	assert.Equal(t, models.StatusHealthy, Classify(d, testNow))

	// HDD health and temperature never done: 4 of 6.
	d = device("PC", "1TB HDD", all[:4]...)
	assert.Equal(t, models.StatusNeedsMaintenance, Classify(d, testNow))
}

func TestClassifyTaskExpiry(t *testing.T) {
	d := device("Monitor", "", TaskPhysicalInspection, TaskOSUpdate)

	d.MaintenanceChecklist[TaskAntivirusScan] = completedAt(daysAgo(89))
	assert.Equal(t, models.StatusHealthy, Classify(d, testNow), "89 days still counts")

	d.MaintenanceChecklist[TaskAntivirusScan] = completedAt(daysAgo(90))
	assert.Equal(t, models.StatusNeedsMaintenance, Classify(d, testNow), "90 days is expired")
}

func TestClassifyUndatedCompletionNeverExpires(t *testing.T) {
	d := device("Monitor", "", TaskPhysicalInspection, TaskOSUpdate)
	d.MaintenanceChecklist[TaskAntivirusScan] = models.TaskRecord{Completed: true}
	assert.Equal(t, models.StatusHealthy, Classify(d, testNow))
}

func TestClassifyFreshDeviceOptimism(t *testing.T) {
	d := &models.Device{DeviceType: "PC", DateAdded: daysAgo(30)}
	assert.Equal(t, models.StatusHealthy, Classify(d, testNow))
}

func TestClassifyAgedNeverMaintained(t *testing.T) {
	// Staleness is checked before the empty-checklist default.
	d := &models.Device{DeviceType: "PC", DateAdded: daysAgo(210)}
	assert.Equal(t, models.StatusCritical, Classify(d, testNow))

	d.DateAdded = daysAgo(179)
	assert.Equal(t, models.StatusHealthy, Classify(d, testNow))
}

func TestClassifyEmptyChecklistOnOldMaintainedDevice(t *testing.T) {
	last := daysAgo(30)
	d := &models.Device{DeviceType: "PC", DateAdded: daysAgo(400), LastMaintenanceDate: &last}
	assert.Equal(t, models.StatusNeedsMaintenance, Classify(d, testNow))
}

func TestClassifyMissingDateAdded(t *testing.T) {
	d := &models.Device{DeviceType: "Laptop"}
	assert.Equal(t, models.StatusHealthy, Classify(d, testNow))
}

func TestClassifyLastMaintenanceOverridesAge(t *testing.T) {
	d := device("Monitor", "", TaskPhysicalInspection, TaskOSUpdate, TaskAntivirusScan)
	d.DateAdded = daysAgo(1000)
	assert.Equal(t, models.StatusHealthy, Classify(d, testNow))
}

func TestClassifyMonotonicStaleness(t *testing.T) {
	d := device("Monitor", "", TaskPhysicalInspection, TaskOSUpdate, TaskAntivirusScan)
	// Undated completions keep the checklist out of the picture.
	for name := range d.MaintenanceChecklist {
		d.MaintenanceChecklist[name] = models.TaskRecord{Completed: true}
	}
	last := *d.LastMaintenanceDate

	assert.Equal(t, models.StatusHealthy, Classify(d, last.AddDate(0, 0, 179)))
	for days := 180; days <= 720; days += 7 {
		now := last.AddDate(0, 0, days)
		assert.Equal(t, models.StatusCritical, Classify(d, now), "at %d days", days)
	}
}

func TestClassifyIgnoresStaleTaskNames(t *testing.T) {
	// Hinge check belongs to laptops; on a PC it must not count.
	d := device("PC", "", TaskHingeCheck, TaskBatteryHealth, TaskPhysicalInspection)
	assert.Equal(t, models.StatusCritical, Classify(d, testNow))

	d = device("Monitor", "", "Retired task", TaskPhysicalInspection, TaskOSUpdate, TaskAntivirusScan)
	assert.Equal(t, models.StatusHealthy, Classify(d, testNow))
}

func TestClassifyDeterministic(t *testing.T) {
	d := device("Laptop", "SSD", TaskPhysicalInspection, TaskOSUpdate, TaskBatteryHealth)
	first := Classify(d, testNow)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, Classify(d, testNow))
	}
}

func TestClassifyDoesNotMutate(t *testing.T) {
	d := device("Monitor", "", TaskOSUpdate)
	d.MaintenanceChecklist[TaskAntivirusScan] = completedAt(daysAgo(200))
	before := d.Clone()

	Classify(d, testNow)
	assert.Equal(t, before, d)
}

func TestCompletionRateNoCriticalTasks(t *testing.T) {
	assert.Equal(t, 1.0, CompletionRate(nil, nil, nil))
}

func TestAssess(t *testing.T) {
	d := device("Monitor", "", TaskPhysicalInspection, "Retired task")
	d.MaintenanceChecklist[TaskOSUpdate] = completedAt(daysAgo(100))

	d.Status = models.StatusHealthy
	a := Assess(d, testNow)
	assert.Equal(t, models.StatusHealthy, a.Status, "stored status is reported as is")
	assert.Equal(t, Classify(d, testNow), a.ComputedStatus)
	assert.InDelta(t, 1.0/3, a.CompletionRate, 1e-9)
	assert.Equal(t, []string{"Retired task"}, a.Orphaned)
	assert.Len(t, a.Tasks, 6)

	byName := map[string]TaskState{}
	for _, ts := range a.Tasks {
		byName[ts.Name] = ts
	}
	assert.True(t, byName[TaskPhysicalInspection].Completed)
	assert.True(t, byName[TaskOSUpdate].Expired)
	assert.False(t, byName[TaskOSUpdate].Completed)
	assert.False(t, byName[TaskAntivirusScan].Completed)
}

func TestAssessNil(t *testing.T) {
	a := Assess(nil, time.Now())
	assert.Equal(t, models.StatusCritical, a.Status)
	assert.Equal(t, models.StatusCritical, a.ComputedStatus)
}
