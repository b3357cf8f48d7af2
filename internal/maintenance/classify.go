package maintenance

import (
	"sort"
	"time"

	"github.com/HerbHall/aims/pkg/models"
)

// Completion-rate thresholds over critical tasks.
const (
	HealthyRate          = 0.8
	NeedsMaintenanceRate = 0.5
)

// Classify derives the maintenance status of d as of now. It never fails:
// a nil device is Critical, a missing DateAdded counts as age zero, and
// checklist entries for tasks the device does not require are ignored.
//
// Recency is checked before the checklist. A device whose last maintenance
// (or, if never maintained, whose age) reaches StaleAfterMonths is Critical
// even when its checklist is empty.
func Classify(d *models.Device, now time.Time) models.MaintenanceStatus {
	if d == nil {
		return models.StatusCritical
	}

	critical := CriticalTasks(ResolveTasks(string(d.DeviceType), d.StorageMedium))
	age := deviceAge(d, now)

	if d.LastMaintenanceDate != nil {
		if MonthsBetween(*d.LastMaintenanceDate, now) >= StaleAfterMonths {
			return models.StatusCritical
		}
	} else if age >= StaleAfterMonths {
		return models.StatusCritical
	}

	if len(d.MaintenanceChecklist) == 0 {
		// Only reachable for maintained devices; kept so an empty checklist
		// never falls through to the rate math.
		if age >= StaleAfterMonths {
			return models.StatusNeedsMaintenance
		}
		return models.StatusHealthy
	}

	rate := CompletionRate(critical, d.MaintenanceChecklist, Normalize(now, d.MaintenanceChecklist))
	switch {
	case rate >= HealthyRate:
		return models.StatusHealthy
	case rate >= NeedsMaintenanceRate:
		return models.StatusNeedsMaintenance
	default:
		return models.StatusCritical
	}
}

// CompletionRate is the fraction of critical tasks completed and not
// expired. It is 1 when there are no critical tasks.
func CompletionRate(critical []Task, checklist map[string]models.TaskRecord, expired map[string]struct{}) float64 {
	if len(critical) == 0 {
		return 1
	}
	done := 0
	for _, t := range critical {
		rec, ok := checklist[t.Name]
		if !ok || !rec.Completed {
			continue
		}
		if _, stale := expired[t.Name]; stale {
			continue
		}
		done++
	}
	return float64(done) / float64(len(critical))
}

func deviceAge(d *models.Device, now time.Time) float64 {
	if d.DateAdded.IsZero() {
		return 0
	}
	return MonthsBetween(d.DateAdded, now)
}

// TaskState is a required task with its effective completion as of a
// given time.
type TaskState struct {
	Task
	Completed     bool       `json:"completed"`
	Expired       bool       `json:"expired"`
	CompletedDate *time.Time `json:"completed_date,omitempty"`
}

// Assessment explains a classification: the resolved checklist and the
// critical completion rate. Status is the persisted field; ComputedStatus
// is what Classify reports at the assessment time and only reaches Status
// on the next write or resync.
type Assessment struct {
	Status         models.MaintenanceStatus `json:"status"`
	ComputedStatus models.MaintenanceStatus `json:"computed_status"`
	CompletionRate float64                  `json:"completion_rate"`
	Tasks          []TaskState              `json:"tasks"`
	Orphaned       []string                 `json:"orphaned,omitempty"`
}

// Assess resolves d's tasks and reports each one's effective state
// alongside the stored status and the status Classify would compute at now.
func Assess(d *models.Device, now time.Time) Assessment {
	if d == nil {
		return Assessment{Status: models.StatusCritical, ComputedStatus: models.StatusCritical}
	}
	tasks := ResolveTasks(string(d.DeviceType), d.StorageMedium)
	expired := Normalize(now, d.MaintenanceChecklist)

	a := Assessment{
		Status:         d.Status,
		ComputedStatus: Classify(d, now),
		CompletionRate: CompletionRate(CriticalTasks(tasks), d.MaintenanceChecklist, expired),
		Tasks:          make([]TaskState, 0, len(tasks)),
	}
	required := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		required[t.Name] = struct{}{}
		rec := d.MaintenanceChecklist[t.Name]
		_, isExpired := expired[t.Name]
		a.Tasks = append(a.Tasks, TaskState{
			Task:          t,
			Completed:     rec.Completed && !isExpired,
			Expired:       isExpired,
			CompletedDate: rec.CompletedDate,
		})
	}
	for name := range d.MaintenanceChecklist {
		if _, ok := required[name]; !ok {
			a.Orphaned = append(a.Orphaned, name)
		}
	}
	sort.Strings(a.Orphaned)
	return a
}
