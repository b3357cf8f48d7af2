package maintenance

import (
	"math"
	"time"

	"github.com/HerbHall/aims/pkg/models"
)

const (
	// daysPerMonth is the fixed month length used for all age arithmetic.
	// It is an approximation, not calendar months.
	daysPerMonth = 30

	// TaskExpiryMonths is how long a completed task counts as done.
	TaskExpiryMonths = 3

	// StaleAfterMonths is the maintenance recency (or device age when never
	// maintained) at which a device is Critical regardless of its checklist.
	StaleAfterMonths = 6
)

// MonthsBetween returns whole elapsed days from since to now divided by 30.
// Times in the future yield a non-positive value.
func MonthsBetween(since, now time.Time) float64 {
	days := math.Floor(now.Sub(since).Hours() / 24)
	return days / daysPerMonth
}

// Normalize returns the names of checklist tasks that are marked completed
// but whose completion is TaskExpiryMonths or older as of now. Completed
// entries without a date never expire. The checklist is not modified.
func Normalize(now time.Time, checklist map[string]models.TaskRecord) map[string]struct{} {
	expired := make(map[string]struct{})
	for name, rec := range checklist {
		if !rec.Completed || rec.CompletedDate == nil {
			continue
		}
		if MonthsBetween(*rec.CompletedDate, now) >= TaskExpiryMonths {
			expired[name] = struct{}{}
		}
	}
	return expired
}
