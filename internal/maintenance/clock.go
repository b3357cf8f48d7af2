package maintenance

import "time"

// Clock supplies the current time. Every operation reads it once and uses
// that instant for all of its age arithmetic.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
