package identity

import "time"

// WithinWindow checks if t falls inside the trailing window ending now
func WithinWindow(t time.Time, window time.Duration) bool {
	return withinWindowAt(t, time.Now(), window)
}

// OutsideWindow is the negation of WithinWindow
func OutsideWindow(t time.Time, window time.Duration) bool {
	return !WithinWindow(t, window)
}

func withinWindowAt(t, ref time.Time, window time.Duration) bool {
	return t.After(ref.Add(-window))
}
