// Package clock supplies the injectable time source used when stamping
// volume descriptors and directory records, so that remaster output is
// byte-reproducible in tests.
package clock

import "time"

// Provider returns the current time. The zero value of CreateOptions.Clock
// uses time.Now; tests inject a fixed func() time.Time for deterministic
// fixtures.
type Provider func() time.Time

// System is the default Provider, backed by time.Now.
func System() time.Time {
	return time.Now()
}

// Fixed returns a Provider that always returns t, for golden-byte tests.
func Fixed(t time.Time) Provider {
	return func() time.Time {
		return t
	}
}
