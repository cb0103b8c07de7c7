// Package integrity holds the tab-switch policy layered on the attempt state
// machine. A count equal to the exam's maximum is still allowed; only
// exceeding it flags the attempt.
package integrity

// Exceeded reports whether the given tab-switch count is over the allowed
// maximum and the attempt must be flagged.
func Exceeded(count, maxAllowed int) bool {
	return count > maxAllowed
}

// Remaining returns how many more tab switches are tolerated before the
// attempt gets flagged. Never negative.
func Remaining(count, maxAllowed int) int {
	if r := maxAllowed - count; r > 0 {
		return r
	}
	return 0
}
