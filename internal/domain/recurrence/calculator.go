// Package recurrence computes billing cycle due dates. It is pure calendar
// arithmetic: no state, no I/O, no clock reads.
package recurrence

import (
	"fmt"
	"time"
)

// Frequency represents how often a subscription bills
type Frequency string

const (
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
	FrequencyCustom    Frequency = "custom"
)

// Valid reports whether f is a known billing frequency
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyMonthly, FrequencyQuarterly, FrequencyYearly, FrequencyCustom:
		return true
	}
	return false
}

// monthStep returns the number of calendar months a frequency advances per cycle.
func monthStep(f Frequency) int {
	switch f {
	case FrequencyQuarterly:
		return 3
	case FrequencyYearly:
		return 12
	default:
		return 1
	}
}

// ValidateRule checks a recurrence rule at subscription-create/update time.
// NextDueDate assumes its inputs already passed this check.
func ValidateRule(freq Frequency, billingDay int, customDays *int) error {
	if !freq.Valid() {
		return fmt.Errorf("unknown billing frequency %q", freq)
	}
	if freq == FrequencyCustom {
		if customDays == nil || *customDays <= 0 {
			return fmt.Errorf("custom frequency requires a positive custom_frequency_days")
		}
		return nil
	}
	if customDays != nil {
		return fmt.Errorf("custom_frequency_days is only valid with custom frequency")
	}
	if billingDay < 1 || billingDay > 31 {
		return fmt.Errorf("billing_day must be between 1 and 31, got %d", billingDay)
	}
	return nil
}

// NextDueDate computes the next due date from an anchor date.
//
// Custom frequencies advance by a fixed day count. Calendar frequencies
// advance by 1/3/12 months and then pin the day-of-month to billingDay,
// clamped to the target month's last valid day; an anchor on Feb 28 with
// billingDay 31 still lands on Mar 31, and Jan 31 monthly lands on Feb 28
// (29 in leap years) rather than rolling into March.
//
// The result is strictly after anchor for every valid rule. Invalid rules
// (billingDay outside 1-31, non-positive customDays) are rejected by
// ValidateRule before they reach this function.
func NextDueDate(anchor time.Time, freq Frequency, billingDay int, customDays int) time.Time {
	if freq == FrequencyCustom {
		return anchor.AddDate(0, 0, customDays)
	}

	year, month, _ := anchor.Date()
	month += time.Month(monthStep(freq))

	// time.Date normalizes month overflow (month 14 of 2025 -> Feb 2026),
	// so pin to day 1 first and clamp the day separately.
	first := time.Date(year, month, 1, 0, 0, 0, 0, anchor.Location())
	day := billingDay
	if last := daysInMonth(first); day > last {
		day = last
	}

	h, m, s := anchor.Clock()
	return time.Date(first.Year(), first.Month(), day, h, m, s, anchor.Nanosecond(), anchor.Location())
}

// daysInMonth returns the number of days in t's month.
func daysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}
