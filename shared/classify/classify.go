// Package classify holds the pure date-bucket rules shared by the API,
// the expiry scanner, and the portal views: how many days remain before
// an inspection or instrument verification, and which urgency bucket
// that count falls into.
package classify

import (
	"math"
	"time"
)

type Urgency string

const (
	UrgencyOverdue Urgency = "overdue"
	UrgencyUrgent  Urgency = "urgent"
	UrgencyNormal  Urgency = "normal"
)

// UrgentWindowDays is the inclusive lower edge of the urgent bucket:
// 0 <= daysLeft < UrgentWindowDays is urgent, exactly 30 days out is normal.
const UrgentWindowDays = 30

type Countdown struct {
	DaysLeft    int     `json:"days_left"`
	Urgency     Urgency `json:"urgency"`
	OverdueDays int     `json:"overdue_days,omitempty"`
}

// InspectionCountdown computes the whole-day distance from now to the next
// inspection date, rounding partial days up, and classifies it.
func InspectionCountdown(next time.Time, now time.Time) Countdown {
	daysLeft := int(math.Ceil(next.Sub(now).Hours() / 24))
	c := Countdown{DaysLeft: daysLeft}
	switch {
	case daysLeft < 0:
		c.Urgency = UrgencyOverdue
		c.OverdueDays = -daysLeft
	case daysLeft < UrgentWindowDays:
		c.Urgency = UrgencyUrgent
	default:
		c.Urgency = UrgencyNormal
	}
	return c
}

type VerificationBucket string

const (
	VerificationExpired   VerificationBucket = "expired"
	VerificationWarning7  VerificationBucket = "warning_7"
	VerificationWarning30 VerificationBucket = "warning_30"
	VerificationOK        VerificationBucket = "ok"
)

// VerificationStatus buckets an instrument by its verification expiry.
// daysUntilExpiry is nil when the record carries no next-verification date;
// such records are OK unless explicitly flagged expired.
func VerificationStatus(isExpired bool, daysUntilExpiry *int) VerificationBucket {
	if isExpired {
		return VerificationExpired
	}
	if daysUntilExpiry == nil {
		return VerificationOK
	}
	switch d := *daysUntilExpiry; {
	case d <= 0:
		return VerificationExpired
	case d <= 7:
		return VerificationWarning7
	case d <= 30:
		return VerificationWarning30
	default:
		return VerificationOK
	}
}

// DaysUntil counts whole days from now to t at day resolution, rounding up.
func DaysUntil(t time.Time, now time.Time) int {
	return int(math.Ceil(t.Sub(now).Hours() / 24))
}
