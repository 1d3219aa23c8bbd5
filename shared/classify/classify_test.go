package classify

import (
	"testing"
	"time"
)

func TestInspectionCountdownBoundaries(t *testing.T) {
	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	exactly30 := InspectionCountdown(now.AddDate(0, 0, 30), now)
	if exactly30.Urgency != UrgencyNormal {
		t.Fatalf("30 days out must be normal, got %s", exactly30.Urgency)
	}
	if exactly30.DaysLeft != 30 {
		t.Fatalf("expected 30 days left, got %d", exactly30.DaysLeft)
	}

	under30 := InspectionCountdown(now.AddDate(0, 0, 29), now)
	if under30.Urgency != UrgencyUrgent {
		t.Fatalf("29 days out must be urgent, got %s", under30.Urgency)
	}

	yesterday := InspectionCountdown(now.AddDate(0, 0, -1), now)
	if yesterday.Urgency != UrgencyOverdue {
		t.Fatalf("past date must be overdue, got %s", yesterday.Urgency)
	}
	if yesterday.DaysLeft != -1 || yesterday.OverdueDays != 1 {
		t.Fatalf("expected daysLeft -1 magnitude 1, got %d / %d", yesterday.DaysLeft, yesterday.OverdueDays)
	}

	sameDay := InspectionCountdown(now, now)
	if sameDay.DaysLeft != 0 || sameDay.Urgency != UrgencyUrgent {
		t.Fatalf("same-day inspection must be urgent with 0 days, got %d / %s", sameDay.DaysLeft, sameDay.Urgency)
	}
}

func TestInspectionCountdownRoundsPartialDaysUp(t *testing.T) {
	now := time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)
	c := InspectionCountdown(time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC), now)
	if c.DaysLeft != 1 {
		t.Fatalf("expected partial day to round up to 1, got %d", c.DaysLeft)
	}
}

func TestVerificationStatus(t *testing.T) {
	days := func(d int) *int { return &d }
	cases := []struct {
		name      string
		isExpired bool
		days      *int
		want      VerificationBucket
	}{
		{"flagged expired wins", true, days(45), VerificationExpired},
		{"zero days is expired", false, days(0), VerificationExpired},
		{"negative days is expired", false, days(-3), VerificationExpired},
		{"seven days is warning_7", false, days(7), VerificationWarning7},
		{"eight days is warning_30", false, days(8), VerificationWarning30},
		{"thirty days is warning_30", false, days(30), VerificationWarning30},
		{"thirty-one days is ok", false, days(31), VerificationOK},
		{"no date is ok", false, nil, VerificationOK},
	}
	for _, tc := range cases {
		if got := VerificationStatus(tc.isExpired, tc.days); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}
