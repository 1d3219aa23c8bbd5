package hierarchy

import (
	"testing"
	"time"

	"equipment-inspection-diagnostics-system/shared/classify"
)

// Full pass over a small tree: select the critical separator and classify
// its inspection countdown.
func TestSelectOverdueEquipment(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	yesterday := now.AddDate(0, 0, -1)

	tree := Node{
		ID:   "root",
		Name: "Assets",
		Type: NodeRoot,
		Children: []Node{
			{
				ID:   "company",
				Name: "Operating Company",
				Type: NodeCompany,
				Children: []Node{
					{
						ID:                 "sep",
						Name:               "Separator",
						Type:               NodeEquipment,
						EquipmentType:      "pressure_vessel",
						Status:             StatusCritical,
						NextInspectionDate: &yesterday,
					},
				},
			},
		},
	}
	s, err := NewStore(tree)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	st := NewNavState(s)
	if err := st.Select(s, "sep"); err != nil {
		t.Fatalf("Select: %v", err)
	}

	n, err := s.Get(st.SelectedID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n.Status != StatusCritical {
		t.Fatalf("expected critical status, got %q", n.Status)
	}

	cd := classify.InspectionCountdown(*n.NextInspectionDate, now)
	if cd.DaysLeft != -1 {
		t.Fatalf("expected daysLeft -1, got %d", cd.DaysLeft)
	}
	if cd.Urgency != classify.UrgencyOverdue {
		t.Fatalf("expected overdue, got %q", cd.Urgency)
	}
	if cd.OverdueDays != 1 {
		t.Fatalf("expected overdue magnitude 1, got %d", cd.OverdueDays)
	}
}
