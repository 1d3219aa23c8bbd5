package hierarchy

import (
	"reflect"
	"testing"
	"time"
)

func TestToggleExpansionInvolution(t *testing.T) {
	s := mustStore(t)
	st := NewNavState(s)

	before := make(map[string]bool, len(st.Expanded))
	for k, v := range st.Expanded {
		before[k] = v
	}

	for _, id := range []string{"company", "missing-id"} {
		st.ToggleExpansion(id)
		st.ToggleExpansion(id)
	}
	if !reflect.DeepEqual(st.Expanded, before) {
		t.Fatalf("double toggle must restore the set: %v != %v", st.Expanded, before)
	}
}

func TestToggleUnknownIDHarmless(t *testing.T) {
	s := mustStore(t)
	st := NewNavState(s)

	st.ToggleExpansion("no-such-node")
	rows := st.VisibleRows(s)
	for _, row := range rows {
		if row.Node.ID == "no-such-node" {
			t.Fatalf("unknown id must never render")
		}
	}
}

func TestSelectContainerAutoExpands(t *testing.T) {
	s := mustStore(t)
	st := NewNavState(s)

	if err := st.Select(s, "company"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if st.SelectedID != "company" {
		t.Fatalf("expected selection company, got %q", st.SelectedID)
	}
	if !st.IsExpanded("company") {
		t.Fatalf("selecting a container must expand it")
	}
}

func TestSelectLeafDoesNotExpand(t *testing.T) {
	s := mustStore(t)
	st := NewNavState(s)

	if err := st.Select(s, "sep"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if st.IsExpanded("sep") {
		t.Fatalf("leaf selection must not add to expanded set")
	}
}

func TestSelectUnknownNode(t *testing.T) {
	s := mustStore(t)
	st := NewNavState(s)

	if err := st.Select(s, "missing"); err == nil {
		t.Fatalf("expected error selecting unknown node")
	}
	if st.SelectedID != "" {
		t.Fatalf("failed select must not change selection")
	}
}

func TestVisibleRowsRespectExpansion(t *testing.T) {
	s := mustStore(t)
	st := NewNavState(s)

	// Root expanded only: root and its direct children show.
	rows := st.VisibleRows(s)
	if len(rows) != 2 {
		t.Fatalf("expected 2 visible rows, got %d", len(rows))
	}
	if rows[0].Node.ID != "root" || rows[0].Depth != 0 {
		t.Fatalf("expected root first at depth 0, got %q depth %d", rows[0].Node.ID, rows[0].Depth)
	}
	if rows[1].Node.ID != "company" || rows[1].Depth != 1 {
		t.Fatalf("expected company at depth 1, got %q depth %d", rows[1].Node.ID, rows[1].Depth)
	}

	st.ToggleExpansion("company")
	rows = st.VisibleRows(s)
	if len(rows) != 3 {
		t.Fatalf("expected 3 visible rows after expansion, got %d", len(rows))
	}
	if rows[2].Node.ID != "sep" || rows[2].Depth != 2 {
		t.Fatalf("expected sep at depth 2, got %q depth %d", rows[2].Node.ID, rows[2].Depth)
	}
}

func TestNewNavStateSeedsBranch(t *testing.T) {
	s, err := NewStore(SeedTree(time.Now()))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	st := NewNavState(s, SeedExpandedBranch)
	if !st.IsExpanded(s.RootID()) {
		t.Fatalf("root must start expanded")
	}
	if !st.IsExpanded(SeedExpandedBranch) {
		t.Fatalf("seeded branch must start expanded")
	}
}
