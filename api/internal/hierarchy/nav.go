package hierarchy

// NavState is the explicit navigation state for one tree view: the set of
// expanded node ids plus the current selection. It is a plain value owned by
// its caller; all transitions go through methods so behavior stays
// deterministic and testable.
type NavState struct {
	Expanded   map[string]bool
	SelectedID string
}

// NewNavState starts with the root expanded, plus any seeded branch ids the
// caller wants open on first render.
func NewNavState(store *Store, seedExpanded ...string) *NavState {
	st := &NavState{Expanded: make(map[string]bool)}
	if store != nil {
		st.Expanded[store.RootID()] = true
	}
	for _, id := range seedExpanded {
		if id != "" {
			st.Expanded[id] = true
		}
	}
	return st
}

// ToggleExpansion flips membership of id in the expanded set. Toggling an
// unknown id is harmless: it enters the set and flips back out on the next
// call, never reaching any traversal.
func (st *NavState) ToggleExpansion(id string) {
	if st.Expanded == nil {
		st.Expanded = make(map[string]bool)
	}
	if st.Expanded[id] {
		delete(st.Expanded, id)
		return
	}
	st.Expanded[id] = true
}

// Select makes id the current selection. Selecting a node with children
// also expands it, so picking a container reveals its contents.
func (st *NavState) Select(store *Store, id string) error {
	if store != nil {
		if _, err := store.Get(id); err != nil {
			return err
		}
	}
	st.SelectedID = id
	if store != nil && store.HasChildren(id) {
		if st.Expanded == nil {
			st.Expanded = make(map[string]bool)
		}
		st.Expanded[id] = true
	}
	return nil
}

func (st *NavState) IsExpanded(id string) bool {
	return st.Expanded[id]
}

// VisibleRow is one rendered line of the tree pane.
type VisibleRow struct {
	Node     Node
	Depth    int
	Expanded bool
	Selected bool
}

// VisibleRows walks the tree depth-first pre-order and returns the rows a
// renderer would show: a node appears when all its ancestors are expanded.
func (st *NavState) VisibleRows(store *Store) []VisibleRow {
	if store == nil {
		return nil
	}
	var rows []VisibleRow
	st.visible(store, store.RootID(), 0, &rows)
	return rows
}

func (st *NavState) visible(store *Store, id string, depth int, rows *[]VisibleRow) {
	n, err := store.Get(id)
	if err != nil {
		return
	}
	*rows = append(*rows, VisibleRow{
		Node:     n,
		Depth:    depth,
		Expanded: st.IsExpanded(id),
		Selected: st.SelectedID == id,
	})
	if !st.IsExpanded(id) {
		return
	}
	for _, childID := range store.ChildIDs(id) {
		st.visible(store, childID, depth+1, rows)
	}
}
