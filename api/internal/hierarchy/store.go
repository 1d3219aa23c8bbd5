package hierarchy

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNodeNotFound = errors.New("hierarchy node not found")
	ErrNotEquipment = errors.New("node does not carry a passport")
)

// ValidationError reports a rejected mutation (missing required field).
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Msg
}

// Store is the canonical arena for one hierarchy tree: every node lives in
// the id-keyed map exactly once, and all mutations go through the store so a
// detail view and the tree can never diverge. Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	rootID string
	nodes  map[string]*record
}

type record struct {
	id                 string
	name               string
	typ                NodeType
	equipmentType      string
	status             Status
	attributes         Attributes
	nextInspectionDate *time.Time
	history            []MaintenanceEvent
	documents          []AttachedDocument
	childIDs           []string
}

// NewStore flattens the nested definition into the arena. It rejects trees
// with a non-root top node, duplicate ids, or equipment nodes that carry
// children.
func NewStore(root Node) (*Store, error) {
	if root.Type != NodeRoot {
		return nil, fmt.Errorf("top node %q must have type %q, got %q", root.ID, NodeRoot, root.Type)
	}
	s := &Store{
		rootID: root.ID,
		nodes:  make(map[string]*record),
	}
	if err := s.index(root); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) index(n Node) error {
	if strings.TrimSpace(n.ID) == "" {
		return errors.New("node id must not be empty")
	}
	if _, exists := s.nodes[n.ID]; exists {
		return fmt.Errorf("duplicate node id %q", n.ID)
	}
	if n.Type == NodeEquipment && len(n.Children) > 0 {
		return fmt.Errorf("equipment node %q must be a leaf", n.ID)
	}

	rec := &record{
		id:                 n.ID,
		name:               n.Name,
		typ:                n.Type,
		equipmentType:      n.EquipmentType,
		status:             n.Status,
		attributes:         copyAttributes(n.Attributes),
		nextInspectionDate: copyTime(n.NextInspectionDate),
		history:            append([]MaintenanceEvent(nil), n.History...),
		documents:          append([]AttachedDocument(nil), n.Documents...),
	}
	s.nodes[n.ID] = rec

	for _, child := range n.Children {
		if child.Type == NodeRoot {
			return fmt.Errorf("node %q: root type only allowed at depth 0", child.ID)
		}
		rec.childIDs = append(rec.childIDs, child.ID)
		if err := s.index(child); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) RootID() string {
	return s.rootID
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Get returns a flat snapshot of one node (children omitted).
func (s *Store) Get(id string) (Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.nodes[id]
	if !ok {
		return Node{}, ErrNodeNotFound
	}
	return rec.snapshot(), nil
}

func (s *Store) ChildIDs(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.nodes[id]
	if !ok {
		return nil
	}
	return append([]string(nil), rec.childIDs...)
}

func (s *Store) HasChildren(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.nodes[id]
	return ok && len(rec.childIDs) > 0
}

// Tree re-derives the nested form from the arena, children in insertion
// order.
func (s *Store) Tree() Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subtree(s.rootID)
}

func (s *Store) subtree(id string) Node {
	rec := s.nodes[id]
	n := rec.snapshot()
	for _, childID := range rec.childIDs {
		n.Children = append(n.Children, s.subtree(childID))
	}
	return n
}

// Walk visits every node depth-first pre-order, children in order. The
// callback receives the recursion depth (root is 0).
func (s *Store) Walk(fn func(n Node, depth int)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.walk(s.rootID, 0, fn)
}

func (s *Store) walk(id string, depth int, fn func(n Node, depth int)) {
	rec, ok := s.nodes[id]
	if !ok {
		return
	}
	fn(rec.snapshot(), depth)
	for _, childID := range rec.childIDs {
		s.walk(childID, depth+1, fn)
	}
}

// SavePassport replaces the node's attributes wholesale with the proposed
// record; keys absent from the proposal are dropped. When at least one key
// changed under loose comparison, one attribute_change history entry is
// prepended with the comma-joined change list; an identical proposal leaves
// history untouched. Returns the change descriptions.
func (s *Store) SavePassport(id string, proposed Attributes, performer string, now time.Time) ([]string, error) {
	if performer == "" {
		performer = DefaultPerformer
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	if rec.typ != NodeEquipment {
		return nil, ErrNotEquipment
	}

	changes := DiffAttributes(rec.attributes, proposed)
	rec.attributes = copyAttributes(proposed)

	if len(changes) > 0 {
		rec.prepend(MaintenanceEvent{
			ID:          uuid.NewString(),
			Date:        dayOf(now),
			Type:        EventAttributeChange,
			Title:       "Passport updated",
			Description: strings.Join(changes, ", "),
			Performer:   performer,
		})
	}
	return changes, nil
}

// AddEvent prepends a manual history entry. Title and description are
// required; a missing one rejects the whole operation and history stays
// unchanged. Date and performer default when absent.
func (s *Store) AddEvent(id string, ev MaintenanceEvent, now time.Time) (MaintenanceEvent, error) {
	if strings.TrimSpace(ev.Title) == "" {
		return MaintenanceEvent{}, &ValidationError{Field: "title", Msg: "must not be empty"}
	}
	if strings.TrimSpace(ev.Description) == "" {
		return MaintenanceEvent{}, &ValidationError{Field: "description", Msg: "must not be empty"}
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Date.IsZero() {
		ev.Date = dayOf(now)
	}
	if ev.Performer == "" {
		ev.Performer = DefaultPerformer
	}
	if ev.Type == "" {
		ev.Type = EventMaintenance
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.nodes[id]
	if !ok {
		return MaintenanceEvent{}, ErrNodeNotFound
	}
	if rec.typ != NodeEquipment {
		return MaintenanceEvent{}, ErrNotEquipment
	}
	rec.prepend(ev)
	return ev, nil
}

// History returns the node's log newest-first. An unknown id yields an empty
// slice rather than an error.
func (s *Store) History(id string) []MaintenanceEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.nodes[id]
	if !ok {
		return []MaintenanceEvent{}
	}
	return append([]MaintenanceEvent{}, rec.history...)
}

func (s *Store) AddDocument(id string, doc AttachedDocument, now time.Time) (AttachedDocument, error) {
	if strings.TrimSpace(doc.Name) == "" {
		return AttachedDocument{}, &ValidationError{Field: "name", Msg: "must not be empty"}
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.UploadDate.IsZero() {
		doc.UploadDate = now.UTC()
	}
	if doc.UploadedBy.Name == "" {
		doc.UploadedBy.Name = DefaultPerformer
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.nodes[id]
	if !ok {
		return AttachedDocument{}, ErrNodeNotFound
	}
	if rec.typ != NodeEquipment {
		return AttachedDocument{}, ErrNotEquipment
	}
	rec.documents = append(rec.documents, doc)
	return doc, nil
}

func (r *record) prepend(ev MaintenanceEvent) {
	r.history = append([]MaintenanceEvent{ev}, r.history...)
}

func (r *record) snapshot() Node {
	return Node{
		ID:                 r.id,
		Name:               r.name,
		Type:               r.typ,
		EquipmentType:      r.equipmentType,
		Status:             r.status,
		Attributes:         copyAttributes(r.attributes),
		NextInspectionDate: copyTime(r.nextInspectionDate),
		History:            append([]MaintenanceEvent(nil), r.history...),
		Documents:          append([]AttachedDocument(nil), r.documents...),
	}
}

func copyAttributes(attrs Attributes) Attributes {
	if attrs == nil {
		return nil
	}
	out := make(Attributes, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
