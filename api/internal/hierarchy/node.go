package hierarchy

import (
	"time"
)

type NodeType string

const (
	NodeRoot       NodeType = "root"
	NodeCompany    NodeType = "company"
	NodeBranch     NodeType = "branch"
	NodeDivision   NodeType = "division"
	NodeDepartment NodeType = "department"
	NodeGroup      NodeType = "group"
	NodeEquipment  NodeType = "equipment"
)

// IsContainer reports whether the type may carry children. Equipment nodes
// are always leaves; the store rejects trees that violate this.
func (t NodeType) IsContainer() bool {
	return t != NodeEquipment
}

type Status string

const (
	StatusOK       Status = "ok"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Attributes is the equipment passport: an open bag of design and physical
// parameters. Different equipment categories populate different subsets, so
// no key is mandatory and values stay untyped (form inputs arrive as text,
// persisted records may carry numbers).
type Attributes map[string]any

type EventType string

const (
	EventInspection      EventType = "inspection"
	EventRepair          EventType = "repair"
	EventIncident        EventType = "incident"
	EventMaintenance     EventType = "maintenance"
	EventAttributeChange EventType = "attribute_change"
)

// MaintenanceEvent is one immutable entry in an equipment node's history.
// Entries are prepended, so history reads newest-first.
type MaintenanceEvent struct {
	ID          string    `json:"id"`
	Date        time.Time `json:"date"`
	Type        EventType `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Performer   string    `json:"performer"`
	DocumentRef string    `json:"document_ref,omitempty"`
}

type DocumentCategory string

const (
	DocPassport    DocumentCategory = "passport"
	DocDrawing     DocumentCategory = "drawing"
	DocManual      DocumentCategory = "manual"
	DocCertificate DocumentCategory = "certificate"
	DocProtocol    DocumentCategory = "protocol"
	DocEPBReport   DocumentCategory = "epb_report"
)

type Uploader struct {
	Name     string `json:"name"`
	Role     string `json:"role,omitempty"`
	Initials string `json:"initials,omitempty"`
}

type AttachedDocument struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Category   DocumentCategory `json:"category"`
	UploadDate time.Time        `json:"upload_date"`
	UploadedBy Uploader         `json:"uploaded_by"`
	Size       string           `json:"size,omitempty"`
	Extension  string           `json:"extension,omitempty"`
}

// Node is the definition form of one hierarchy entry, used to build a Store.
// Children nest; the store flattens them into the id-keyed arena and from
// then on the arena record is the single authoritative copy.
type Node struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Type               NodeType           `json:"type"`
	EquipmentType      string             `json:"equipment_type,omitempty"`
	Status             Status             `json:"status,omitempty"`
	Attributes         Attributes         `json:"attributes,omitempty"`
	NextInspectionDate *time.Time         `json:"next_inspection_date,omitempty"`
	History            []MaintenanceEvent `json:"history,omitempty"`
	Documents          []AttachedDocument `json:"documents,omitempty"`
	Children           []Node             `json:"children,omitempty"`
}

// DefaultPerformer stands in for the authenticated user when no identity is
// attached to the request.
const DefaultPerformer = "Administrator"
