package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

const (
	TopicEquipmentEvents    = "equipment.events"
	TopicVerificationAlerts = "verification.alerts"
	TopicTelemetryReadings  = "telemetry.readings"
)

const (
	AggregateVerificationEquipment = "verification_equipment"
	AggregateHierarchyNode         = "hierarchy_node"
	AggregateTelemetry             = "telemetry"
)
