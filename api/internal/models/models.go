package models

import (
	"time"

	"github.com/google/uuid"
)

type VerificationEquipment struct {
	EquipmentID          uuid.UUID
	Name                 string
	EquipmentType        string
	SerialNumber         string
	VerificationDate     *time.Time
	NextVerificationDate *time.Time
	IsActive             bool
	ScanFileName         *string
	ScanContentType      *string
	ScanSizeBytes        *int64
	Notes                string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type VerificationHistory struct {
	HistoryID   uuid.UUID
	EquipmentID uuid.UUID
	Action      string
	Performer   string
	OccurredAt  time.Time
	Details     []byte
}

type VerificationAlert struct {
	AlertID     uuid.UUID
	EquipmentID uuid.UUID
	Bucket      string
	DaysLeft    int
	AlertDate   time.Time
	CreatedAt   time.Time
}

type OutboxEvent struct {
	EventID       uuid.UUID
	AggregateType string
	AggregateID   string
	Topic         string
	Payload       []byte
	Status        string
	Attempts      int
	NextRetryAt   *time.Time
	LockedAt      *time.Time
	LockedBy      *string
	LastError     *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	PublishedAt   *time.Time
}

type AuditLog struct {
	AuditID      uuid.UUID
	OccurredAt   time.Time
	Subject      string
	Action       string
	ResourceType *string
	ResourceID   *string
	RequestID    string
	Method       string
	Path         string
	StatusCode   int
	DurationMS   int64
	ClientIP     string
	UserAgent    string
	Details      []byte
}
