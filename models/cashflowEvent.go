package models

import (
	"time"

	"bitbucket.org/mmdatafocus/hotel_cashflow/config"
)

const CashflowEventLedgerChanged = "ledger.changed"

// CashflowEventRecord is the transactional outbox. Rows are written in the same
// transaction as the ledger change and published after commit by the dispatcher.
type CashflowEventRecord struct {
	ID            int           `gorm:"primary_key;index:idx_cashflow_outbox_dispatch,priority:3" json:"id"`
	EventType     string        `gorm:"size:50;not null" json:"event_type"`
	ReferenceType ReferenceType `gorm:"size:10;not null" json:"reference_type"`
	ReferenceId   int           `json:"reference_id"`
	Action        HistoryAction `gorm:"size:10;not null" json:"action"`
	FromDate      time.Time     `gorm:"type:date;not null" json:"from_date"`
	ThroughDate   time.Time     `gorm:"type:date;not null" json:"through_date"`
	Payload       string        `gorm:"type:text" json:"payload"`
	// publish happens after commit
	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_cashflow_outbox_dispatch,priority:1" json:"publish_status"`
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_cashflow_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func ConvertToCashflowEventMessage(record CashflowEventRecord) config.CashflowEventMessage {
	return config.CashflowEventMessage{
		ID:            record.ID,
		EventType:     record.EventType,
		ReferenceType: string(record.ReferenceType),
		ReferenceId:   record.ReferenceId,
		Action:        string(record.Action),
		FromDate:      record.FromDate,
		ThroughDate:   record.ThroughDate,
		Payload:       []byte(record.Payload),
		CorrelationId: record.CorrelationId,
		OccurredAt:    record.CreatedAt,
	}
}
