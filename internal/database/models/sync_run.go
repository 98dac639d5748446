package models

import (
	"time"
)

// Trigger values for a sync run
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// SyncRun records one completed adapter invocation for an account
type SyncRun struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Account     string    `gorm:"size:255;index;not null" json:"account"`
	Kind        string    `gorm:"size:20;not null" json:"kind"` // IMAP / POP3 / GMAIL_API
	Trigger     string    `gorm:"size:20;not null" json:"trigger"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	NewMessages int       `json:"new_messages"`
	Error       string    `gorm:"size:1000" json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
