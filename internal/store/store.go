package store

import (
	"context"
	"time"
)

// Outcome is the result of publishing one file event
type Outcome string

const (
	OutcomeInserted Outcome = "Inserted"
	OutcomeSkipped  Outcome = "Skipped"
)

// IdentityKey is the tuple that must be unique per file event
type IdentityKey struct {
	FileName       string    `json:"file_name"`
	FileLocation   string    `json:"file_location"`
	MarketDate     time.Time `json:"market_date"`
	DataFileTypeID int       `json:"data_file_type_id"`
}

// FileEvent represents one row of the event table
type FileEvent struct {
	MarketDate             time.Time `json:"market_date"`
	DataFileTypeID         int       `json:"data_file_type_id"`
	FileName               string    `json:"file_name"`
	FileLocation           string    `json:"file_location"`
	Step                   string    `json:"step"`
	StepRetryCount         int       `json:"step_retry_count"`
	Status                 string    `json:"status"`
	ServerName             string    `json:"server_name"`
	RecordCreationDate     time.Time `json:"record_creation_date"`
	RecordModificationDate time.Time `json:"record_modification_date"`
	RecordModificationUser string    `json:"record_modification_user"`
	RecordSource           string    `json:"record_source"`
	RecordComment          string    `json:"record_comment"`
	IsManual               bool      `json:"is_manual"`
}

// Key returns the identity of the event
func (e *FileEvent) Key() IdentityKey {
	return IdentityKey{
		FileName:       e.FileName,
		FileLocation:   e.FileLocation,
		MarketDate:     e.MarketDate,
		DataFileTypeID: e.DataFileTypeID,
	}
}

// insertArgs returns the 14 insert parameters in template order.
func (e *FileEvent) insertArgs() []any {
	return []any{
		e.MarketDate,
		e.DataFileTypeID,
		e.FileName,
		e.FileLocation,
		e.Step,
		e.StepRetryCount,
		e.Status,
		e.ServerName,
		e.RecordCreationDate,
		e.RecordModificationDate,
		e.RecordModificationUser,
		e.RecordSource,
		e.RecordComment,
		e.IsManual,
	}
}

// insertParamCount is the number of placeholders an insert template must carry.
const insertParamCount = 14

// EventFilter selects events for listing
type EventFilter struct {
	MarketDate time.Time
	// DataFileTypeID of 0 matches every type.
	DataFileTypeID int
}

// Gateway defines the interface to the durable event table
type Gateway interface {
	// Exists reports whether an event with the given identity is stored.
	Exists(ctx context.Context, key IdentityKey) (bool, error)
	// Insert writes the event in its own committed transaction.
	Insert(ctx context.Context, event *FileEvent) error
	// Publish inserts the event unless its identity already exists. The
	// check and the insert are not atomic.
	Publish(ctx context.Context, event *FileEvent) (Outcome, error)

	ListEvents(ctx context.Context, filter EventFilter) ([]FileEvent, error)
	Ping(ctx context.Context) error
	Close() error
}
