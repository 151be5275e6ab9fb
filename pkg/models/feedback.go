package models

import (
	"time"

	"github.com/google/uuid"
)

// PredictionFeedback records whether a single prediction made by an
// organization's model turned out to be accurate. Append-only; consumed by
// the stats aggregator, never by the orchestrator.
type PredictionFeedback struct {
	ID           uuid.UUID `db:"id"            json:"id"`
	OrgID        uuid.UUID `db:"org_id"        json:"org_id"`
	PredictionID string    `db:"prediction_id" json:"prediction_id"`
	Accurate     bool      `db:"accurate"      json:"accurate"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
}
