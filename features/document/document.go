// Package document is the version store for processed contracts. Every
// pipeline run writes an immutable version row; a LATEST row per document
// points at the newest one.
package document

import (
	"encoding/json"
	"time"
)

// LatestSK is the sort key of the mutable pointer row.
const LatestSK = "LATEST"

// VersionSKPrefix prefixes immutable version rows. The suffix is the
// envelope's ingress timestamp, so a redelivered message maps to the same
// row instead of a duplicate version.
const VersionSKPrefix = "VERSION#"

type Record struct {
	PK                   string          `json:"pk"`
	SK                   string          `json:"sk"`
	ClientName           string          `json:"client_name,omitempty"`
	PONumber             string          `json:"po_number,omitempty"`
	EndDate              string          `json:"end_date,omitempty"`
	ValidationPassed     bool            `json:"validation_passed"`
	ExtractionConfidence float64         `json:"extraction_confidence"`
	Payload              json.RawMessage `json:"payload"`
	CreatedAt            time.Time       `json:"created_at"`
}
