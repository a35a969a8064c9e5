package types

import "time"

// CardRecord is one row of the roster workbook. The roster is the source
// of truth for who may pass the turnstile; records are immutable within a
// run. HasRFID distinguishes a genuinely absent RFID cell from a zero value.
type CardRecord struct {
	RFID           uint64
	HasRFID        bool
	CardNumber     string
	Username       string
	Active         bool
	ExpirationDate time.Time
}

// AccessEvent is a successful card-triggered entry extracted from the
// device event log. Date carries the calendar day only (midnight).
type AccessEvent struct {
	RFID uint64
	Date time.Time
}

// ReportRow is one aggregated line of the access report: how many distinct
// calendar days a card was used for entry.
type ReportRow struct {
	RFID           uint64
	CardNumber     string
	Username       string
	UniqueEntryDays int
}
