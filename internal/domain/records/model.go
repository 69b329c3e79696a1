package records

import (
	"time"
)

// HealthRecord maps to the records table: one measured activity or workout
// event pushed by the mobile client. Provider stays empty on this first-party
// path; aggregator-sourced rows live in the metriport domain.
type HealthRecord struct {
	UID      *string   `db:"uid" json:"uid"`
	SID      string    `db:"sid" json:"sid"`
	TS       time.Time `db:"ts" json:"ts"`
	Code     string    `db:"code" json:"code"`
	Duration *int      `db:"duration" json:"duration,omitempty"`
	Energy   *int      `db:"energy" json:"energy,omitempty"`
	Start    time.Time `db:"start" json:"start"`
	Finish   time.Time `db:"finish" json:"finish"`
}
