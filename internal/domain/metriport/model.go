package metriport

import (
	"encoding/json"
	"time"
)

// ActivityRecord maps to the metriport_records table. (UID, Start, Provider)
// is the natural key for webhook redelivery: a second delivery of the same
// underlying event overwrites the row instead of duplicating it.
type ActivityRecord struct {
	UID      string     `db:"uid" json:"uid"`
	SID      string     `db:"sid" json:"sid"`
	TS       time.Time  `db:"ts" json:"ts"`
	Code     string     `db:"code" json:"code"`
	Duration *int       `db:"duration" json:"duration,omitempty"`
	Energy   *int       `db:"energy" json:"energy,omitempty"`
	Start    time.Time  `db:"start" json:"start"`
	Finish   *time.Time `db:"finish" json:"finish,omitempty"`
	Provider string     `db:"provider" json:"provider"`
}

// UnhandledPayload maps to the metriport_unhandled_data table: any event this
// service does not normalize, archived verbatim for manual processing.
type UnhandledPayload struct {
	TS   time.Time       `db:"ts" json:"ts"`
	UID  string          `db:"uid" json:"uid"`
	Data json.RawMessage `db:"data" json:"data"`
}

// Message is the aggregator webhook envelope.
type Message struct {
	Meta  Meta       `json:"meta"`
	Users []UserData `json:"users"`
}

// Meta describes the webhook delivery itself.
type Meta struct {
	MessageID string `json:"messageId"`
	When      string `json:"when"`
	Type      string `json:"type"`
}

// UserData carries one user's events keyed by event kind (activity, sleep,
// biometrics, ...). Kinds are dispatched explicitly; anything that is not
// activity ends up archived.
type UserData struct {
	UserID string
	Events map[string]json.RawMessage
}

func (u *UserData) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if id, ok := raw["userId"]; ok {
		if err := json.Unmarshal(id, &u.UserID); err != nil {
			return err
		}
		delete(raw, "userId")
	}
	u.Events = raw
	return nil
}

// Activity is one declared activity block inside a user's webhook entry.
type Activity struct {
	Metadata     Metadata          `json:"metadata"`
	ActivityLogs []ActivityLogItem `json:"activity_logs"`
}

// Metadata identifies where and when the source measured the data.
type Metadata struct {
	Date   string `json:"date"`
	Source string `json:"source"`
}

// ActivityLogItem is a single activity-log entry inside an activity block.
type ActivityLogItem struct {
	Name              string             `json:"name"`
	Metadata          Metadata           `json:"metadata"`
	StartTime         string             `json:"start_time"`
	EndTime           string             `json:"end_time"`
	Durations         *Durations         `json:"durations"`
	EnergyExpenditure *EnergyExpenditure `json:"energy_expenditure"`
}

// Durations is the optional duration substructure of an activity log.
type Durations struct {
	ActiveSeconds int `json:"active_seconds"`
}

// EnergyExpenditure is the optional energy substructure of an activity log.
type EnergyExpenditure struct {
	ActiveKcal *int `json:"active_kcal"`
}
