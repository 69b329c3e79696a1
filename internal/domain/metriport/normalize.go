package metriport

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// The textual datetime formats the aggregator delivers: with and without
// sub-second precision, and with the UTC offset in either +hhmm or +hh:mm
// form.
var datetimeMasks = []string{
	"2006-01-02T15:04:05.999999Z0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.999999Z07:00",
	"2006-01-02T15:04:05Z07:00",
}

func parseDatetime(value string) (time.Time, error) {
	for _, mask := range datetimeMasks {
		if t, err := time.Parse(mask, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse datetime %q", value)
}

// Normalizer maps heterogeneous activity-log items into ActivityRecord rows.
type Normalizer struct {
	log zerolog.Logger
	now func() time.Time
}

func NewNormalizer(log zerolog.Logger) *Normalizer {
	return &Normalizer{log: log, now: time.Now}
}

// Normalize converts every activity-log item in the given activity blocks.
// Items with an unparseable start time or a missing provider are logged and
// dropped; the rest of the batch still goes through.
func (n *Normalizer) Normalize(userID string, activities []Activity) []*ActivityRecord {
	var out []*ActivityRecord
	for _, activity := range activities {
		for _, item := range activity.ActivityLogs {
			rec, err := n.normalizeItem(userID, item)
			if err != nil {
				n.log.Warn().Err(err).Str("user_id", userID).Msg("skipping activity log item")
				continue
			}
			out = append(out, rec)
		}
	}
	return out
}

func (n *Normalizer) normalizeItem(userID string, item ActivityLogItem) (*ActivityRecord, error) {
	start, err := parseDatetime(item.StartTime)
	if err != nil {
		return nil, err
	}
	if item.Metadata.Source == "" {
		return nil, fmt.Errorf("activity log item %q has no metadata source", item.Name)
	}

	return &ActivityRecord{
		UID:      userID,
		SID:      uuid.New().String(),
		TS:       n.now(),
		Code:     item.Name,
		Duration: parseDuration(item),
		Energy:   parseEnergy(item),
		Start:    start,
		Finish:   parseEndDatetime(item, start),
		Provider: item.Metadata.Source,
	}, nil
}

// parseEndDatetime prefers the source's explicit end time; failing that it
// derives finish as start plus the active duration, and otherwise leaves the
// finish unset.
func parseEndDatetime(item ActivityLogItem, start time.Time) *time.Time {
	if item.EndTime != "" {
		if end, err := parseDatetime(item.EndTime); err == nil {
			return &end
		}
	}
	if item.Durations != nil && item.Durations.ActiveSeconds > 0 {
		end := start.Add(time.Duration(item.Durations.ActiveSeconds) * time.Second)
		return &end
	}
	return nil
}

func parseDuration(item ActivityLogItem) *int {
	if item.Durations == nil {
		return nil
	}
	seconds := item.Durations.ActiveSeconds
	return &seconds
}

func parseEnergy(item ActivityLogItem) *int {
	if item.EnergyExpenditure == nil {
		return nil
	}
	return item.EnergyExpenditure.ActiveKcal
}
