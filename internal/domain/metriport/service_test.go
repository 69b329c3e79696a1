package metriport

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// mockRepo keys rows by the (uid, start, provider) natural key, matching the
// table's upsert behavior.
type mockRepo struct {
	rows      map[string]*ActivityRecord
	unhandled []*UnhandledPayload
	err       error
}

func newMockRepo() *mockRepo {
	return &mockRepo{rows: map[string]*ActivityRecord{}}
}

func (m *mockRepo) key(rec *ActivityRecord) string {
	return rec.UID + "|" + rec.Start.Format(time.RFC3339Nano) + "|" + rec.Provider
}

func (m *mockRepo) Upsert(ctx context.Context, rec *ActivityRecord) error {
	if m.err != nil {
		return m.err
	}
	m.rows[m.key(rec)] = rec
	return nil
}

func (m *mockRepo) ListByUser(ctx context.Context, uid string) ([]*ActivityRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := []*ActivityRecord{}
	for _, rec := range m.rows {
		if rec.UID == uid {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *mockRepo) AppendUnhandled(ctx context.Context, payload *UnhandledPayload) error {
	if m.err != nil {
		return m.err
	}
	m.unhandled = append(m.unhandled, payload)
	return nil
}

func newTestService(repo Repository) *Service {
	return NewService(repo, NewNormalizer(zerolog.Nop()), zerolog.Nop())
}

const activityMessage = `{
	"meta": {"messageId": "msg-1", "type": "devices-provider-connected"},
	"users": [{
		"userId": "metriport-user-1",
		"activity": [{
			"metadata": {"date": "2023-04-01", "source": "garmin"},
			"activity_logs": [{
				"name": "walk",
				"metadata": {"date": "2023-04-01", "source": "garmin"},
				"start_time": "2023-04-01T10:00:00.000000Z",
				"end_time": "2023-04-01T10:30:00.000000Z",
				"durations": {"active_seconds": 1800},
				"energy_expenditure": {"active_kcal": 120}
			}]
		}]
	}]
}`

func TestProcessMessage_NormalizesActivity(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)

	var msg Message
	if err := json.Unmarshal([]byte(activityMessage), &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	if err := svc.ProcessMessage(context.Background(), &msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(repo.rows) != 1 {
		t.Fatalf("expected 1 stored record, got %d", len(repo.rows))
	}
	for _, rec := range repo.rows {
		if rec.UID != "metriport-user-1" {
			t.Errorf("expected uid metriport-user-1, got %s", rec.UID)
		}
		if rec.Code != "walk" || rec.Provider != "garmin" {
			t.Errorf("unexpected record %+v", rec)
		}
		if rec.Duration == nil || *rec.Duration != 1800 {
			t.Errorf("expected duration 1800, got %v", rec.Duration)
		}
		if rec.Energy == nil || *rec.Energy != 120 {
			t.Errorf("expected energy 120, got %v", rec.Energy)
		}
	}
	if len(repo.unhandled) != 0 {
		t.Errorf("expected nothing archived, got %d payloads", len(repo.unhandled))
	}
}

func TestProcessMessage_RedeliveryOverwrites(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)

	var first Message
	if err := json.Unmarshal([]byte(activityMessage), &first); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	if err := svc.ProcessMessage(context.Background(), &first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Same event redelivered with a corrected energy figure.
	redelivered := strings.Replace(activityMessage, `"active_kcal": 120`, `"active_kcal": 140`, 1)
	var second Message
	if err := json.Unmarshal([]byte(redelivered), &second); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	if err := svc.ProcessMessage(context.Background(), &second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(repo.rows) != 1 {
		t.Fatalf("expected redelivery to overwrite, got %d rows", len(repo.rows))
	}
	for _, rec := range repo.rows {
		if rec.Energy == nil || *rec.Energy != 140 {
			t.Errorf("expected overwritten energy 140, got %v", rec.Energy)
		}
	}
}

func TestProcessMessage_ArchivesUnhandledKinds(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)

	raw := `{
		"meta": {"messageId": "msg-2"},
		"users": [{
			"userId": "metriport-user-1",
			"nutrition": [{"metadata": {"date": "2023-04-01", "source": "garmin"}}]
		}]
	}`
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	if err := svc.ProcessMessage(context.Background(), &msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(repo.rows) != 0 {
		t.Errorf("expected no normalized records, got %d", len(repo.rows))
	}
	if len(repo.unhandled) != 1 {
		t.Fatalf("expected 1 archived payload, got %d", len(repo.unhandled))
	}
	archived := repo.unhandled[0]
	if archived.UID != "metriport-user-1" {
		t.Errorf("expected uid metriport-user-1, got %s", archived.UID)
	}
	// The archive wraps the payload under its event kind.
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(archived.Data, &wrapped); err != nil {
		t.Fatalf("decode archived data: %v", err)
	}
	if _, ok := wrapped["nutrition"]; !ok {
		t.Errorf("expected archived data keyed by event kind, got %s", archived.Data)
	}
}

func TestProcessMessage_MalformedActivityArchived(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)

	raw := `{
		"meta": {"messageId": "msg-3"},
		"users": [{
			"userId": "metriport-user-1",
			"activity": {"not": "an array"}
		}]
	}`
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	if err := svc.ProcessMessage(context.Background(), &msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(repo.rows) != 0 {
		t.Errorf("expected no normalized records, got %d", len(repo.rows))
	}
	if len(repo.unhandled) != 1 {
		t.Fatalf("expected malformed activity archived, got %d payloads", len(repo.unhandled))
	}
}

func TestProcessMessage_MultipleUsers(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)

	raw := `{
		"meta": {"messageId": "msg-4"},
		"users": [
			{
				"userId": "user-a",
				"activity": [{
					"metadata": {"date": "2023-04-01", "source": "garmin"},
					"activity_logs": [{
						"name": "run",
						"metadata": {"date": "2023-04-01", "source": "garmin"},
						"start_time": "2023-04-01T08:00:00.000000Z"
					}]
				}]
			},
			{
				"userId": "user-b",
				"sleep": [{"metadata": {"date": "2023-04-01", "source": "oura"}}]
			}
		]
	}`
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	if err := svc.ProcessMessage(context.Background(), &msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	recs, err := svc.ListByUser(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("expected 1 record for user-a, got %d", len(recs))
	}
	if len(repo.unhandled) != 1 || repo.unhandled[0].UID != "user-b" {
		t.Errorf("expected user-b sleep payload archived, got %+v", repo.unhandled)
	}
}
