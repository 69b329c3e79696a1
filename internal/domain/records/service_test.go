package records

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type mockRepo struct {
	inserted []*HealthRecord
	byUser   map[string][]*HealthRecord
	err      error
}

func (m *mockRepo) Insert(ctx context.Context, items []*HealthRecord) error {
	if m.err != nil {
		return m.err
	}
	m.inserted = append(m.inserted, items...)
	return nil
}

func (m *mockRepo) ListByUser(ctx context.Context, uid string) ([]*HealthRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	items, ok := m.byUser[uid]
	if !ok {
		return []*HealthRecord{}, nil
	}
	return items, nil
}

func intPtr(v int) *int { return &v }

func validRecord() *HealthRecord {
	start := time.Date(2023, 4, 1, 10, 0, 0, 0, time.UTC)
	return &HealthRecord{
		SID:      "3f1c9c3e-0000-0000-0000-000000000001",
		TS:       start.Add(time.Hour),
		Code:     "HKWorkoutActivityTypeRunning",
		Duration: intPtr(1800),
		Energy:   intPtr(250),
		Start:    start,
		Finish:   start.Add(30 * time.Minute),
	}
}

func TestWrite_AttachesUID(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)
	uid := "user-1"

	if err := svc.Write(context.Background(), &uid, []*HealthRecord{validRecord()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.inserted) != 1 {
		t.Fatalf("expected 1 inserted record, got %d", len(repo.inserted))
	}
	if repo.inserted[0].UID == nil || *repo.inserted[0].UID != "user-1" {
		t.Errorf("expected uid user-1 on record, got %v", repo.inserted[0].UID)
	}
}

func TestWrite_AnonymousKeepsNilUID(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)

	rec := validRecord()
	claimed := "spoofed"
	rec.UID = &claimed

	if err := svc.Write(context.Background(), nil, []*HealthRecord{rec}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The verified identity always wins over whatever the payload claims.
	if repo.inserted[0].UID != nil {
		t.Errorf("expected nil uid for anonymous write, got %v", *repo.inserted[0].UID)
	}
}

func TestWrite_Validation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*HealthRecord)
		items  []*HealthRecord
		want   string
	}{
		{name: "empty batch", items: []*HealthRecord{}, want: "at least one"},
		{name: "missing sid", mutate: func(r *HealthRecord) { r.SID = "" }, want: "sid"},
		{name: "missing code", mutate: func(r *HealthRecord) { r.Code = "" }, want: "code"},
		{name: "missing ts", mutate: func(r *HealthRecord) { r.TS = time.Time{} }, want: "ts"},
		{name: "missing start", mutate: func(r *HealthRecord) { r.Start = time.Time{} }, want: "start"},
		{name: "missing finish", mutate: func(r *HealthRecord) { r.Finish = time.Time{} }, want: "finish"},
		{name: "negative duration", mutate: func(r *HealthRecord) { r.Duration = intPtr(-1) }, want: "duration"},
		{name: "negative energy", mutate: func(r *HealthRecord) { r.Energy = intPtr(-1) }, want: "energy"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &mockRepo{}
			svc := NewService(repo)

			items := tc.items
			if tc.mutate != nil {
				rec := validRecord()
				tc.mutate(rec)
				items = []*HealthRecord{rec}
			}

			err := svc.Write(context.Background(), nil, items)
			if err == nil {
				t.Fatal("expected validation error")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("expected *ValidationError, got %T", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected error mentioning %q, got %v", tc.want, err)
			}
			if len(repo.inserted) != 0 {
				t.Errorf("expected nothing inserted, got %d records", len(repo.inserted))
			}
		})
	}
}

func TestWrite_OptionalFieldsMayBeAbsent(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)

	rec := validRecord()
	rec.Duration = nil
	rec.Energy = nil

	if err := svc.Write(context.Background(), nil, []*HealthRecord{rec}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestListByUser_PropagatesRepoError(t *testing.T) {
	repoErr := errors.New("db down")
	svc := NewService(&mockRepo{err: repoErr})

	if _, err := svc.ListByUser(context.Background(), "user-1"); !errors.Is(err, repoErr) {
		t.Errorf("expected repo error, got %v", err)
	}
}
