package metriport

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/datasequence/datasequence/internal/platform/observability"
)

type Service struct {
	repo       Repository
	normalizer *Normalizer
	log        zerolog.Logger
}

func NewService(repo Repository, normalizer *Normalizer, log zerolog.Logger) *Service {
	return &Service{repo: repo, normalizer: normalizer, log: log}
}

// ProcessMessage dispatches every event in a webhook delivery. Activity
// events are normalized and upserted; every other kind is archived verbatim
// for manual processing.
func (s *Service) ProcessMessage(ctx context.Context, msg *Message) error {
	for _, user := range msg.Users {
		for kind, payload := range user.Events {
			switch kind {
			case "activity":
				if err := s.processActivity(ctx, user.UserID, payload); err != nil {
					return err
				}
			default:
				if err := s.archive(ctx, user.UserID, kind, payload); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (s *Service) processActivity(ctx context.Context, userID string, payload json.RawMessage) error {
	var activities []Activity
	if err := json.Unmarshal(payload, &activities); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("malformed activity payload, archiving")
		observability.RecordWebhookEvent(observability.OutcomeSkipped)
		return s.archive(ctx, userID, "activity", payload)
	}

	recs := s.normalizer.Normalize(userID, activities)
	for _, rec := range recs {
		if err := s.repo.Upsert(ctx, rec); err != nil {
			return err
		}
		observability.RecordWebhookEvent(observability.OutcomeNormalized)
	}
	return nil
}

func (s *Service) archive(ctx context.Context, userID, kind string, payload json.RawMessage) error {
	wrapped, err := json.Marshal(map[string]json.RawMessage{kind: payload})
	if err != nil {
		return err
	}
	err = s.repo.AppendUnhandled(ctx, &UnhandledPayload{
		TS:   time.Now(),
		UID:  userID,
		Data: wrapped,
	})
	if err != nil {
		return err
	}
	observability.RecordWebhookEvent(observability.OutcomeUnhandled)
	return nil
}

// ListByUser returns a Metriport user's records, newest first.
func (s *Service) ListByUser(ctx context.Context, uid string) ([]*ActivityRecord, error) {
	return s.repo.ListByUser(ctx, uid)
}
