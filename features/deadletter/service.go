package deadletter

import (
	"context"
	"encoding/json"
)

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo Repository
	pub  EventPublisher
}

func NewService(repo Repository, pub EventPublisher) *Service {
	return &Service{repo: repo, pub: pub}
}

// Save parks a message. Called from the consumer guard.
func (s *Service) Save(ctx context.Context, topic, stage string, body []byte, reason string, attempts uint16) error {
	return s.repo.Save(ctx, &Message{
		Topic:    topic,
		Stage:    stage,
		Payload:  json.RawMessage(body),
		Reason:   reason,
		Attempts: int(attempts),
	})
}

func (s *Service) List(ctx context.Context) ([]Message, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (*Message, error) {
	return s.repo.Get(ctx, id)
}

// Retry republishes the parked payload to its original topic and removes it.
func (s *Service) Retry(ctx context.Context, id string) error {
	msg, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.pub.Publish(msg.Topic, msg.Payload); err != nil {
		return err
	}

	return s.repo.Delete(ctx, id)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
