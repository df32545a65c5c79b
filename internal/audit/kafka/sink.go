package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/CherreraTEG/OneSite/internal/audit"
)

// Sink publishes login attempts as JSON, keyed by principal so one
// principal's attempts stay ordered within a partition.
type Sink struct {
	client *kgo.Client
	topic  string
}

// New connects to brokers. The client is lazy; no broker is contacted until
// the first produce or EnsureTopic call.
func New(brokers []string, topic string, opts ...kgo.Opt) (*Sink, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	opts = append([]kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
	}, opts...)
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Sink{client: client, topic: topic}, nil
}

// EnsureTopic creates the topic if it does not already exist.
func (s *Sink) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(s.client)
	resp, err := adm.CreateTopic(ctx, partitions, replicationFactor, nil, s.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", s.topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", s.topic, resp.Err)
	}
	return nil
}

func (s *Sink) Publish(ctx context.Context, attempt audit.LoginAttempt) error {
	payload, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshal login attempt: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(attempt.Principal),
		Value: payload,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce login attempt: %w", err)
	}
	return nil
}

// Name and Check make the sink a health component.
func (s *Sink) Name() string { return "kafka" }

func (s *Sink) Check(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *Sink) Close() {
	s.client.Close()
}
