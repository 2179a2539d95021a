package fetch

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"riskwatch/internal/config"
	"riskwatch/internal/model"
)

const defaultKafkaRowLimit = 10000

// KafkaSource drains up to RowLimit JSON event rows from a topic as
// one batch. The engine runs after collection, so this reads a bounded
// slice of the queue and stops; it is not a streaming consumer.
type KafkaSource struct {
	cfg    config.KafkaConfig
	logger *slog.Logger
}

func NewKafkaSource(cfg config.KafkaConfig, logger *slog.Logger) *KafkaSource {
	return &KafkaSource{cfg: cfg, logger: logger}
}

func (s *KafkaSource) Name() string { return "kafka:" + s.cfg.Topic }

func (s *KafkaSource) Fetch(ctx context.Context, emit func(model.Event) error) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  s.cfg.Brokers,
		Topic:    s.cfg.Topic,
		GroupID:  s.cfg.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	limit := s.cfg.RowLimit
	if limit <= 0 {
		limit = defaultKafkaRowLimit
	}
	for i := 0; i < limit; i++ {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		var ev model.Event
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			if s.logger != nil {
				s.logger.Warn("kafka row is not a valid event, skipped", "topic", s.cfg.Topic, "offset", m.Offset, "err", err)
			}
			continue
		}
		if err := emit(ev); err != nil {
			return err
		}
	}
	return nil
}
