// Package queue publishes training lifecycle events over NATS so embedding
// applications can follow progress without polling the session store.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/botkit-ai/nlu-engine/internal/domain"
	"github.com/botkit-ai/nlu-engine/internal/ports"
)

// NATSTrainingQueue implements the TrainingQueue port. Each session snapshot
// goes to nlu.training.<botID>.<language>.
type NATSTrainingQueue struct {
	conn *nats.Conn
	log  *zap.Logger
}

func NewNATSTrainingQueue(url string, log *zap.Logger) (ports.TrainingQueue, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Info("Successfully connected to NATS", zap.String("url", url))
	return &NATSTrainingQueue{
		conn: nc,
		log:  log,
	}, nil
}

func (q *NATSTrainingQueue) PublishProgress(ctx context.Context, session domain.TrainingSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("queue: encode session: %w", err)
	}
	subject := fmt.Sprintf("nlu.training.%s.%s", session.BotID, session.Language)
	if err := q.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("queue: publish %s: %w", subject, err)
	}
	return nil
}

func (q *NATSTrainingQueue) Close() error {
	q.conn.Close()
	return nil
}
