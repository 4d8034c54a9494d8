package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
	"github.com/google/uuid"

	"github.com/rwdlab/rwdsim/internal/shared/config"
)

// Event types emitted over a simulation run's lifecycle.
const (
	EventRunStarted      = "simulation.run_started"
	EventRunCompleted    = "simulation.run_completed"
	EventRunFailed       = "simulation.run_failed"
	EventCohortPublished = "simulation.cohort_published"
)

// Event is a run-lifecycle event.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// NewEvent creates an event with a fresh ID and timestamp.
func NewEvent(eventType, source string, data any) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// Bus publishes run-lifecycle events. Publishing is an observability side
// effect: callers behave identically against the noop bus.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	Health() error
	Close()
}

// EsdbBus is an EventStoreDB-backed bus.
type EsdbBus struct {
	client *esdb.Client
	prefix string
}

var _ Bus = (*EsdbBus)(nil)

// NewBus connects to EventStoreDB.
func NewBus(cfg config.EventStoreConfig) (*EsdbBus, error) {
	settings, err := esdb.ParseConnectionString(buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	client, err := esdb.NewClient(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create EventStoreDB client: %w", err)
	}

	return &EsdbBus{client: client, prefix: "rwdsim"}, nil
}

func buildConnectionString(cfg config.EventStoreConfig) string {
	var auth string
	if cfg.Username != "" && cfg.Password != "" {
		auth = fmt.Sprintf("%s:%s@", cfg.Username, cfg.Password)
	}
	params := ""
	if cfg.Insecure {
		params = "?tls=false&tlsVerifyCert=false"
	}
	return fmt.Sprintf("esdb://%s%s:%d%s", auth, cfg.Host, cfg.Port, params)
}

// Publish appends the event to a stream derived from its type:
// simulation.run_started -> rwdsim-simulation-run_started.
func (b *EsdbBus) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	stream := fmt.Sprintf("%s-%s", b.prefix, normalizeEventType(event.Type))

	eventID, err := uuid.Parse(event.ID)
	if err != nil {
		eventID = uuid.New()
	}

	esdbEvent := esdb.EventData{
		EventID:     eventID,
		EventType:   event.Type,
		ContentType: esdb.ContentTypeJson,
		Data:        data,
	}

	_, err = b.client.AppendToStream(ctx, stream, esdb.AppendToStreamOptions{
		ExpectedRevision: esdb.Any{},
	}, esdbEvent)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

func normalizeEventType(eventType string) string {
	result := make([]byte, len(eventType))
	for i := 0; i < len(eventType); i++ {
		if eventType[i] == '.' {
			result[i] = '-'
		} else {
			result[i] = eventType[i]
		}
	}
	return string(result)
}

// Health checks the EventStoreDB connection.
func (b *EsdbBus) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := b.client.ReadStream(ctx, "$streams", esdb.ReadStreamOptions{
		From:      esdb.Start{},
		Direction: esdb.Forwards,
	}, 1)
	if err != nil {
		return fmt.Errorf("EventStoreDB health check failed: %w", err)
	}
	defer stream.Close()

	return nil
}

// Close closes the underlying client.
func (b *EsdbBus) Close() {
	if b.client != nil {
		b.client.Close()
	}
}

// NoopBus discards all events. Used when no event store is configured.
type NoopBus struct{}

var _ Bus = NoopBus{}

func (NoopBus) Publish(ctx context.Context, event Event) error { return nil }
func (NoopBus) Health() error                                  { return nil }
func (NoopBus) Close()                                         {}
