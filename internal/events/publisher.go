package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kaidolaptops/price-scraper/internal/models"
	"github.com/redis/go-redis/v9"
)

// EventType represents the type of event
type EventType string

const (
	EventTypePriceFetched     EventType = "PRICE_FETCHED"
	EventTypePriceFetchFailed EventType = "PRICE_FETCH_FAILED"
)

const DefaultStream = "stream:laptop_prices"

// RedisClient is the part of the redis client the publisher needs.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

// PricePayload is the JSON body attached to every stream entry.
type PricePayload struct {
	EventID      string         `json:"event_id"`
	EventType    EventType      `json:"event_type"`
	Timestamp    time.Time      `json:"timestamp"`
	URL          string         `json:"laptoplink"`
	Company      string         `json:"company"`
	IsExactMatch bool           `json:"isExactMatch"`
	Price        int            `json:"price"`
	Found        bool           `json:"found"`
	Failure      models.Failure `json:"failure,omitempty"`
}

// Publisher appends price results to a Redis stream.
type Publisher struct {
	redis  RedisClient
	stream string
	logger *slog.Logger
}

func NewPublisher(client RedisClient, stream string, logger *slog.Logger) *Publisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &Publisher{
		redis:  client,
		stream: stream,
		logger: logger.With("component", "event_publisher"),
	}
}

func NewPayload(res models.PriceResult) *PricePayload {
	eventType := EventTypePriceFetched
	if !res.Found {
		eventType = EventTypePriceFetchFailed
	}

	ts := res.FetchedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	return &PricePayload{
		EventID:      uuid.New().String(),
		EventType:    eventType,
		Timestamp:    ts.UTC(),
		URL:          res.URL,
		Company:      res.Company,
		IsExactMatch: res.IsExactMatch,
		Price:        res.Price,
		Found:        res.Found,
		Failure:      res.Failure,
	}
}

// Publish adds a single result to the stream and returns the entry ID.
func (p *Publisher) Publish(ctx context.Context, res models.PriceResult) (string, error) {
	payload := NewPayload(res)

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	id, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"event_id":   payload.EventID,
			"event_type": string(payload.EventType),
			"company":    payload.Company,
			"url":        payload.URL,
			"price":      strconv.Itoa(payload.Price),
			"payload":    string(body),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish to stream %s: %w", p.stream, err)
	}

	p.logger.Debug("event published",
		"stream", p.stream,
		"stream_id", id,
		"event_type", payload.EventType,
		"url", payload.URL)

	return id, nil
}

// Record publishes every result of a batch, continuing past failures.
func (p *Publisher) Record(ctx context.Context, results []models.PriceResult) error {
	var firstErr error
	failed := 0

	for _, res := range results {
		if _, err := p.Publish(ctx, res); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if firstErr != nil {
		p.logger.Error("failed to publish price events", "failed", failed, "total", len(results), "error", firstErr)
		return fmt.Errorf("%d of %d events not published: %w", failed, len(results), firstErr)
	}

	return nil
}
