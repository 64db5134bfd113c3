// Package historian archives room events through a Redis queue so that a
// separate process can persist them to Postgres without touching the
// gameplay path.
package historian

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/overture-games/mandate/internal/room"
)

// DefaultQueueName is the Redis list (queue) name for archived room events.
var DefaultQueueName = "mandate_events"

// Publisher implements room.Archiver. PublishEvent enqueues onto an internal
// channel and returns immediately; a worker goroutine does the Redis writes.
type Publisher struct {
	log    *logrus.Logger
	client *redis.Client
	queue  string

	events chan room.EventRecord
	done   chan struct{}
}

// NewPublisher connects to Redis using REDIS_ADDR and REDIS_DB and starts the
// worker goroutine. Returns an error if Redis is unreachable.
func NewPublisher(log *logrus.Logger) (*Publisher, error) {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	p := &Publisher{
		log:    log,
		client: client,
		queue:  getEnv("HISTORIAN_QUEUE_NAME", DefaultQueueName),
		events: make(chan room.EventRecord, 1024),
		done:   make(chan struct{}),
	}
	go p.run()
	return p, nil
}

// PublishEvent never blocks. If the internal buffer is full the record is
// dropped and a warning is logged; gameplay always wins over archival.
func (p *Publisher) PublishEvent(rec room.EventRecord) {
	select {
	case p.events <- rec:
	default:
		p.log.WithFields(logrus.Fields{
			"room_id":   rec.RoomID,
			"event_seq": rec.EventSeq,
		}).Warn("historian buffer full, dropping event")
	}
}

// Close drains the buffer, stops the worker, and closes the Redis client.
func (p *Publisher) Close() error {
	close(p.events)
	<-p.done
	return p.client.Close()
}

func (p *Publisher) run() {
	defer close(p.done)
	ctx := context.Background()
	for rec := range p.events {
		data, err := json.Marshal(rec)
		if err != nil {
			p.log.Warnf("historian: marshal event: %v", err)
			continue
		}
		if err := p.client.RPush(ctx, p.queue, data).Err(); err != nil {
			p.log.Warnf("historian: RPush to %q: %v", p.queue, err)
		}
	}
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
