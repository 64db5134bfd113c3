package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/overture-games/mandate/internal/room"
)

var DB *pgxpool.Pool

// ConnectDB opens the shared pgx pool. DATABASE_URL wins when set; otherwise
// the connection string is composed from POSTGRES_USER, POSTGRES_PASSWORD,
// PG_HOST, PG_PORT and PG_DATABASE.
func ConnectDB() {
	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		connStr = fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s",
			os.Getenv("POSTGRES_USER"),
			os.Getenv("POSTGRES_PASSWORD"),
			os.Getenv("PG_HOST"),
			os.Getenv("PG_PORT"),
			os.Getenv("PG_DATABASE"),
		)
	}

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		log.Fatalf("unable to parse pgx config: %v", err)
	}

	DB, err = pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		log.Fatalf("unable to create pgx pool: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := DB.Ping(ctx); err != nil {
		log.Fatalf("db ping error: %v", err)
	}

	log.Printf("Connected to database at %s", connStr)
}

// InsertEvents writes a batch of archived room events in a single
// transaction. Each match row is upserted so events can arrive before the
// match has formally ended; MATCH_RESULT finalizes the row.
func InsertEvents(ctx context.Context, pool *pgxpool.Pool, recs []room.EventRecord) error {
	return beginTxFunc(ctx, pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range recs {
			if err := insertEventTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insertEventTx: %w", err)
			}
		}
		return nil
	})
}

func insertEventTx(ctx context.Context, tx pgx.Tx, rec room.EventRecord) error {
	if rec.MatchID != "" {
		upsertMatchQ := `
			INSERT INTO matches (id, room_id, status, start_time)
			VALUES ($1, $2, 'in_progress', NOW())
			ON CONFLICT (id) DO NOTHING
		`
		if _, err := tx.Exec(ctx, upsertMatchQ, rec.MatchID, rec.RoomID); err != nil {
			return err
		}
	}

	eventInsertQ := `
		INSERT INTO room_events (
			room_id, match_id, event_seq, event_type, payload, emitted_at
		) VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6)
		ON CONFLICT (room_id, event_seq) DO NOTHING
	`
	_, err := tx.Exec(ctx, eventInsertQ,
		rec.RoomID, rec.MatchID, rec.EventSeq, rec.Type, []byte(rec.Payload), rec.EmittedAt,
	)
	if err != nil {
		return err
	}

	if rec.Type == "MATCH_RESULT" && rec.MatchID != "" {
		finalizeQ := `
			UPDATE matches
			SET status = 'completed', end_time = NOW()
			WHERE id = $1 AND status = 'in_progress'
		`
		if _, err := tx.Exec(ctx, finalizeQ, rec.MatchID); err != nil {
			return err
		}
	}
	return nil
}

// beginTxFunc starts a transaction on the pool, calls f with it, and commits
// or rolls back depending on the error result.
func beginTxFunc(ctx context.Context, pool *pgxpool.Pool, txOptions pgx.TxOptions, f func(tx pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, txOptions)
	if err != nil {
		return err
	}
	if err := f(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
