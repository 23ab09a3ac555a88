package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiftmarket/slotswap/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	userIDs, err := seedUsers(context.Background(), pool, 500)
	if err != nil {
		log.Fatalf("seed users: %v", err)
	}
	if err := seedSlots(context.Background(), pool, userIDs, 14); err != nil {
		log.Fatalf("seed slots: %v", err)
	}

	log.Println("seed complete")
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d users", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		email := gofakeit.Email()

		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, name, email, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, email)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("users seeded")
	return ids, nil
}

func seedSlots(ctx context.Context, pool *pgxpool.Pool, userIDs []uuid.UUID, perUser int) error {
	log.Printf("seeding %d slots per user", perUser)

	categories := []string{
		"on-call",
		"support-rotation",
		"front-desk",
		"night-shift",
		"weekend-cover",
		"standby",
	}

	const batchSize = 100

	for offset := 0; offset < len(userIDs); offset += batchSize {
		end := offset + batchSize
		if end > len(userIDs) {
			end = len(userIDs)
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for _, ownerID := range userIDs[offset:end] {
			for i := 0; i < perUser; i++ {
				id := uuid.New()
				start := time.Now().
					AddDate(0, 0, gofakeit.Number(1, 60)).
					Truncate(time.Hour).
					Add(time.Duration(gofakeit.Number(8, 20)) * time.Hour)
				duration := time.Duration(gofakeit.Number(1, 4)) * time.Hour
				category := categories[gofakeit.Number(0, len(categories)-1)]

				// Roughly half the slots go up for swap right away.
				status := "busy"
				if gofakeit.Bool() {
					status = "swappable"
				}

				_, err := tx.Exec(ctx, `
					INSERT INTO slots (id, owner_id, original_owner_id, start_time, end_time, status, category, created_at, updated_at)
					VALUES ($1, $2, $2, $3, $4, $5, $6, now(), now())
				`, id, ownerID, start, start.Add(duration), status, category)
				if err != nil {
					_ = tx.Rollback(ctx)
					return err
				}
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("slots seeded for users: %d/%d", end, len(userIDs))
	}

	log.Println("slots seeded")
	return nil
}
