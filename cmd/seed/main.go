package main

import (
	"context"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logger"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	lg, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = lg.Sync() }()
	lg.Info("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.PostgresMaxConn)
	if err != nil {
		lg.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	professionals, err := seedProfessionals(ctx, pool, faker, 20)
	if err != nil {
		lg.Fatal("seed professionals", zap.Error(err))
	}
	lg.Info("professionals seeded", zap.Int("count", len(professionals)))

	if err := seedServices(ctx, pool, faker); err != nil {
		lg.Fatal("seed services", zap.Error(err))
	}
	lg.Info("services seeded")

	if err := seedPatients(ctx, pool, faker, 2000, lg); err != nil {
		lg.Fatal("seed patients", zap.Error(err))
	}

	windows := schedule.NewStore(schedule.NewPgWindowRepository(pool), nil, lg.Named("windows"))
	count, err := seedWindows(ctx, windows, faker, professionals)
	if err != nil {
		lg.Fatal("seed windows", zap.Error(err))
	}
	lg.Info("weekly windows seeded", zap.Int("count", count))

	lg.Info("seed complete")
}

var specialties = []string{
	"General Practice",
	"Dermatology",
	"Cardiology",
	"Pediatrics",
	"Physiotherapy",
	"Nutrition",
	"Psychology",
	"Dentistry",
}

func seedProfessionals(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, count)
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for range count {
			id := uuid.New()
			_, err := tx.Exec(ctx, `
				INSERT INTO professionals (id, name, specialty, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, faker.Name(), specialties[faker.Number(0, len(specialties)-1)])
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	return ids, err
}

func seedServices(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker) error {
	services := []struct {
		name     string
		duration int
	}{
		{"Consultation", 30},
		{"Follow-up", 20},
		{"Extended assessment", 60},
		{"Procedure", 45},
	}

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for _, s := range services {
			price := faker.Number(40, 250) * 100
			_, err := tx.Exec(ctx, `
				INSERT INTO services (id, name, duration_minutes, price_cents, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, uuid.New(), s.name, s.duration, price)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, lg *zap.Logger) error {
	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		batch := &pgx.Batch{}
		for range end - offset {
			batch.Queue(`
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, uuid.New(), faker.Name(), faker.Email())
		}
		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}

		lg.Info("patients seeded", zap.Int("done", end), zap.Int("total", count))
	}
	return nil
}

// seedWindows gives every professional a weekday schedule: a morning block
// and, for most of them, an afternoon block in the same room.
func seedWindows(ctx context.Context, store *schedule.Store, faker *gofakeit.Faker, professionals []uuid.UUID) (int, error) {
	count := 0
	for _, prof := range professionals {
		room := uuid.New()
		morningStart := schedule.Clock(faker.Number(7, 9), 0)

		for day := schedule.Monday; day <= schedule.Friday; day++ {
			blocks := [][2]schedule.ClockTime{{morningStart, schedule.Clock(12, 0)}}
			if faker.Number(1, 10) > 3 {
				blocks = append(blocks, [2]schedule.ClockTime{schedule.Clock(13, 0), schedule.Clock(faker.Number(16, 19), 0)})
			}

			for _, b := range blocks {
				_, err := store.AddWindow(ctx, schedule.Window{
					ProfessionalID: prof,
					Day:            day,
					Start:          b[0],
					End:            b[1],
					RoomID:         room,
				})
				if err != nil {
					return count, err
				}
				count++
			}
		}
	}
	return count, nil
}
