package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carespring/clinic-scheduling/internal/db"
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

	if err := db.Migrate(context.Background(), pool); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	serviceIDs, err := seedCareServices(context.Background(), pool)
	if err != nil {
		log.Fatalf("seed care services: %v", err)
	}
	professionalIDs, err := seedProfessionals(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed professionals: %v", err)
	}
	if err := seedWindows(context.Background(), pool, professionalIDs); err != nil {
		log.Fatalf("seed availability windows: %v", err)
	}
	patientIDs, err := seedPatients(context.Background(), pool, 2000)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedSubscriptions(context.Background(), pool, patientIDs, serviceIDs, 500); err != nil {
		log.Fatalf("seed subscriptions: %v", err)
	}

	log.Println("seed complete")
}

func seedCareServices(ctx context.Context, pool *pgxpool.Pool) ([]uuid.UUID, error) {
	services := []struct {
		name     string
		category string
		duration int
		price    int64
	}{
		{"Physiotherapy Session", "physiotherapy", 50, 12000},
		{"Initial Assessment", "physiotherapy", 60, 18000},
		{"Pilates Class", "pilates", 50, 9000},
		{"Nutrition Consultation", "nutrition", 45, 15000},
		{"Psychotherapy Session", "psychology", 50, 20000},
		{"Speech Therapy Session", "speech", 40, 11000},
	}

	log.Printf("seeding %d care services", len(services))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, len(services))
	for _, s := range services {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO care_services (id, name, category, duration_minutes, price_cents, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
		`, id, s.name, s.category, s.duration, s.price)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

func seedProfessionals(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d professionals", count)

	specialties := []string{
		"Physiotherapy",
		"Pilates",
		"Nutrition",
		"Psychology",
		"Speech Therapy",
		"Occupational Therapy",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO professionals (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, spec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("professionals seeded")
	return ids, nil
}

// seedWindows gives each professional a weekday morning and afternoon block.
func seedWindows(ctx context.Context, pool *pgxpool.Pool, professionalIDs []uuid.UUID) error {
	log.Printf("seeding windows for %d professionals", len(professionalIDs))

	blocks := [][2]int{
		{8 * 60, 12 * 60},
		{13 * 60, 18 * 60},
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, proID := range professionalIDs {
		for weekday := 1; weekday <= 5; weekday++ {
			for _, b := range blocks {
				_, err := tx.Exec(ctx, `
					INSERT INTO availability_windows (id, professional_id, weekday, start_minute, end_minute, created_at, updated_at)
					VALUES ($1, $2, $3, $4, $5, now(), now())
				`, uuid.New(), proID, weekday, b[0], b[1])
				if err != nil {
					return err
				}
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("windows seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d patients", count)

	const batchSize = 500
	ids := make([]uuid.UUID, 0, count)

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()
			phone := gofakeit.Phone()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, phone, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, id, name, email, phone)
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return ids, nil
}

func seedSubscriptions(ctx context.Context, pool *pgxpool.Pool, patientIDs, serviceIDs []uuid.UUID, count int) error {
	log.Printf("seeding %d subscriptions", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		patientID := patientIDs[gofakeit.Number(0, len(patientIDs)-1)]
		serviceID := serviceIDs[gofakeit.Number(0, len(serviceIDs)-1)]
		contracted := []int{4, 8, 10, 12}[gofakeit.Number(0, 3)]
		start := time.Now().AddDate(0, 0, -gofakeit.Number(0, 30))
		expiry := start.AddDate(0, gofakeit.Number(1, 6), 0)

		_, err := tx.Exec(ctx, `
			INSERT INTO subscriptions (id, patient_id, service_id, start_date, expiry_date, contracted_sessions, consumed_sessions, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, 0, 'active', now(), now())
		`, uuid.New(), patientID, serviceID, start, expiry, contracted)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("subscriptions seeded")
	return nil
}
