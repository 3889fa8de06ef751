package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hackgods/calendar-proxy-scheduling/internal/appointment"
	"github.com/hackgods/calendar-proxy-scheduling/internal/config"
	"github.com/hackgods/calendar-proxy-scheduling/internal/db"
	"github.com/hackgods/calendar-proxy-scheduling/internal/logging"
)

func main() {
	_ = godotenv.Load()

	logger := logging.Must(os.Getenv("APP_ENV")).With(zap.String("service", "seed"))
	defer func() { _ = logger.Sync() }()
	logger.Info("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	gofakeit.Seed(time.Now().UnixNano())

	repo := appointment.NewPgRepository(pool, config.DefaultAvailability())
	doctors := getInt("SEED_DOCTORS", 10)
	patients := getInt("SEED_PATIENTS_PER_DOCTOR", 50)

	for i := 0; i < doctors; i++ {
		doctor, err := seedDoctor(ctx, repo)
		if err != nil {
			logger.Fatal("seed doctor", zap.Error(err))
		}
		if err := seedPatients(ctx, repo, doctor, patients); err != nil {
			logger.Fatal("seed patients", zap.Stringer("doctor_id", doctor.ID), zap.Error(err))
		}
		logger.Info("doctor seeded",
			zap.Stringer("doctor_id", doctor.ID),
			zap.String("name", doctor.Name),
			zap.String("timezone", doctor.Availability.Timezone),
			zap.Int("patients", patients),
		)
	}

	logger.Info("seed complete", zap.Int("doctors", doctors))
}

var (
	timezones = []string{"America/New_York", "America/Chicago", "America/Denver", "America/Los_Angeles"}
	weekdays  = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
	lunch     = config.ClockRange{Start: config.ClockTime{Hour: 12}, End: config.ClockTime{Hour: 13}}
)

// seedDoctor creates a doctor with randomized but plausible office hours.
func seedDoctor(ctx context.Context, repo *appointment.PgRepository) (*appointment.Doctor, error) {
	days := weekdays
	if gofakeit.Bool() {
		days = append(append([]time.Weekday{}, weekdays...), time.Saturday)
	}

	var breaks []config.ClockRange
	if gofakeit.Bool() {
		breaks = []config.ClockRange{lunch}
	}

	avail, err := config.NewAvailability(
		timezones[gofakeit.Number(0, len(timezones)-1)],
		days,
		config.ClockTime{Hour: gofakeit.Number(8, 9)},
		config.ClockTime{Hour: gofakeit.Number(16, 18)},
		time.Duration(gofakeit.RandomInt([]int{15, 30, 45, 60}))*time.Minute,
		time.Duration(gofakeit.RandomInt([]int{0, 0, 10, 15}))*time.Minute,
		breaks,
	)
	if err != nil {
		return nil, err
	}

	email := gofakeit.Email()
	return repo.UpsertDoctor(ctx, appointment.Doctor{
		Name:         "Dr. " + gofakeit.LastName(),
		Email:        &email,
		CalendarID:   "primary",
		Availability: avail,
	})
}

func seedPatients(ctx context.Context, repo *appointment.PgRepository, doctor *appointment.Doctor, count int) error {
	for i := 0; i < count; i++ {
		email := gofakeit.Email()
		_, err := repo.UpsertPatient(ctx, appointment.Patient{
			DoctorID: doctor.ID,
			Name:     gofakeit.Name(),
			Phone:    appointment.NormalizePhone(gofakeit.Phone()),
			Email:    &email,
		})
		if err != nil {
			return fmt.Errorf("patient %d: %w", i, err)
		}
	}
	return nil
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
