package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/calendar-proxy-scheduling/internal/api"
	"github.com/hackgods/calendar-proxy-scheduling/internal/config"
	"github.com/hackgods/calendar-proxy-scheduling/internal/db"
	"github.com/hackgods/calendar-proxy-scheduling/internal/logging"
)

// SimConfig drives two phases: every worker racing for one slot, then a
// mixed booking and read load.
type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	CheckRatio   float64
	ReadRatio    float64
	DoctorLimit  int
	Date         string
	PostgresDSN  string
}

type DataPool struct {
	Doctors      []uuid.UUID
	mu           sync.RWMutex
	appointments map[uuid.UUID][]uuid.UUID
}

func (dp *DataPool) AddAppointment(doctor, id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments[doctor] = append(dp.appointments[doctor], id)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (uuid.UUID, uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	doctor := dp.Doctors[rng.Intn(len(dp.Doctors))]
	ids := dp.appointments[doctor]
	if len(ids) == 0 {
		return uuid.Nil, uuid.Nil, false
	}
	return doctor, ids[rng.Intn(len(ids))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

// Percentile returns the latency at p (0-100) across recorded calls.
func (om *OperationMetrics) Percentile(p int) time.Duration {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.latencies) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), om.latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

type Metrics struct {
	Race     OperationMetrics
	Booking  OperationMetrics
	Check    OperationMetrics
	Upcoming OperationMetrics
	Cancel   OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  *zap.Logger
}

var grid = []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30", "14:00", "14:30", "15:00", "15:30", "16:00", "16:30"}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		logging.Must("dev").Fatal("failed to load base config", zap.Error(err))
	}
	logger := logging.Must(baseCfg.Env).With(zap.String("service", "simulate"))
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	logger.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.String("date", cfg.Date),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal("load data pool", zap.Error(err))
	}
	logger.Info("data pool loaded", zap.Int("doctors", len(dataPool.Doctors)))

	gofakeit.Seed(time.Now().UnixNano())

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger,
	}

	sim.Race()
	sim.Run()
	sim.PrintReport()
}

func loadConfig(base config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:"+base.HTTPPort),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.4),
		CheckRatio:   getFloat("SIM_CHECK_RATIO", 0.3),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		DoctorLimit:  getInt("SIM_DOCTOR_LIMIT", 5),
		Date:         getEnv("SIM_DATE", nextWeekday(time.Now()).Format("2006-01-02")),
		PostgresDSN:  base.PostgresDSN,
	}

	total := cfg.BookingRatio + cfg.CheckRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CheckRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if _, err := time.Parse("2006-01-02", cfg.Date); err != nil {
		return fmt.Errorf("SIM_DATE must be YYYY-MM-DD: %w", err)
	}
	return nil
}

// loadDataPool picks doctors that have connected a calendar; the others
// would only ever answer not_connected.
func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	rows, err := pool.Query(ctx, `
		SELECT d.id FROM doctors d
		JOIN oauth_credentials c ON c.owner_id = d.id
		ORDER BY d.created_at
		LIMIT $1
	`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	defer rows.Close()

	dataPool := &DataPool{appointments: map[uuid.UUID][]uuid.UUID{}}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Doctors = append(dataPool.Doctors, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dataPool.Doctors) == 0 {
		return nil, fmt.Errorf("no doctors with a connected calendar")
	}
	return dataPool, nil
}

// Race releases every worker at once against the same doctor, date and time.
// Exactly one booking should win; the rest see slot_unavailable.
func (s *Simulator) Race() {
	doctor := s.pool.Doctors[0]
	clock := grid[len(grid)-1]
	start := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			s.book(context.Background(), doctor, clock, &s.metrics.Race)
		}()
	}
	close(start)
	wg.Wait()

	won := atomic.LoadInt64(&s.metrics.Race.Success)
	s.logger.Info("slot race complete",
		zap.Stringer("doctor_id", doctor),
		zap.String("time", clock),
		zap.Int64("won", won),
		zap.Int64("conflicts", atomic.LoadInt64(&s.metrics.Race.Conflict)),
	)
	if won > 1 {
		s.logger.Error("slot double booked", zap.Int64("bookings", won))
	}
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info("starting mixed load", zap.Duration("duration", s.config.Duration))

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		doctor := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.book(ctx, doctor, grid[rng.Intn(len(grid))], &s.metrics.Booking)
		case r < s.config.BookingRatio+s.config.CheckRatio:
			s.call(ctx, http.MethodPost, doctor, "/api/calendar/check-availability",
				map[string]any{"date": s.config.Date}, &s.metrics.Check, nil)
		case rng.Intn(4) == 0:
			if d, id, ok := s.pool.RandomAppointment(rng); ok {
				s.call(ctx, http.MethodPost, d, "/api/appointments/"+id.String()+"/cancel", nil, &s.metrics.Cancel, nil)
			}
		default:
			s.call(ctx, http.MethodGet, doctor, "/api/appointments/upcoming?days=14", nil, &s.metrics.Upcoming, nil)
		}
	}
}

func (s *Simulator) book(ctx context.Context, doctor uuid.UUID, clock string, om *OperationMetrics) {
	body := map[string]any{
		"patient_name":  gofakeit.Name(),
		"patient_phone": gofakeit.Phone(),
		"date":          s.config.Date,
		"time":          clock,
		"type":          "checkup",
	}

	var resp api.Response
	s.call(ctx, http.MethodPost, doctor, "/api/appointments", body, om, &resp)
	if resp.Success && resp.Appointment != nil {
		s.pool.AddAppointment(doctor, resp.Appointment.ID)
	}
}

func (s *Simulator) call(ctx context.Context, method string, doctor uuid.UUID, path string, body any, om *OperationMetrics, out any) {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(api.DoctorHeader, doctor.String())

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			om.Record(latency, 0)
		}
		return
	}
	defer resp.Body.Close()

	om.Record(latency, resp.StatusCode)
	if out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Date: %s\n", s.config.Date)
	fmt.Println()

	printOperationReport("Slot race", &s.metrics.Race)
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Check availability", &s.metrics.Check)
	printOperationReport("List upcoming", &s.metrics.Upcoming)
	printOperationReport("Cancel", &s.metrics.Cancel)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }
	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, pct(success))
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, pct(conflict))
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, pct(failed))
	}
	fmt.Printf("  Latency: p50=%s p95=%s p99=%s\n",
		om.Percentile(50).Round(time.Millisecond),
		om.Percentile(95).Round(time.Millisecond),
		om.Percentile(99).Round(time.Millisecond))
	fmt.Println()
}

func nextWeekday(t time.Time) time.Time {
	t = t.AddDate(0, 0, 1)
	for t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
