package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logger"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

type SimConfig struct {
	APIBaseURL        string
	Workers           int // concurrent bookers per slot
	Professionals     int
	DaysAhead         int
	CancelRatio       float64
	RescheduleRatio   float64
	PatientLimit      int
	RequestTimeout    time.Duration
	PostgresDSN       string
	PostgresMaxConns  int32
	SlotLengthMinutes int
}

// target is one professional-day whose free slots are raced for.
type target struct {
	ProfessionalID uuid.UUID
	Date           string
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err == nil && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case err == nil && status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, lo, hi, p50, p95 time.Duration) {
	om.mu.Lock()
	latencies := slices.Clone(om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0, 0
	}
	slices.Sort(latencies)

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	lo = latencies[0]
	hi = latencies[len(latencies)-1]
	p50 = latencies[min(len(latencies)*50/100, len(latencies)-1)]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]
	return avg, lo, hi, p50, p95
}

type Metrics struct {
	Booking    OperationMetrics
	Cancel     OperationMetrics
	Reschedule OperationMetrics
}

type Simulator struct {
	config   SimConfig
	client   *http.Client
	logger   *zap.Logger
	patients []uuid.UUID
	metrics  Metrics

	// double bookings seen during races or the final audit
	violations []string
}

func main() {
	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	lg, err := logger.New("development", "info")
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	lg.Info("simulator starting",
		zap.String("api", cfg.APIBaseURL),
		zap.Int("workers_per_slot", cfg.Workers),
		zap.Int("professionals", cfg.Professionals),
		zap.Int("days_ahead", cfg.DaysAhead),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	if err != nil {
		lg.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	patients, targets, err := loadData(ctx, pool, cfg)
	if err != nil {
		lg.Fatal("load data", zap.Error(err))
	}
	lg.Info("loaded data", zap.Int("patients", len(patients)), zap.Int("targets", len(targets)))

	sim := &Simulator{
		config:   cfg,
		client:   &http.Client{Timeout: cfg.RequestTimeout},
		logger:   lg,
		patients: patients,
	}

	start := time.Now()
	for _, t := range targets {
		sim.raceDay(context.Background(), t)
	}
	elapsed := time.Since(start)

	for _, t := range targets {
		if err := sim.audit(context.Background(), t); err != nil {
			lg.Error("audit failed", zap.String("professional_id", t.ProfessionalID.String()), zap.Error(err))
		}
	}

	sim.PrintReport(elapsed)
	if len(sim.violations) > 0 {
		os.Exit(1)
	}
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	return SimConfig{
		APIBaseURL:        getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Workers:           getInt("SIM_WORKERS", 10),
		Professionals:     getInt("SIM_PROFESSIONALS", 5),
		DaysAhead:         getInt("SIM_DAYS_AHEAD", 3),
		CancelRatio:       getFloat("SIM_CANCEL_RATIO", 0.2),
		RescheduleRatio:   getFloat("SIM_RESCHEDULE_RATIO", 0.2),
		PatientLimit:      getInt("SIM_PATIENT_LIMIT", 2000),
		RequestTimeout:    getDuration("SIM_REQUEST_TIMEOUT", 10*time.Second),
		PostgresDSN:       baseCfg.PostgresDSN,
		PostgresMaxConns:  baseCfg.PostgresMaxConn,
		SlotLengthMinutes: baseCfg.SlotLengthMinutes,
	}
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers < 2 {
		return fmt.Errorf("SIM_WORKERS must be >= 2 to produce contention")
	}
	if cfg.Professionals <= 0 || cfg.DaysAhead <= 0 {
		return fmt.Errorf("SIM_PROFESSIONALS and SIM_DAYS_AHEAD must be > 0")
	}
	if cfg.CancelRatio+cfg.RescheduleRatio > 1 {
		return fmt.Errorf("SIM_CANCEL_RATIO + SIM_RESCHEDULE_RATIO must be <= 1")
	}
	return nil
}

func loadData(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) ([]uuid.UUID, []target, error) {
	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("load patients: %w", err)
	}
	patients, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, nil, fmt.Errorf("load patients: %w", err)
	}

	rows, err = pool.Query(ctx, `
		SELECT DISTINCT professional_id FROM weekly_windows
		ORDER BY professional_id
		LIMIT $1
	`, cfg.Professionals)
	if err != nil {
		return nil, nil, fmt.Errorf("load professionals: %w", err)
	}
	professionals, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, nil, fmt.Errorf("load professionals: %w", err)
	}

	if len(patients) == 0 {
		return nil, nil, fmt.Errorf("no patients loaded")
	}
	if len(professionals) == 0 {
		return nil, nil, fmt.Errorf("no professionals with weekly windows")
	}

	var targets []target
	today := schedule.Date(time.Now())
	for d := 1; d <= cfg.DaysAhead; d++ {
		date := today.AddDate(0, 0, d).Format(time.DateOnly)
		for _, p := range professionals {
			targets = append(targets, target{ProfessionalID: p, Date: date})
		}
	}
	return patients, targets, nil
}

type slotsResponse struct {
	Slots []struct {
		Time string `json:"time"`
	} `json:"slots"`
}

type appointmentResponse struct {
	ID          uuid.UUID `json:"id"`
	ScheduledAt string    `json:"scheduled_at"`
	Status      string    `json:"status"`
}

// raceDay lists the free slots of t and has every worker try to book each
// one at the same moment. Winners then cancel or reschedule at random so
// freed slots get raced for too.
func (s *Simulator) raceDay(ctx context.Context, t target) {
	var free slotsResponse
	path := fmt.Sprintf("/professionals/%s/slots?date=%s&length=%d", t.ProfessionalID, t.Date, s.config.SlotLengthMinutes)
	if _, err := s.getJSON(ctx, path, &free); err != nil {
		s.logger.Warn("list slots failed", zap.String("professional_id", t.ProfessionalID.String()), zap.Error(err))
		return
	}

	var freed []string
	for _, slot := range free.Slots {
		at := t.Date + "T" + slot.Time
		winner := s.race(ctx, t.ProfessionalID, at)
		if winner == nil {
			continue
		}

		switch r := rand.Float64(); {
		case r < s.config.CancelRatio:
			s.cancel(ctx, winner.ID)
			freed = append(freed, at)
		case r < s.config.CancelRatio+s.config.RescheduleRatio && len(freed) > 0:
			// move onto a slot freed earlier; other workers race for it too
			dest := freed[len(freed)-1]
			freed = freed[:len(freed)-1]
			s.rescheduleRace(ctx, t.ProfessionalID, winner.ID, dest)
		}
	}
}

func (s *Simulator) race(ctx context.Context, professionalID uuid.UUID, at string) *appointmentResponse {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []*appointmentResponse
		gate    = make(chan struct{})
	)

	for range s.config.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-gate
			if appt := s.book(ctx, professionalID, at); appt != nil {
				mu.Lock()
				winners = append(winners, appt)
				mu.Unlock()
			}
		}()
	}
	close(gate)
	wg.Wait()

	if len(winners) > 1 {
		s.violations = append(s.violations, fmt.Sprintf("%s at %s booked %d times during race", professionalID, at, len(winners)))
	}
	if len(winners) == 0 {
		return nil
	}
	return winners[0]
}

func (s *Simulator) book(ctx context.Context, professionalID uuid.UUID, at string) *appointmentResponse {
	body := map[string]string{
		"patient_id":      s.patients[rand.IntN(len(s.patients))].String(),
		"professional_id": professionalID.String(),
		"scheduled_at":    at,
	}

	var appt appointmentResponse
	start := time.Now()
	status, err := s.postJSON(ctx, "/appointments", body, &appt)
	s.metrics.Booking.Record(time.Since(start), status, err)
	if err != nil || status != http.StatusCreated {
		return nil
	}
	return &appt
}

func (s *Simulator) cancel(ctx context.Context, id uuid.UUID) {
	start := time.Now()
	status, err := s.postJSON(ctx, "/appointments/"+id.String()+"/cancel", nil, nil)
	s.metrics.Cancel.Record(time.Since(start), status, err)
}

// rescheduleRace moves id onto at while Workers-1 fresh bookings compete for
// the same slot.
func (s *Simulator) rescheduleRace(ctx context.Context, professionalID, id uuid.UUID, at string) {
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
		gate = make(chan struct{})
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-gate
		start := time.Now()
		status, err := s.postJSON(ctx, "/appointments/"+id.String()+"/reschedule", map[string]string{"scheduled_at": at}, nil)
		s.metrics.Reschedule.Record(time.Since(start), status, err)
		if err == nil && status == http.StatusOK {
			wins.Add(1)
		}
	}()
	for range s.config.Workers - 1 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-gate
			if s.book(ctx, professionalID, at) != nil {
				wins.Add(1)
			}
		}()
	}
	close(gate)
	wg.Wait()

	if n := wins.Load(); n > 1 {
		s.violations = append(s.violations, fmt.Sprintf("%s at %s taken %d times during reschedule race", professionalID, at, n))
	}
}

// audit re-reads the day and checks that no date-time holds more than one
// blocking appointment.
func (s *Simulator) audit(ctx context.Context, t target) error {
	var list struct {
		Appointments []appointmentResponse `json:"appointments"`
	}
	path := fmt.Sprintf("/professionals/%s/appointments?date=%s", t.ProfessionalID, t.Date)
	if _, err := s.getJSON(ctx, path, &list); err != nil {
		return err
	}

	blocking := map[string]int{}
	for _, a := range list.Appointments {
		if a.Status == "reserved" || a.Status == "rescheduled" {
			blocking[a.ScheduledAt]++
		}
	}
	for at, n := range blocking {
		if n > 1 {
			s.violations = append(s.violations, fmt.Sprintf("%s at %s has %d blocking appointments", t.ProfessionalID, at, n))
		}
	}
	return nil
}

func (s *Simulator) getJSON(ctx context.Context, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.APIBaseURL+path, nil)
	if err != nil {
		return 0, err
	}
	return s.do(req, out)
}

func (s *Simulator) postJSON(ctx context.Context, path string, body, out any) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req, out)
}

func (s *Simulator) do(req *http.Request, out any) (int, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return resp.StatusCode, fmt.Errorf("%s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s: %w", req.URL.Path, err)
		}
	}
	return resp.StatusCode, nil
}

func (s *Simulator) PrintReport(elapsed time.Duration) {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Elapsed: %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Workers per slot: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Reschedule", &s.metrics.Reschedule)

	if len(s.violations) == 0 {
		fmt.Println("Double bookings: none")
		return
	}
	fmt.Printf("Double bookings: %d\n", len(s.violations))
	for _, v := range s.violations {
		fmt.Printf("  %s\n", v)
	}
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, lo, hi, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), lo.Round(time.Millisecond), hi.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
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
