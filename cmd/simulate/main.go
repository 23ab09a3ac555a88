package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiftmarket/slotswap/internal/config"
	"github.com/shiftmarket/slotswap/internal/db"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	CreateRatio  float64
	RespondRatio float64
	CancelRatio  float64
	ReadRatio    float64
	SlotLimit    int
	PostgresDSN  string
}

type SimSlot struct {
	ID      uuid.UUID
	OwnerID uuid.UUID
}

type SimSwap struct {
	ID            uuid.UUID
	RequesterID   uuid.UUID
	CounterpartID uuid.UUID
}

type DataPool struct {
	Slots []SimSlot
	mu    sync.RWMutex
	swaps []SimSwap
}

func (dp *DataPool) AddSwap(s SimSwap) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.swaps = append(dp.swaps, s)
}

func (dp *DataPool) GetRandomSwap() (SimSwap, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.swaps) == 0 {
		return SimSwap{}, false
	}
	return dp.swaps[rand.Intn(len(dp.swaps))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]

	p50Idx := len(latencies) * 50 / 100
	if p50Idx >= len(latencies) {
		p50Idx = len(latencies) - 1
	}
	p50 = latencies[p50Idx]

	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p50, p95
}

type Metrics struct {
	Create       OperationMetrics
	Respond      OperationMetrics
	Cancel       OperationMetrics
	ReadByID     OperationMetrics
	ListIncoming OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d create=%.2f respond=%.2f cancel=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.CreateRatio, cfg.RespondRatio, cfg.CancelRatio, cfg.ReadRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d swappable slots", len(dataPool.Slots))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDurationEnv("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		CreateRatio:  getFloat("SIM_CREATE_RATIO", 0.4),
		RespondRatio: getFloat("SIM_RESPOND_RATIO", 0.2),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		SlotLimit:    getInt("SIM_SLOT_LIMIT", 3000),
		PostgresDSN:  baseCfg.PostgresDSN,
	}

	// Normalize ratios
	total := cfg.CreateRatio + cfg.RespondRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.CreateRatio /= total
		cfg.RespondRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT id, owner_id FROM slots
		WHERE status = 'swappable' AND start_time > now()
		LIMIT $1
	`, cfg.SlotLimit)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s SimSlot
		if err := rows.Scan(&s.ID, &s.OwnerID); err != nil {
			return nil, err
		}
		dataPool.Slots = append(dataPool.Slots, s)
	}

	if len(dataPool.Slots) < 2 {
		return nil, fmt.Errorf("need at least 2 swappable slots, run cmd/seed first")
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.CreateRatio:
				s.doCreate(ctx, rng)
			case r < s.config.CreateRatio+s.config.RespondRatio:
				s.doRespond(ctx, rng)
			case r < s.config.CreateRatio+s.config.RespondRatio+s.config.CancelRatio:
				s.doCancel(ctx, rng)
			default:
				if rng.Intn(2) == 0 {
					s.doReadByID(ctx, rng)
				} else {
					s.doListIncoming(ctx, rng)
				}
			}
		}
	}
}

// pickPair selects two slots with different owners. Deliberately reuses a
// small slot window so concurrent workers collide on the same pairs and
// exercise the duplicate-pending and lock paths.
func (s *Simulator) pickPair(rng *rand.Rand) (SimSlot, SimSlot, bool) {
	window := len(s.pool.Slots)
	if window > 200 {
		window = 200
	}

	for i := 0; i < 10; i++ {
		a := s.pool.Slots[rng.Intn(window)]
		b := s.pool.Slots[rng.Intn(window)]
		if a.ID != b.ID && a.OwnerID != b.OwnerID {
			return a, b, true
		}
	}
	return SimSlot{}, SimSlot{}, false
}

func (s *Simulator) doCreate(ctx context.Context, rng *rand.Rand) {
	mine, theirs, ok := s.pickPair(rng)
	if !ok {
		return
	}

	start := time.Now()

	reqBody := map[string]string{
		"requester_id":  mine.OwnerID.String(),
		"my_slot_id":    mine.ID.String(),
		"their_slot_id": theirs.ID.String(),
		"message":       "simulated swap",
	}
	body, _ := json.Marshal(reqBody)

	req, _ := http.NewRequestWithContext(ctx, "POST", s.config.APIBaseURL+"/swaps", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusCreated {
			success = true
			var swapResp struct {
				ID            uuid.UUID `json:"id"`
				RequesterID   uuid.UUID `json:"requester_id"`
				CounterpartID uuid.UUID `json:"counterpart_id"`
			}
			bodyBytes, _ := io.ReadAll(resp.Body)
			if len(bodyBytes) > 0 {
				json.Unmarshal(bodyBytes, &swapResp)
				if swapResp.ID != uuid.Nil {
					s.pool.AddSwap(SimSwap{
						ID:            swapResp.ID,
						RequesterID:   swapResp.RequesterID,
						CounterpartID: swapResp.CounterpartID,
					})
				}
			}
		} else if resp.StatusCode == http.StatusConflict {
			conflict = true
		}
	}

	s.metrics.Create.Record(latency, success, conflict)
}

func (s *Simulator) doRespond(ctx context.Context, rng *rand.Rand) {
	sw, ok := s.pool.GetRandomSwap()
	if !ok {
		return
	}

	action := "accept"
	if rng.Intn(2) == 0 {
		action = "reject"
	}

	start := time.Now()

	reqBody := map[string]string{
		"responder_id": sw.CounterpartID.String(),
		"action":       action,
	}
	body, _ := json.Marshal(reqBody)

	req, _ := http.NewRequestWithContext(ctx, "POST",
		fmt.Sprintf("%s/swaps/%s/respond", s.config.APIBaseURL, sw.ID.String()), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			success = true
		} else if resp.StatusCode == http.StatusConflict {
			conflict = true
		}
	}

	s.metrics.Respond.Record(latency, success, conflict)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	sw, ok := s.pool.GetRandomSwap()
	if !ok {
		return
	}

	start := time.Now()

	reqBody := map[string]string{
		"requester_id": sw.RequesterID.String(),
	}
	body, _ := json.Marshal(reqBody)

	req, _ := http.NewRequestWithContext(ctx, "POST",
		fmt.Sprintf("%s/swaps/%s/cancel", s.config.APIBaseURL, sw.ID.String()), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			success = true
		} else if resp.StatusCode == http.StatusConflict {
			conflict = true
		}
	}

	s.metrics.Cancel.Record(latency, success, conflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	sw, ok := s.pool.GetRandomSwap()
	if !ok {
		return
	}

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("%s/swaps/%s", s.config.APIBaseURL, sw.ID.String()), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ReadByID.Record(latency, success, false)
}

func (s *Simulator) doListIncoming(ctx context.Context, rng *rand.Rand) {
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("%s/users/%s/swaps/incoming", s.config.APIBaseURL, slot.OwnerID.String()), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ListIncoming.Record(latency, success, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Create", &s.metrics.Create)
	printOperationReport("Respond", &s.metrics.Respond)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List incoming", &s.metrics.ListIncoming)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	errorCount := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if errorCount > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errorCount, float64(errorCount)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDurationEnv(key string, def time.Duration) time.Duration {
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
