package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/slotwise/booking-engine/internal/db"
)

// The simulator fires concurrent booking requests at the API and verifies
// the engine's core promise under contention: for every contested
// provider+timestamp, exactly one request wins and the rest get 409s.

type SimConfig struct {
	APIBaseURL  string
	Workers     int
	Rounds      int
	Contention  int // workers aimed at the SAME provider+slot per round
	PostgresDSN string
}

type DataPool struct {
	Providers  []uuid.UUID
	Requesters []uuid.UUID
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	mu        sync.Mutex
	Latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status == http.StatusCreated:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	p50 = latencies[len(latencies)*50/100]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]
	max = latencies[len(latencies)-1]
	return avg, p50, p95, max
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := SimConfig{PostgresDSN: os.Getenv("POSTGRES_DSN")}
	flag.StringVar(&cfg.APIBaseURL, "api", "http://127.0.0.1:8080", "API base URL")
	flag.IntVar(&cfg.Workers, "workers", 20, "concurrent workers per round")
	flag.IntVar(&cfg.Rounds, "rounds", 10, "number of rounds")
	flag.IntVar(&cfg.Contention, "contention", 10, "workers targeting the same provider+slot per round")
	flag.Parse()

	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required to load actor ids")
	}
	if cfg.Contention > cfg.Workers {
		cfg.Contention = cfg.Workers
	}

	pool, err := loadDataPool(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	log.Printf("loaded %d providers, %d requesters", len(pool.Providers), len(pool.Requesters))

	gofakeit.Seed(time.Now().UnixNano())
	client := &http.Client{Timeout: 10 * time.Second}
	var m OperationMetrics

	// Slots start tomorrow so every request passes the future check.
	day := time.Now().UTC().AddDate(0, 0, 1)

	for round := 0; round < cfg.Rounds; round++ {
		contestedProvider := pool.Providers[rand.Intn(len(pool.Providers))]
		contestedSlot := time.Date(day.Year(), day.Month(), day.Day(), 9+rand.Intn(8), 0, 0, 0, time.UTC)

		var wg sync.WaitGroup
		winners := int64(0)

		for w := 0; w < cfg.Workers; w++ {
			providerID := contestedProvider
			slot := contestedSlot
			if w >= cfg.Contention {
				providerID = pool.Providers[rand.Intn(len(pool.Providers))]
				slot = time.Date(day.Year(), day.Month(), day.Day(), 9+rand.Intn(8), 0, 0, 0, time.UTC)
			}
			requesterID := pool.Requesters[rand.Intn(len(pool.Requesters))]

			wg.Add(1)
			go func() {
				defer wg.Done()
				status := fireBooking(client, cfg.APIBaseURL, providerID, requesterID, slot, &m)
				if status == http.StatusCreated && providerID == contestedProvider && slot.Equal(contestedSlot) {
					atomic.AddInt64(&winners, 1)
				}
			}()
		}
		wg.Wait()

		if winners > 1 {
			log.Printf("round %d: INVARIANT VIOLATION: %d winners for the contested slot", round, winners)
		} else {
			log.Printf("round %d: contested slot winners=%d (expected at most 1)", round, winners)
		}

		day = day.AddDate(0, 0, 1)
	}

	avg, p50, p95, max := m.Stats()
	fmt.Printf("\nbookings total=%d success=%d conflict=%d error=%d\n",
		atomic.LoadInt64(&m.Total), atomic.LoadInt64(&m.Success),
		atomic.LoadInt64(&m.Conflict), atomic.LoadInt64(&m.Error))
	fmt.Printf("latency avg=%s p50=%s p95=%s max=%s\n", avg, p50, p95, max)
}

func fireBooking(client *http.Client, baseURL string, providerID, requesterID uuid.UUID, at time.Time, m *OperationMetrics) int {
	body, _ := json.Marshal(map[string]string{
		"provider_id":  providerID.String(),
		"requester_id": requesterID.String(),
		"scheduled_at": at.Format(time.RFC3339),
	})

	start := time.Now()
	resp, err := client.Post(baseURL+"/bookings", "application/json", bytes.NewReader(body))
	latency := time.Since(start)
	if err != nil {
		m.Record(latency, 0)
		return 0
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	m.Record(latency, resp.StatusCode)
	return resp.StatusCode
}

func loadDataPool(dsn string) (*DataPool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pg, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		return nil, err
	}
	defer pg.Close()

	pool := &DataPool{}

	rows, err := pg.Query(ctx, `SELECT id FROM providers LIMIT 100`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		pool.Providers = append(pool.Providers, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reqRows, err := pg.Query(ctx, `SELECT id FROM requesters LIMIT 1000`)
	if err != nil {
		return nil, err
	}
	defer reqRows.Close()
	for reqRows.Next() {
		var id uuid.UUID
		if err := reqRows.Scan(&id); err != nil {
			return nil, err
		}
		pool.Requesters = append(pool.Requesters, id)
	}
	if err := reqRows.Err(); err != nil {
		return nil, err
	}

	if len(pool.Providers) == 0 || len(pool.Requesters) == 0 {
		return nil, fmt.Errorf("empty data pool, run cmd/seed first")
	}

	return pool, nil
}
