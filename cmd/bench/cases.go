// README: Bench cases: environment, booking flow, oversell and duplicate checks, search throughput.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// The bench drives a server started without YATRA_FIREBASE_PROJECT_ID, where
// the bearer token is the caller's uid, optionally followed by ":<role>".
const (
	benchDriver      = "bench-driver"
	benchDriverToken = benchDriver + ":driver"
)

var (
	benchPath = []map[string]float64{
		{"lat": 27.7172, "lng": 85.3240},
		{"lat": 27.6900, "lng": 85.3500},
		{"lat": 27.6710, "lng": 85.4298},
	}
	benchPickup = map[string]float64{"lat": 27.7104, "lng": 85.3305}
	benchDrop   = map[string]float64{"lat": 27.6805, "lng": 85.3899}
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	runID     string
	tripID    string
	requestID string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
		runID: fmt.Sprintf("%d", time.Now().UnixNano()),
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: checkPostgres},
		{Name: "Env: Redis connect", Run: checkRedis},
		{Name: "Migration: apply (optional)", Run: applyMigration},
		{Name: "Migration: tables exist", Run: checkTables},
		{Name: "API: health", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodGet, "/health", "", nil, http.StatusOK)
		}},
		{Name: "API: unauthenticated -> 401", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodGet, "/api/trips", "", nil, http.StatusUnauthorized)
		}},
		{Name: "Seed: driver profile", Run: seedDriver},
		{Name: "Trip: create", Run: createTrip},
		{Name: "Search: finds trip", Run: searchFindsTrip},
		{Name: "Book: own trip -> 409", Run: func(ctx context.Context, r *Runner) Result {
			return r.expectReason(ctx, http.MethodPost, "/api/trips/"+r.tripID+"/book", benchDriver, map[string]any{"seats": 1}, "own_trip")
		}},
		{Name: "Book: reversed pickup/drop -> 409", Run: func(ctx context.Context, r *Runner) Result {
			return r.expectReason(ctx, http.MethodPost, "/api/trips/"+r.tripID+"/book", r.rider("rev"), map[string]any{
				"seats": 1, "pickup": benchDrop, "drop": benchPickup,
			}, "route_mismatch")
		}},
		{Name: "Book: valid", Run: bookOnce},
		{Name: "Book: duplicate -> 409", Run: func(ctx context.Context, r *Runner) Result {
			return r.expectReason(ctx, http.MethodPost, "/api/trips/"+r.tripID+"/book", r.rider("flow"), map[string]any{"seats": 1}, "duplicate_request")
		}},
		{Name: "Cancel: rider cancels request", Run: func(ctx context.Context, r *Runner) Result {
			return r.expectOK(ctx, "/api/requests/"+r.requestID+"/cancel", r.rider("flow"), true)
		}},
		{Name: "Cancel: second cancel is a no-op", Run: func(ctx context.Context, r *Runner) Result {
			return r.expectOK(ctx, "/api/requests/"+r.requestID+"/cancel", r.rider("flow"), false)
		}},
		{Name: "Concurrency: no oversell", Run: concurrentBookings},
		{Name: "Concurrency: duplicate requests", Run: concurrentDuplicates},
		{Name: "Consistency: seats ledger", Run: checkLedger},
		{Name: "Perf: search throughput", Run: searchThroughput},
	}
}

func (r *Runner) rider(tag string) string {
	return "bench-rider-" + tag + "-" + r.runID
}

func checkPostgres(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: "FAIL", Note: "db not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.db.Ping(ctx); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	return Result{Status: "PASS"}
}

func checkRedis(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: "SKIP", Note: "redis not configured, search cache disabled"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	return Result{Status: "PASS"}
}

func applyMigration(ctx context.Context, r *Runner) Result {
	if !r.cfg.ApplyMigration {
		return Result{Status: "SKIP", Note: "apply-migration=false"}
	}
	if r.db == nil {
		return Result{Status: "FAIL", Note: "db not configured"}
	}
	sql, err := os.ReadFile(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	for _, s := range splitSQL(string(sql)) {
		if _, err := r.db.Exec(ctx, s); err != nil {
			return Result{Status: "FAIL", Note: err.Error()}
		}
	}
	return Result{Status: "PASS"}
}

func checkTables(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: "FAIL", Note: "db not configured"}
	}
	tables, err := extractTables(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	for _, t := range tables {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
			t,
		).Scan(&exists)
		if err != nil {
			return Result{Status: "FAIL", Note: err.Error()}
		}
		if !exists {
			return Result{Status: "FAIL", Note: "missing table: " + t}
		}
	}
	return Result{Status: "PASS"}
}

// seedDriver provisions the driver profile directly; profiles are managed
// outside the booking API.
func seedDriver(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: "FAIL", Note: "db not configured"}
	}
	if _, err := r.db.Exec(ctx, `INSERT INTO users (id, name) VALUES ($1, 'Bench Driver') ON CONFLICT (id) DO NOTHING`, benchDriver); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if _, err := r.db.Exec(ctx, `
		INSERT INTO drivers (user_id, vehicle_number, vehicle_type) VALUES ($1, 'BENCH 1', 'car')
		ON CONFLICT (user_id) DO NOTHING`, benchDriver); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	return Result{Status: "PASS"}
}

func (r *Runner) newTrip(ctx context.Context, seats int) (string, error) {
	status, body, _, err := r.call(ctx, http.MethodPost, "/api/trips", benchDriverToken, map[string]any{
		"path":          benchPath,
		"from_address":  "Ratnapark",
		"to_address":    "Bhaktapur",
		"travel_date":   time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339),
		"fare_per_seat": 25000,
		"total_seats":   seats,
	})
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated {
		return "", fmt.Errorf("status=%d body=%v", status, body)
	}
	t, _ := body["trip"].(map[string]any)
	id, _ := t["id"].(string)
	if id == "" {
		return "", fmt.Errorf("no trip id in %v", body)
	}
	return id, nil
}

func createTrip(ctx context.Context, r *Runner) Result {
	start := time.Now()
	id, err := r.newTrip(ctx, r.cfg.Seats)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	r.tripID = id
	return Result{Status: "PASS", Latency: time.Since(start), Note: "trip=" + id}
}

func searchURL() string {
	return fmt.Sprintf("/api/trips/search?pickup_lat=%f&pickup_lng=%f&drop_lat=%f&drop_lng=%f",
		benchPickup["lat"], benchPickup["lng"], benchDrop["lat"], benchDrop["lng"])
}

func searchFindsTrip(ctx context.Context, r *Runner) Result {
	status, body, latency, err := r.call(ctx, http.MethodGet, searchURL(), r.rider("search"), nil)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if status != http.StatusOK {
		return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("status=%d", status)}
	}
	trips, _ := body["trips"].([]any)
	for _, t := range trips {
		if c, ok := t.(map[string]any); ok && c["trip_id"] == r.tripID {
			return Result{Status: "PASS", Latency: latency, Note: fmt.Sprintf("candidates=%d", len(trips))}
		}
	}
	// a cached result from an earlier run may predate this trip
	return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("trip not among %d candidates", len(trips))}
}

func bookOnce(ctx context.Context, r *Runner) Result {
	status, body, latency, err := r.call(ctx, http.MethodPost, "/api/trips/"+r.tripID+"/book", r.rider("flow"), map[string]any{
		"seats": 1, "pickup": benchPickup, "drop": benchDrop,
	})
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if status != http.StatusCreated {
		return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("status=%d body=%v", status, body)}
	}
	r.requestID, _ = body["request_id"].(string)
	return Result{Status: "PASS", Latency: latency, Note: "request=" + r.requestID}
}

// fanOut sends one booking per rider at the same instant and tallies status codes.
func (r *Runner) fanOut(ctx context.Context, tripID string, riders []string) map[int]int {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		codes = map[int]int{}
		start = make(chan struct{})
	)
	for _, rider := range riders {
		wg.Add(1)
		go func(rider string) {
			defer wg.Done()
			<-start
			status, _, _, err := r.call(ctx, http.MethodPost, "/api/trips/"+tripID+"/book", rider, map[string]any{"seats": 1})
			if err != nil {
				status = -1
			}
			mu.Lock()
			codes[status]++
			mu.Unlock()
		}(rider)
	}
	close(start)
	wg.Wait()
	return codes
}

func concurrentBookings(ctx context.Context, r *Runner) Result {
	tripID, err := r.newTrip(ctx, r.cfg.Seats)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	riders := make([]string, r.cfg.Concurrency)
	for i := range riders {
		riders[i] = r.rider(fmt.Sprintf("c%d", i))
	}
	start := time.Now()
	codes := r.fanOut(ctx, tripID, riders)
	note := fmt.Sprintf("codes=%v", codes)
	if codes[http.StatusCreated] > r.cfg.Seats {
		return Result{Status: "FAIL", Note: "oversold: " + note}
	}
	if r.cfg.Concurrency >= r.cfg.Seats && codes[http.StatusCreated]+codes[http.StatusServiceUnavailable] < r.cfg.Seats {
		return Result{Status: "FAIL", Note: "seats left unsold: " + note}
	}
	return Result{Status: "PASS", Latency: time.Since(start), Note: note}
}

func concurrentDuplicates(ctx context.Context, r *Runner) Result {
	tripID, err := r.newTrip(ctx, r.cfg.Concurrency+1)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	riders := make([]string, r.cfg.Concurrency)
	for i := range riders {
		riders[i] = r.rider("dup")
	}
	codes := r.fanOut(ctx, tripID, riders)
	note := fmt.Sprintf("codes=%v", codes)
	if codes[http.StatusCreated] != 1 {
		return Result{Status: "FAIL", Note: note}
	}
	return Result{Status: "PASS", Note: note}
}

// checkLedger verifies available + held seats equals total for every bench trip.
func checkLedger(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: "SKIP", Note: "db not configured"}
	}
	var broken int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM (
			SELECT t.id
			FROM trips t
			LEFT JOIN ride_requests rr ON rr.trip_id = t.id AND rr.status <> 'cancelled'
			WHERE t.driver_id = $1 AND t.status = 'scheduled'
			GROUP BY t.id, t.total_seats, t.available_seats
			HAVING t.available_seats + COALESCE(SUM(rr.seats), 0) <> t.total_seats
		) bad`, benchDriver).Scan(&broken)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if broken > 0 {
		return Result{Status: "FAIL", Note: fmt.Sprintf("%d trips out of balance", broken)}
	}
	return Result{Status: "PASS"}
}

func searchThroughput(ctx context.Context, r *Runner) Result {
	end := time.Now().Add(r.cfg.Duration)
	var (
		count, errCount int64
		mu              sync.Mutex
		wg              sync.WaitGroup
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				status, _, _, err := r.call(ctx, http.MethodGet, searchURL(), r.rider("perf"), nil)
				mu.Lock()
				if err != nil || status != http.StatusOK {
					errCount++
				} else {
					count++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: "FAIL", Note: "no requests completed"}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: "PASS", Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

func (r *Runner) call(ctx context.Context, method, path, token string, body any) (int, map[string]any, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	latency := time.Since(start)

	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out, latency, nil
}

func (r *Runner) expect(ctx context.Context, method, path, token string, body any, want int) Result {
	status, _, latency, err := r.call(ctx, method, path, token, body)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if status != want {
		return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("status=%d want=%d", status, want)}
	}
	return Result{Status: "PASS", Latency: latency}
}

func (r *Runner) expectReason(ctx context.Context, method, path, token string, body any, reason string) Result {
	status, out, latency, err := r.call(ctx, method, path, token, body)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if out["reason"] != reason {
		return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("status=%d reason=%v want=%s", status, out["reason"], reason)}
	}
	return Result{Status: "PASS", Latency: latency, Note: fmt.Sprintf("status=%d", status)}
}

func (r *Runner) expectOK(ctx context.Context, path, token string, want bool) Result {
	status, out, latency, err := r.call(ctx, http.MethodPost, path, token, nil)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if status != http.StatusOK || out["ok"] != want {
		return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("status=%d ok=%v", status, out["ok"])}
	}
	return Result{Status: "PASS", Latency: latency}
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}

func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	parts := strings.Split(strings.Join(filtered, "\n"), ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
