// Command authgate-loadtest measures throughput and latency of the two hot
// paths of the engine: per-request authentication and token refresh. It runs
// against a real Redis when -redis-addr or REDIS_ADDR is set, otherwise
// against an embedded miniredis.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/authgate-io/authgate"
	"github.com/authgate-io/authgate/password"
)

type principalState struct {
	email   string
	access  string
	refresh string
	mu      sync.Mutex
}

func main() {
	var (
		principals  = flag.Int("principals", 1000, "number of accounts to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase (authenticate + refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *principals <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "principals, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var cleanup func()
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		cleanup = mr.Close
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		cleanup = func() {}
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		PoolSize: *concurrency,
	})
	defer client.Close()

	store := newMemoryStore()

	cfg := loadtestConfig()
	engine, err := authgate.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserStore(store).
		WithMailer(discardMailer{}).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states, err := seed(ctx, engine, store, *principals)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}

	authStats := runPhase(*ops, *concurrency, func(r *rand.Rand, op int) error {
		state := states[r.Intn(len(states))]
		state.mu.Lock()
		access := state.access
		state.mu.Unlock()

		_, err := engine.Authenticate(ctx, access)
		return err
	})

	refreshStats := runPhase(*ops, *concurrency, func(r *rand.Rand, op int) error {
		state := states[r.Intn(len(states))]

		// Rotation supersedes the pair; serialize per principal so workers
		// do not race on a stale refresh token.
		state.mu.Lock()
		defer state.mu.Unlock()

		access, refresh, err := engine.Refresh(ctx, state.refresh)
		if err != nil {
			return err
		}
		state.access = access
		state.refresh = refresh
		return nil
	})

	fmt.Println("---- results ----")
	printStats("authenticate", authStats)
	printStats("refresh", refreshStats)
}

func loadtestConfig() authgate.Config {
	var cfg authgate.Config

	cfg.Token.Secret = []byte("loadtest-secret-loadtest-secret!")
	cfg.Token.Issuer = "authgate-loadtest"
	cfg.Token.AccessTTL = time.Hour
	cfg.Token.RefreshTTL = 24 * time.Hour
	cfg.Token.ReuseRefreshOnLogin = true
	cfg.Verification.CodeLength = 6
	cfg.Verification.CodeTTL = 10 * time.Minute
	// Light argon2 parameters: seeding logs every principal in once, and the
	// measured phases never touch the hasher.
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.SaltLength = 16
	cfg.Password.KeyLength = 16
	cfg.Password.ChangeCooldown = time.Hour
	cfg.Password.HistoryDepth = 1
	cfg.Cache.KeyPrefix = "aglt"

	return cfg
}

func seed(ctx context.Context, engine *authgate.Engine, store *memoryStore, n int) ([]*principalState, error) {
	fmt.Printf("seeding %d principals...\n", n)
	start := time.Now()

	hash, err := seedHash()
	if err != nil {
		return nil, err
	}

	states := make([]*principalState, n)
	for i := 0; i < n; i++ {
		email := fmt.Sprintf("load-%d@example.com", i)
		store.put(authgate.PrincipalRecord{
			ID:           fmt.Sprintf("u%d", i),
			Email:        email,
			DisplayName:  email,
			PasswordHash: hash,
			Role:         "member",
			Enabled:      true,
		})

		access, refresh, err := engine.Login(ctx, email, seedPassword)
		if err != nil {
			return nil, fmt.Errorf("login %s: %w", email, err)
		}
		states[i] = &principalState{email: email, access: access, refresh: refresh}
	}

	fmt.Printf("seeded in %s\n", time.Since(start).Round(time.Millisecond))
	return states, nil
}

const seedPassword = "loadtest-password"

// seedHash derives one shared hash; every seeded principal uses the same
// password, so hashing once keeps seeding linear in Redis work.
func seedHash() (string, error) {
	hasher, err := password.NewArgon2(password.Config{
		Memory:      8192,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	if err != nil {
		return "", err
	}
	return hasher.Hash(seedPassword)
}

func runPhase(ops, concurrency int, fn func(r *rand.Rand, op int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}

				t0 := time.Now()
				err := fn(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

type memoryStore struct {
	mu      sync.RWMutex
	byEmail map[string]authgate.PrincipalRecord
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		byEmail: make(map[string]authgate.PrincipalRecord),
	}
}

func (s *memoryStore) put(record authgate.PrincipalRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byEmail[record.Email] = record
}

func (s *memoryStore) FindByEmail(ctx context.Context, email string) (authgate.PrincipalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.byEmail[email]
	if !ok {
		return authgate.PrincipalRecord{}, authgate.ErrUserNotFound
	}
	return record, nil
}

func (s *memoryStore) Create(ctx context.Context, record authgate.PrincipalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[record.Email]; exists {
		return fmt.Errorf("duplicate email")
	}
	s.byEmail[record.Email] = record
	return nil
}

func (s *memoryStore) Update(ctx context.Context, record authgate.PrincipalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[record.Email]; !exists {
		return fmt.Errorf("user not found")
	}
	s.byEmail[record.Email] = record
	return nil
}

type discardMailer struct{}

func (discardMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	return nil
}
