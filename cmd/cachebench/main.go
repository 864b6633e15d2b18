package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/followsync/config"
	"github.com/d60-Lab/followsync/internal/cache"
	"github.com/d60-Lab/followsync/internal/model"
	"github.com/d60-Lab/followsync/internal/repository"
	"github.com/d60-Lab/followsync/internal/service"
	"github.com/d60-Lab/followsync/pkg/database"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func mustDo(err error) {
	if err != nil {
		panic(err)
	}
}

func envInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// Compares snapshot count lookups served from the Redis count cache against
// direct COUNT queries.
func main() {
	ctx := context.Background()
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	mustDo(database.Migrate(db))

	userCount := envInt("USERS", 2000)
	batchSize := envInt("BATCH", 50)
	rounds := envInt("ROUNDS", 500)

	addr := cfg.Redis.Addr
	if addr == "" {
		mr := must(miniredis.Run())
		defer mr.Close()
		addr = mr.Addr()
		fmt.Println("redis.addr not set, using in-process miniredis")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()
	mustDo(rdb.Ping(ctx).Err())

	fmt.Println("Setting up test data...")
	ids := make([]string, userCount)
	users := make([]model.User, userCount)
	for i := range users {
		id := uuid.New().String()
		ids[i] = id
		users[i] = model.User{ID: id, Username: "c" + id[:8], Email: "c" + id[:8] + "@example.com", Password: "secret"}
	}
	mustDo(db.CreateInBatches(users, 500).Error)

	// skewed graph: low ids are popular
	follows := make([]model.Follow, 0, userCount*5)
	rng := rand.New(rand.NewSource(1))
	for i, id := range ids {
		for k := 0; k < 5; k++ {
			j := int(math.Abs(rng.NormFloat64()) * float64(userCount) / 8)
			if j >= userCount || j == i {
				continue
			}
			follows = append(follows, model.Follow{ID: uuid.New().String(), FollowerID: id, FolloweeID: ids[j]})
		}
	}
	mustDo(db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(follows, 1000).Error)

	userRepo := repository.NewUserRepository(db)
	followRepo := repository.NewFollowRepository(db)
	fanRepo := repository.NewFanRepository(db)
	counts := cache.NewCountCache(rdb, cfg.Redis.CountTTL)

	run := func(svc service.RelationshipService) []time.Duration {
		recs := make([]time.Duration, 0, rounds)
		for r := 0; r < rounds; r++ {
			batch := make([]string, batchSize)
			for i := range batch {
				batch[i] = ids[int(math.Abs(rng.NormFloat64())*float64(userCount)/8)%userCount]
			}
			st := time.Now()
			_, err := svc.Counts(ctx, batch)
			mustDo(err)
			recs = append(recs, time.Since(st))
		}
		return recs
	}

	direct := run(service.NewRelationshipService(userRepo, followRepo, fanRepo, nil, nil))
	cached := run(service.NewRelationshipService(userRepo, followRepo, fanRepo, nil, counts))

	pct := func(vs []time.Duration, p float64) time.Duration {
		if len(vs) == 0 {
			return 0
		}
		xs := append([]time.Duration(nil), vs...)
		sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
		k := int(math.Ceil(p*float64(len(xs)))) - 1
		if k < 0 {
			k = 0
		}
		if k >= len(xs) {
			k = len(xs) - 1
		}
		return xs[k]
	}

	c := counts.Counters()
	hitRate := 0.0
	if total := c.Hits + c.Misses; total > 0 {
		hitRate = float64(c.Hits) / float64(total)
	}
	fmt.Printf("USERS=%d, FOLLOWS=%d, BATCH=%d, ROUNDS=%d\n", userCount, len(follows), batchSize, rounds)
	fmt.Printf("COUNT queries: p50=%v, p95=%v, p99=%v\n", pct(direct, 0.50), pct(direct, 0.95), pct(direct, 0.99))
	fmt.Printf("Count cache:   p50=%v, p95=%v, p99=%v, hit rate=%.2f%%\n", pct(cached, 0.50), pct(cached, 0.95), pct(cached, 0.99), hitRate*100)
}
