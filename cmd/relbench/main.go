package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/d60-Lab/followsync/config"
	"github.com/d60-Lab/followsync/internal/gateway"
	"github.com/d60-Lab/followsync/internal/model"
	"github.com/d60-Lab/followsync/internal/relsync"
	"github.com/d60-Lab/followsync/internal/server"
	"github.com/d60-Lab/followsync/pkg/auth"
	"github.com/d60-Lab/followsync/pkg/database"
	"github.com/d60-Lab/followsync/pkg/logger"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func envInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

type result struct {
	toggle  bool
	apply   time.Duration
	confirm time.Duration
	kind    relsync.ErrorKind
	stale   bool
}

func main() {
	cfg := must(config.Load())
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		panic(err)
	}
	defer logger.Sync()

	db := must(database.InitDB(cfg))
	if err := database.Migrate(db); err != nil {
		panic(err)
	}

	// USERS viewers toggle randomly among TARGETS users, OPS toggles each
	usersN := envInt("USERS", 20)
	targetsN := envInt("TARGETS", 50)
	ops := envInt("OPS", 200)

	// 不设置 REMOTE 时在本进程内起服务
	if os.Getenv("REMOTE") == "" {
		srv := server.New(cfg, db, nil)
		ln := must(net.Listen("tcp", "127.0.0.1:0"))
		hs := &http.Server{Handler: srv.Engine}
		go func() { _ = hs.Serve(ln) }()
		defer func() {
			_ = hs.Close()
			_ = srv.Shutdown(context.Background())
		}()
		cfg.Gateway.BaseURL = "http://" + ln.Addr().String()
	}

	ctx := context.Background()
	tokens := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL)

	seed := func(n int, prefix string) []string {
		ids := make([]string, n)
		batch := make([]model.User, n)
		for i := range batch {
			id := uuid.New().String()
			ids[i] = id
			batch[i] = model.User{ID: id, Username: prefix + id[:8], Email: prefix + id[:8] + "@example.com", Password: "bench"}
		}
		if err := db.CreateInBatches(batch, 500).Error; err != nil {
			panic(err)
		}
		return ids
	}
	viewers := seed(usersN, "v")
	targets := seed(targetsN, "t")

	results := make(chan result, 2*usersN*ops)
	var hydrate []time.Duration
	var hydrateMu sync.Mutex

	t0 := time.Now()
	var wg conc.WaitGroup
	for w, viewer := range viewers {
		w, viewer := w, viewer
		wg.Go(func() {
			gw := gateway.New(cfg.Gateway, gateway.Session{Token: must(tokens.Issue(viewer))})
			c := relsync.NewController(viewer, gw, relsync.WithConfirmTimeout(cfg.Sync.ConfirmTimeout))
			defer c.Close()

			st := time.Now()
			if err := c.Hydrate(ctx); err != nil {
				logger.Warn("hydrate failed", zap.String("viewer", viewer), zap.Error(err))
			}
			hydrateMu.Lock()
			hydrate = append(hydrate, time.Since(st))
			hydrateMu.Unlock()

			type inflight struct {
				req *relsync.Request
				st  time.Time
			}
			settle := func(batch []inflight) {
				for _, p := range batch {
					out, err := p.req.Wait(ctx)
					results <- result{confirm: time.Since(p.st), kind: relsync.KindOf(err), stale: out.Stale}
				}
			}

			rng := rand.New(rand.NewSource(int64(w)))
			var pending []inflight
			for i := 0; i < ops; i++ {
				st := time.Now()
				req, err := c.Toggle(ctx, targets[rng.Intn(len(targets))])
				results <- result{toggle: true, apply: time.Since(st), kind: relsync.KindOf(err)}
				if err != nil {
					continue
				}
				pending = append(pending, inflight{req: req, st: st})
				// 每 4 次等待一轮确认，其余保持在途
				if i%4 == 0 {
					settle(pending)
					pending = pending[:0]
				}
			}
			settle(pending)
		})
	}
	wg.Wait()
	close(results)
	total := time.Since(t0)

	var applyRecs, confirmRecs []time.Duration
	byKind := map[string]int{}
	stale := 0
	for r := range results {
		if r.toggle {
			applyRecs = append(applyRecs, r.apply)
			if r.kind != 0 {
				byKind["toggle_"+r.kind.String()]++
			}
			continue
		}
		confirmRecs = append(confirmRecs, r.confirm)
		switch {
		case r.stale:
			stale++
		case r.kind == 0:
			byKind["committed"]++
		default:
			byKind[r.kind.String()]++
		}
	}

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

	fmt.Printf("USERS=%d, TARGETS=%d, OPS=%d, base=%s\n", usersN, targetsN, ops, cfg.Gateway.BaseURL)
	fmt.Printf("Total: %v\n", total)
	fmt.Printf("Hydrate: p50=%v, p95=%v, p99=%v\n", pct(hydrate, 0.50), pct(hydrate, 0.95), pct(hydrate, 0.99))
	fmt.Printf("Optimistic apply: p50=%v, p95=%v, p99=%v\n", pct(applyRecs, 0.50), pct(applyRecs, 0.95), pct(applyRecs, 0.99))
	fmt.Printf("Confirm: p50=%v, p95=%v, p99=%v\n", pct(confirmRecs, 0.50), pct(confirmRecs, 0.95), pct(confirmRecs, 0.99))
	fmt.Printf("Outcomes: %v, stale=%d\n", byKind, stale)
	if byKind[relsync.KindUnauthorized.String()] > 0 {
		fmt.Fprintln(os.Stderr, "unauthorized responses: check jwt.secret matches the server")
	}
}
