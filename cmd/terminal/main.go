package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wirapratamaz/terminal-polyburg/internal/book"
	"github.com/wirapratamaz/terminal-polyburg/internal/bus"
	"github.com/wirapratamaz/terminal-polyburg/internal/clobauth"
	"github.com/wirapratamaz/terminal-polyburg/internal/config"
	"github.com/wirapratamaz/terminal-polyburg/internal/feed"
	"github.com/wirapratamaz/terminal-polyburg/internal/markets"
	"github.com/wirapratamaz/terminal-polyburg/internal/mirror"
)

func main() {
	search := flag.String("search", "", "list matching markets and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mkts := markets.NewClient(markets.Config{
		BaseURL: cfg.Markets.BaseURL,
		ClobURL: cfg.Markets.ClobURL,
		APIKey:  cfg.Markets.APIKey,
		Timeout: cfg.Markets.Timeout(),
	}, log)

	// Browse mode: resolve human-readable markets to feed asset IDs.
	if *search != "" {
		listMarkets(ctx, mkts, *search)
		return
	}

	assetIDs := flag.Args()
	if len(assetIDs) == 0 {
		fmt.Fprintln(os.Stderr, "usage: terminal [-search query] <asset_id> [asset_id...]")
		os.Exit(2)
	}

	creds := resolveCredentials(ctx, cfg, log)

	events := bus.New()
	client, err := feed.NewClient(feed.Config{
		URL:                  cfg.Feed.URL,
		Variant:              feed.Variant(cfg.Feed.Variant),
		Credentials:          creds,
		BackoffBase:          cfg.Feed.BackoffBase(),
		MaxReconnectAttempts: cfg.Feed.MaxReconnectAttempts,
		HeartbeatInterval:    cfg.Feed.Heartbeat(),
	}, events, log)
	if err != nil {
		log.Fatal("failed to build feed client", zap.Error(err))
	}

	events.Subscribe(bus.TopicConnected, func(event any) {
		up, _ := event.(bool)
		log.Info("feed connection", zap.Bool("up", up))
	})
	events.Subscribe(bus.TopicBook, func(event any) {
		state, ok := event.(book.State)
		if !ok {
			return
		}
		printTop(state)
	})
	events.Subscribe(bus.TopicError, func(event any) {
		ev, ok := event.(bus.ErrorEvent)
		if !ok {
			return
		}
		log.Warn("feed error", zap.String("code", ev.Code), zap.String("message", ev.Message))
	})
	events.Subscribe(bus.TopicMaxReconnect, func(any) {
		log.Error("feed gave up reconnecting")
		cancel()
	})

	client.Subscribe(assetIDs...)
	primeBooks(ctx, mkts, client, assetIDs, log)
	if err := client.Connect(ctx); err != nil {
		log.Fatal("failed to connect to feed", zap.Error(err))
	}
	defer client.Disconnect()

	if cfg.Redis.Enabled {
		startMirror(ctx, cfg, events, log)
	}

	log.Info("terminal running",
		zap.String("variant", cfg.Feed.Variant),
		zap.Int("assets", len(assetIDs)),
		zap.Bool("authenticated", !creds.Empty()))

	<-ctx.Done()
	log.Info("terminal shutting down")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	if cfg.Env == "development" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

// resolveCredentials prefers an explicit API key triple, then derivation
// from a configured private key, then anonymous mode.
func resolveCredentials(ctx context.Context, cfg *config.Config, log *zap.Logger) feed.Credentials {
	if cfg.Auth.Key != "" {
		return feed.Credentials{
			Key:        cfg.Auth.Key,
			Secret:     cfg.Auth.Secret,
			Passphrase: cfg.Auth.Passphrase,
		}
	}

	if cfg.Auth.PrivateKey != "" {
		signer, err := clobauth.NewSigner(cfg.Auth.PrivateKey, cfg.Auth.ChainID)
		if err != nil {
			log.Warn("invalid private key, continuing anonymously", zap.Error(err))
			return feed.Credentials{}
		}
		deriver := clobauth.NewDeriver(cfg.Markets.ClobURL, signer, 10*time.Second, log)
		derived, err := deriver.Derive(ctx)
		if err != nil {
			log.Warn("credential derivation failed, continuing anonymously", zap.Error(err))
			return feed.Credentials{}
		}
		return feed.Credentials{
			Key:        derived.Key,
			Secret:     derived.Secret,
			Passphrase: derived.Passphrase,
		}
	}

	log.Info("no credentials configured, running in anonymous market-channel mode")
	return feed.Credentials{}
}

// primeBooks seeds each subscribed book from the REST snapshot endpoint so a
// ladder is visible before the first streamed snapshot arrives. Failures are
// non-fatal; the stream fills the book either way.
func primeBooks(ctx context.Context, mkts *markets.Client, client *feed.Client, assetIDs []string, log *zap.Logger) {
	for _, id := range assetIDs {
		snap, err := mkts.OrderBook(ctx, id)
		if err != nil {
			log.Warn("book priming failed", zap.String("asset", id), zap.Error(err))
			continue
		}
		ts, _ := strconv.ParseInt(snap.Timestamp, 10, 64)
		client.Prime(id, snap.Market, snap.Bids, snap.Asks, ts)
	}
}

func startMirror(ctx context.Context, cfg *config.Config, events *bus.Bus, log *zap.Logger) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	writer := mirror.NewWriter(mirror.Wrap(rdb), events, log)
	go writer.Run(ctx)
	log.Info("book mirror enabled", zap.String("addr", cfg.Redis.Addr))
}

func listMarkets(ctx context.Context, mkts *markets.Client, query string) {
	found, err := mkts.Search(ctx, query, 50)
	if err != nil {
		fmt.Fprintf(os.Stderr, "search failed: %v\n", err)
		os.Exit(1)
	}
	for _, inst := range found {
		fmt.Printf("%s  (%s)\n", inst.Question, inst.ConditionID)
		for _, o := range inst.Outcomes {
			fmt.Printf("    %-8s %s  last=%s\n", o.Label, o.TokenID, o.Price)
		}
	}
}

func printTop(state book.State) {
	bid, ask := "-", "-"
	if lv, ok := state.BestBid(); ok {
		bid = lv.Price + " x " + lv.Size
	}
	if lv, ok := state.BestAsk(); ok {
		ask = lv.Price + " x " + lv.Size
	}
	fmt.Printf("%s  bid %s | ask %s\n", state.AssetID, bid, ask)
}
