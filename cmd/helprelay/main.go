package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"helprelay/config"
	"helprelay/discovery"
	"helprelay/engine"
	"helprelay/gateway"
	"helprelay/lighthouse"
	"helprelay/mailbox"
	"helprelay/messaging"
	"helprelay/metrics"
	"helprelay/requests"
	"helprelay/store"
	"helprelay/www"
)

var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "helprelay.yaml", "path to config file")
	port := flag.Int("port", 0, "override web port")
	debug := flag.Bool("debug", false, "log file and line numbers")
	flag.Parse()

	if *showVersion {
		fmt.Println("helprelay", Version)
		return
	}
	if *debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *port > 0 {
		cfg.Web.Port = *port
	}
	if cfg.Web.Token == "" {
		log.Printf("helprelay: WARNING no web token set (%s), /mesh and /api are open", config.TokenEnv)
	}

	// Audit journal
	db, err := store.Open(&cfg.Audit)
	switch {
	case errors.Is(err, store.ErrDisabled):
		log.Printf("helprelay: audit journal disabled")
	case err != nil:
		log.Fatalf("open database: %v", err)
	default:
		defer db.Close()
		log.Printf("helprelay: audit journal open (%s)", cfg.Audit.Driver)
	}

	// Device registry
	registry := lighthouse.NewRegistry(cfg.Registry.OfflineAfter)
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		mirror := lighthouse.NewRedisMirror(redisClient)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := mirror.Ping(ctx); err != nil {
			log.Printf("helprelay: redis not available (%v), running without mirror", err)
		} else {
			if err := mirror.FlushAll(ctx); err != nil {
				log.Printf("helprelay: redis flush: %v", err)
			}
			registry.SetMirror(mirror)
			log.Printf("helprelay: redis connected (%s)", cfg.Redis.Address)
		}
		cancel()
	}
	sweeper := lighthouse.NewSweeper(registry, cfg.Registry.SweepInterval, cfg.Registry.OfflineAfter)
	sweeper.Start()
	defer sweeper.Stop()

	gw := gateway.NewClient(cfg.Gateway.URLs, cfg.Gateway.Port, cfg.Web.Token, cfg.Gateway.Timeout)
	if len(cfg.Gateway.URLs) == 0 {
		log.Printf("helprelay: no gateway urls configured, replying to the last /mesh caller")
	}

	// Messaging (optional presentation bus)
	var (
		sink      requests.Sink
		msgClient *messaging.Client
		busSink   *messaging.BusSink
	)
	if cfg.Messaging.Backend != messaging.BackendNone && cfg.Messaging.Backend != "" {
		msgClient = messaging.NewClient(&cfg.Messaging)
		if err := msgClient.Connect(); err != nil {
			log.Printf("helprelay: messaging connect failed (%v)", err)
		} else {
			log.Printf("helprelay: messaging connected (%s)", cfg.Messaging.Backend)
		}
		defer msgClient.Close()

		if db != nil {
			busSink = messaging.NewBusSink(msgClient, db, cfg.Messaging.RenderTopic)
			drainer := messaging.NewOutboxDrainer(db, msgClient, cfg.Messaging.OutboxDrainInterval)
			drainer.Start()
			defer drainer.Stop()
		} else {
			busSink = messaging.NewBusSink(msgClient, nil, cfg.Messaging.RenderTopic)
		}
		sink = busSink
	}

	// Engine
	eng := engine.New(engine.Config{
		Table:        requests.NewTable(cfg.Requests.SkipDetails),
		Registry:     registry,
		Gateway:      gw,
		Sink:         sink,
		Mailbox:      mailbox.NewRegistry(),
		DB:           db,
		Metrics:      metrics.New(),
		FleetSize:    cfg.Requests.FleetSize,
		HTTPPort:     cfg.Web.Port,
		ProbeTimeout: cfg.Requests.ProbeTimeout,
		CacheDir:     cfg.Mailbox.CacheDir,
	})
	eng.Start()
	defer eng.Stop()

	if msgClient != nil {
		sub := messaging.NewActionSubscriber(msgClient, busSink, cfg.Messaging.ActionTopic, eng)
		if err := sub.Start(); err != nil {
			log.Printf("helprelay: action subscribe failed: %v", err)
		} else {
			log.Printf("helprelay: operator actions listening on %s", cfg.Messaging.ActionTopic)
		}
	}

	// UDP listeners
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	discConn, err := discovery.Listen(cfg.Discovery.Host, cfg.Discovery.Port)
	if err != nil {
		log.Fatalf("discovery: %v", err)
	}
	regConn, err := discovery.Listen(cfg.Registration.Host, cfg.Registration.Port)
	if err != nil {
		log.Fatalf("registration: %v", err)
	}
	disc := discovery.NewDiscovery(discConn, cfg.Web.Port, cfg.Web.Token)
	reg := discovery.NewRegistration(regConn, registry)
	go func() {
		if err := disc.Serve(ctx); err != nil {
			log.Printf("helprelay: discovery stopped: %v", err)
		}
	}()
	go func() {
		if err := reg.Serve(ctx); err != nil {
			log.Printf("helprelay: registration stopped: %v", err)
		}
	}()
	log.Printf("helprelay: discovery on udp %d, registration on udp %d", cfg.Discovery.Port, cfg.Registration.Port)

	// Web server
	opts := www.Options{Token: cfg.Web.Token}
	if msgClient != nil {
		opts.Messaging = msgClient
	}
	handler, stopWeb := www.NewRouter(eng, opts)

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		log.Printf("helprelay: web server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("web server: %v", err)
		}
	}()

	log.Printf("helprelay: ready")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("helprelay: shutting down...")
	cancel()
	stopWeb()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	log.Printf("helprelay: stopped")
}
