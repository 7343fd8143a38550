package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"wsecho/internal/config"
	"wsecho/internal/server"
	"wsecho/pkg/transport"
)

func main() {
	configPath := flag.String("config", os.Getenv("WSECHO_CONFIG"), "path to a YAML config file")
	listen := flag.String("listen", "", "listen address (overrides config)")
	maxMsg := flag.Int64("max-message-size", -1, "largest accepted message in bytes, 0 for unlimited (overrides config)")
	maxConns := flag.Int("max-connections", -1, "concurrent connection cap, 0 for unlimited (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *maxMsg >= 0 {
		cfg.MaxMessageSize = *maxMsg
	}
	if *maxConns >= 0 {
		cfg.MaxConnections = *maxConns
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	logger := log.New(os.Stderr, "wsecho ", log.LstdFlags)
	srv, err := server.New(server.Options{
		MaxMessageSize: cfg.MaxMessageSize,
		MaxConnections: cfg.MaxConnections,
		AcceptRate:     cfg.AcceptRate,
		AcceptBurst:    cfg.AcceptBurst,
		IdleTimeout:    cfg.IdleTimeout,
		ProxyProtocol:  cfg.ProxyProtocol,
		Responder: server.Echo{
			Prefix:   cfg.Echo.Prefix,
			Sentinel: cfg.Echo.Sentinel,
			Farewell: cfg.Echo.Farewell,
		},
		Logger: logger,
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := transport.ListenTCP(ctx, cfg.Listen, transport.ListenOptions{ReusePort: cfg.ReusePort})
	if err != nil {
		log.Fatal(err)
	}
	logger.Printf("listening at address %s", ln.Addr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(gctx, ln) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Printf("shutting down")
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}

	st := srv.Stats()
	logger.Printf("served %d sessions (%d rejected), %d messages in, %d out",
		st.Accepted, st.Rejected, st.MessagesIn, st.MessagesOut)
}
