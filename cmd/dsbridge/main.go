// Command dsbridge runs the directory bridge in one of three roles: a
// queue worker, a relay HTTP peer, or a one-shot key generator.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dsbridge/dsbridge/internal/config"
	"github.com/dsbridge/dsbridge/internal/envelope"
	"github.com/dsbridge/dsbridge/internal/queue"
	"github.com/dsbridge/dsbridge/internal/relay"
	"github.com/dsbridge/dsbridge/internal/relayhttp"
	"github.com/dsbridge/dsbridge/internal/session"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "worker":
		err = runWorker(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "genkey":
		err = runGenkey(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "dsbridge:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: dsbridge <command> [flags]

commands:
  worker   drain the task queue against the directory
  serve    expose the operation endpoint to relay peers
  genkey   print a fresh transport-form keypair`)
}

func newLogger(level string) (session.Logger, error) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info", "":
		l = slog.LevelInfo
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	return session.NewSlogLogger(slog.New(handler)), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runWorker(args []string) error {
	fs := flag.NewFlagSet("worker", flag.ExitOnError)
	configPath := fs.String("config", "/etc/dsbridge/dsbridge.yaml", "config file")
	once := fs.Bool("once", false, "drain the queue once and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	if cfg.Queue.PrivateKeyFile == "" {
		return errors.New("worker needs queue.private_key_file")
	}
	privateKey, err := config.ReadKeyFile(cfg.Queue.PrivateKeyFile)
	if err != nil {
		return err
	}

	store, err := queue.Open(cfg.Queue.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	worker, err := relay.NewWorker(store, relay.WorkerOptions{
		PrivateKey: privateKey,
		Interval:   cfg.Queue.WorkerInterval,
		Retention:  cfg.Queue.Retention,
	}, log)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	if *once {
		return worker.RunOnce(ctx)
	}
	log.Info("worker started", map[string]any{
		"database": cfg.Queue.DatabasePath,
		"interval": cfg.Queue.WorkerInterval.String(),
	})
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "/etc/dsbridge/dsbridge.yaml", "config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:    cfg.Serve.Listen,
		Handler: relayhttp.NewServer(nil, log).Handler(),
	}

	ctx, stop := signalContext()
	defer stop()
	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
	}()

	if cfg.Serve.CertFile == "" {
		log.Warn("serving without TLS", map[string]any{"listen": cfg.Serve.Listen})
		err = server.ListenAndServe()
	} else {
		if cfg.Serve.ClientCAFile != "" {
			pem, readErr := os.ReadFile(cfg.Serve.ClientCAFile)
			if readErr != nil {
				return readErr
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return fmt.Errorf("client CA bundle %q holds no certificates", cfg.Serve.ClientCAFile)
			}
			server.TLSConfig = &tls.Config{
				MinVersion: tls.VersionTLS12,
				ClientAuth: tls.RequireAndVerifyClientCert,
				ClientCAs:  pool,
			}
		}
		log.Info("listening", map[string]any{"listen": cfg.Serve.Listen, "mtls": cfg.Serve.ClientCAFile != ""})
		err = server.ListenAndServeTLS(cfg.Serve.CertFile, cfg.Serve.KeyFile)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func runGenkey(args []string) error {
	fs := flag.NewFlagSet("genkey", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	publicKey, privateKey, err := envelope.GenerateKeyPair()
	if err != nil {
		return err
	}
	fmt.Println("public key:")
	fmt.Println(publicKey)
	fmt.Println()
	fmt.Println("private key:")
	fmt.Println(privateKey)
	return nil
}
