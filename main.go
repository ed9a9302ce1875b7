package main

import (
	"context"
	"errors"
	"flag"
	"log"
	oshttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gigchat/internal/api"
	"gigchat/internal/chat"
	"gigchat/internal/commands"
	"gigchat/internal/config"
	"gigchat/internal/http"
	"gigchat/internal/presence"
	"gigchat/internal/push"
	"gigchat/internal/rooms"
	"gigchat/internal/storage"
	"gigchat/internal/ws"

	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("gigchat", flag.ContinueOnError)
	online := fs.Bool("online", false, "Print users connected to a running server and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if *online {
		return commands.Online(os.Stdout, cfg.AdminAddr)
	}

	logger := cfg.Logger(os.Stderr)

	bbStorage, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = bbStorage.Close() }()

	registry := presence.NewRegistry(logger.With("component", "presence"))
	broadcaster := rooms.NewBroadcaster(logger.With("component", "rooms"))

	chatConfig := chat.Config{
		StoreTimeout: cfg.StoreTimeout,
		Log:          logger.With("component", "chat"),
	}
	// An empty key keeps the push endpoints of the API disabled.
	var pushKey string
	if cfg.PushEnabled() {
		notifier := push.NewNotifier(push.Config{
			Subscriber:      cfg.VAPIDSubscriber,
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		}, bbStorage, logger.With("component", "push"))
		chatConfig.Offline = notifier
		pushKey = notifier.PublicKey()
	}
	svc := chat.NewService(bbStorage, registry, broadcaster, chatConfig)
	defer svc.Wait()

	wsServer := ws.NewServer(svc, ws.Config{
		PingInterval: cfg.PingInterval,
		PongWait:     cfg.PongWait,
		SendBuffer:   cfg.SendBuffer,
		Log:          logger.With("component", "ws"),
	})
	apiHandlers := api.New(bbStorage, pushKey, logger.With("component", "api"))

	g, gCtx := errgroup.WithContext(ctx)

	adminServer := http.NewAdminServer(api.NewAdminHandler(registry, broadcaster), cfg.AdminAddr)
	apiServer := http.NewAPIServer(gCtx, apiHandlers, wsServer, cfg.APIAddr)

	// Start Admin Server
	g.Go(func() error {
		err := adminServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Start API Server
	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		log.Println("Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Admin server shutdown error: %v", err)
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
