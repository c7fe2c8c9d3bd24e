package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/freshlane/ordertrack/internal/services/watcher"
	"github.com/spf13/pflag"
)

func main() {
	var (
		apiURL   string
		orderID  string
		interval time.Duration
		refresh  bool
	)
	pflag.StringVarP(&apiURL, "api", "a", "http://localhost:8080", "tracking API base URL")
	pflag.StringVarP(&orderID, "order", "o", "", "order id to watch")
	pflag.DurationVarP(&interval, "interval", "i", watcher.DefaultInterval, "poll interval")
	pflag.BoolVar(&refresh, "refresh", false, "ask the backend to re-poll the order first")
	pflag.Parse()

	client := newAPIClient(apiURL)

	session, err := watcher.NewSession(client, orderID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "track-watch: %v\n", err)
		os.Exit(2)
	}
	session.WithInterval(interval)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if refresh {
		if err := client.Refresh(ctx, orderID); err != nil {
			fmt.Fprintf(os.Stderr, "track-watch: refresh: %v\n", err)
		}
	}

	if err := session.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "track-watch: %v\n", err)
		os.Exit(1)
	}
	defer session.Stop()

	fmt.Print(renderView(session.View(time.Now())))

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-session.Done():
			// Терминальный статус или NOT_FOUND: последний кадр и выход.
			fmt.Print(renderView(session.View(time.Now())))
			return
		case <-t.C:
			fmt.Print(renderView(session.View(time.Now())))
		}
	}
}
