// Command observer connects to a simd instance and prints the event stream.
// It demonstrates the client lifecycle: snapshot sync, reconnection with
// backoff, and manual recovery after the retry budget is exhausted.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"factionsim/internal/event"
	"factionsim/internal/observer"
	"factionsim/internal/protocol"
	"factionsim/internal/version"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "simd observer endpoint")
	rooms := flag.String("rooms", "market,trades", "extra rooms to join (comma separated)")
	maxRetries := flag.Int("max-retries", 10, "reconnect attempts before giving up")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg := observer.DefaultConfig()
	cfg.URL = *url
	cfg.MaxRetries = *maxRetries
	for _, room := range strings.Split(*rooms, ",") {
		room = strings.TrimSpace(room)
		if protocol.ValidRoom(room) {
			cfg.Rooms = append(cfg.Rooms, room)
		} else if room != "" {
			fmt.Fprintf(os.Stderr, "ignoring unknown room %q\n", room)
		}
	}

	fmt.Printf("observer %s connecting to %s\n", version.Version, *url)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	obs := observer.New(cfg, nil, nil, logger)
	if err := obs.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "start:", err)
		os.Exit(1)
	}

	// Manual reconnect affordance: any input line restarts a failed observer.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if obs.State() == observer.StateFailed {
				fmt.Println("reconnecting...")
				obs.Reconnect()
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			obs.Stop(stopCtx)
			stopCancel()
			return

		case tr := <-obs.Transitions():
			printTransition(tr)

		case ev := <-obs.Events():
			printEvent(ev)
		}
	}
}

func printTransition(tr observer.Transition) {
	switch tr.To {
	case observer.StateRetrying:
		fmt.Printf("-- connection lost, retrying [%s]\n", tr.RetryIn.Round(time.Second))
	case observer.StateFailed:
		fmt.Println("-- gave up after max retries; press enter to reconnect")
	case observer.StateSynced:
		fmt.Println("-- synced")
	default:
		fmt.Printf("-- %s\n", tr.To)
	}
}

func printEvent(ev event.Event) {
	switch e := ev.(type) {
	case event.SyncState:
		fmt.Printf("snapshot: tick=%d factions=%d offers=%d trades=%d\n",
			e.Snapshot.Tick, len(e.Snapshot.Factions),
			len(e.Snapshot.OpenOffers), len(e.Snapshot.RecentTrades))

	case event.TimeTick:
		fmt.Printf("tick %d @ %s\n", e.Tick, e.SimTime.Format(time.RFC3339))

	case event.WorldUpdateBatch:
		fmt.Printf("world update: tick=%d factions=%d\n", e.Tick, len(e.Factions))

	case event.WorldUpdate:
		fmt.Printf("world update: faction=%s gdp=%.0f\n", e.Faction.ID, e.Faction.GDP)

	case event.TradeOfferCreated:
		o := e.Offer
		fmt.Printf("offer: %s sells %.1f %s @ %.2f %s\n",
			o.Seller, o.Quantity, o.Resource, o.UnitPrice, o.Currency)

	case event.TradeCompleted:
		t := e.Trade
		fmt.Printf("trade: %s -> %s %.1f %s for %.2f %s (tax %.2f)\n",
			t.Seller, t.Buyer, t.Quantity, t.Resource, t.TotalCost, t.Currency, t.Tax)

	case event.MarketPriceBatch:
		fmt.Printf("prices: tick=%d entries=%d\n", e.Tick, len(e.Prices))

	case event.FXRateBatch:
		b := e.Batch
		fmt.Printf("fx: base=%s currencies=%d changed=%v\n",
			b.BaseCurrency, len(b.Rates), b.Changed)

	default:
		fmt.Printf("event: %s\n", ev.Name())
	}
}
