package observer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"factionsim/internal/broadcast"
	"factionsim/internal/event"
	"factionsim/internal/protocol"
)

// DialFunc produces a connected Client. Injectable so the reconnect driver is
// testable without a server.
type DialFunc func(ctx context.Context) (Client, error)

// Config holds driver tuning.
type Config struct {
	URL   string
	Rooms []string // extra scopes joined after connect; world is automatic

	MaxRetries  int
	Backoff     Backoff
	SyncTimeout time.Duration // watchdog: re-request the snapshot after this
	EventBuffer int
}

// DefaultConfig returns sensible defaults; URL must be set.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  10,
		Backoff:     DefaultBackoff(),
		SyncTimeout: 5 * time.Second,
		EventBuffer: 256,
	}
}

// Transition reports one state change. RetryIn is the armed backoff delay
// when the new state is retrying, zero otherwise.
type Transition struct {
	From    State
	To      State
	RetryIn time.Duration
}

// Observer drives one observer connection through the lifecycle state
// machine: dial, sync, watch, reconnect with backoff, give up after
// MaxRetries until a manual Reconnect.
type Observer struct {
	cfg    Config
	dial   DialFunc
	clock  broadcast.Clock
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	inputs      chan Input
	events      chan event.Event
	transitions chan Transition

	mu         sync.Mutex
	state      State
	retries    int
	client     Client
	retryTimer broadcast.Timer
	syncTimer  broadcast.Timer
}

// New creates a stopped observer. A nil dial uses the real websocket client;
// a nil clock selects the system clock.
func New(cfg Config, dial DialFunc, clock broadcast.Clock, logger *slog.Logger) *Observer {
	if clock == nil {
		clock = broadcast.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	o := &Observer{
		cfg:         cfg,
		dial:        dial,
		clock:       clock,
		logger:      logger,
		inputs:      make(chan Input, 16),
		events:      make(chan event.Event, cfg.EventBuffer),
		transitions: make(chan Transition, 16),
		state:       StateIdle,
	}
	if o.dial == nil {
		o.dial = o.dialWebsocket
	}
	return o
}

// Start begins connecting.
func (o *Observer) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.ctx != nil {
		o.mu.Unlock()
		return fmt.Errorf("observer already started")
	}
	o.ctx, o.cancel = context.WithCancel(ctx)
	o.mu.Unlock()

	o.wg.Add(1)
	go o.run()

	o.feed(InputDial)
	return nil
}

// Stop tears the connection down and waits for the driver to exit.
func (o *Observer) Stop(ctx context.Context) error {
	if o.cancel != nil {
		o.cancel()
	}

	o.mu.Lock()
	o.stopTimersLocked()
	client := o.client
	o.mu.Unlock()
	if client != nil {
		client.Close()
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current lifecycle state.
func (o *Observer) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Events returns the decoded server event stream.
func (o *Observer) Events() <-chan event.Event { return o.events }

// Transitions returns state-change notifications, for UIs showing a retry
// countdown. Slow readers miss transitions rather than blocking the driver.
func (o *Observer) Transitions() <-chan Transition { return o.transitions }

// Reconnect manually restarts a failed observer.
func (o *Observer) Reconnect() { o.feed(InputReconnect) }

func (o *Observer) feed(in Input) {
	select {
	case o.inputs <- in:
	case <-o.ctx.Done():
	}
}

func (o *Observer) run() {
	defer o.wg.Done()

	for {
		select {
		case <-o.ctx.Done():
			return
		case in := <-o.inputs:
			o.apply(in)
		}
	}
}

// apply runs one FSM step and performs the decided side effects.
func (o *Observer) apply(in Input) {
	o.mu.Lock()
	prev := o.state
	d := Next(prev, in, o.retries, o.cfg.MaxRetries)
	o.state = d.Next

	var retryIn time.Duration
	switch {
	case d.Next == StateConnected && prev != StateConnected:
		o.retries = 0
	case in == InputReconnect && d.Action == ActionDial:
		// Manual restart gets a fresh retry budget.
		o.retries = 0
	case d.Action == ActionArmRetry:
		retryIn = o.cfg.Backoff.Delay(o.retries)
		o.retries++
		o.retryTimer = o.clock.AfterFunc(retryIn, func() { o.feed(InputRetryElapsed) })
	}

	client := o.client
	o.mu.Unlock()

	if d.Next != prev {
		o.logger.Info("observer state", "from", prev, "to", d.Next, "input", in)
		select {
		case o.transitions <- Transition{From: prev, To: d.Next, RetryIn: retryIn}:
		default:
		}
	}

	if d.Action == ActionDial {
		o.wg.Add(1)
		go o.connect()
	}

	switch d.Next {
	case StateConnected:
		if prev != StateConnected {
			o.onConnected()
		}
	case StateSynced:
		o.mu.Lock()
		if o.syncTimer != nil {
			o.syncTimer.Stop()
			o.syncTimer = nil
		}
		o.mu.Unlock()
	case StateRetrying, StateFailed, StateDisconnected:
		if client != nil {
			client.Close()
		}
		if d.Next == StateFailed {
			o.logger.Error("observer gave up after max retries; manual reconnect required",
				"max_retries", o.cfg.MaxRetries)
		}
	}
}

func (o *Observer) connect() {
	defer o.wg.Done()

	cl, err := o.dial(o.ctx)
	if err != nil {
		o.logger.Warn("dial failed", "url", o.cfg.URL, "error", err)
		o.feed(InputDialFailed)
		return
	}

	o.mu.Lock()
	o.client = cl
	o.mu.Unlock()
	o.feed(InputDialOK)
}

// onConnected joins the configured rooms, arms the sync watchdog, and starts
// the read loop for the new connection.
func (o *Observer) onConnected() {
	o.mu.Lock()
	cl := o.client
	o.mu.Unlock()
	if cl == nil {
		return
	}

	for _, room := range o.cfg.Rooms {
		msg, err := protocol.Encode(protocol.TypeRoomJoin, room)
		if err != nil {
			continue
		}
		if err := cl.Send(msg); err != nil {
			o.logger.Warn("room join failed", "room", room, "error", err)
		}
	}

	// The server sends the snapshot unprompted on connect; if it does not
	// arrive within the window, ask for it.
	o.mu.Lock()
	o.syncTimer = o.clock.AfterFunc(o.cfg.SyncTimeout, func() {
		if o.State() != StateConnected {
			return
		}
		o.logger.Warn("no snapshot within sync window, requesting", "timeout", o.cfg.SyncTimeout)
		if msg, err := protocol.Encode(protocol.TypeSyncRequest, ""); err == nil {
			cl.Send(msg)
		}
	})
	o.mu.Unlock()

	o.wg.Add(1)
	go o.readLoop(cl)
}

func (o *Observer) readLoop(cl Client) {
	defer o.wg.Done()

	for {
		select {
		case <-o.ctx.Done():
			return

		case err := <-cl.Errors():
			o.logger.Warn("connection lost", "error", err)
			o.feed(InputConnLost)
			return

		case data, ok := <-cl.Messages():
			if !ok {
				o.feed(InputConnLost)
				return
			}

			_, ev, err := event.Decode(data)
			if err != nil {
				o.logger.Warn("undecodable frame", "error", err)
				continue
			}
			if _, isSnapshot := ev.(event.SyncState); isSnapshot {
				o.feed(InputSnapshot)
			}

			select {
			case o.events <- ev:
			default:
				o.logger.Warn("event buffer full, dropping", "type", ev.Name())
			}
		}
	}
}

func (o *Observer) dialWebsocket(ctx context.Context) (Client, error) {
	cfg := DefaultClientConfig()
	cfg.URL = o.cfg.URL
	cl := NewClient(cfg, o.logger)
	if err := cl.Connect(ctx); err != nil {
		return nil, err
	}
	return cl, nil
}

func (o *Observer) stopTimersLocked() {
	if o.retryTimer != nil {
		o.retryTimer.Stop()
		o.retryTimer = nil
	}
	if o.syncTimer != nil {
		o.syncTimer.Stop()
		o.syncTimer = nil
	}
}
