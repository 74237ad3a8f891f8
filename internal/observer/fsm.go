// Package observer implements the client side of the sync channel: a
// websocket connection driven by a pure state machine, with exponential
// reconnect backoff and a watchdog that requests the full snapshot when the
// server does not deliver one promptly.
package observer

// State is the connection lifecycle state.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected" // socket up, snapshot not yet received
	StateSynced       State = "synced"
	StateDisconnected State = "disconnected" // deliberate close, no retry
	StateRetrying     State = "retrying"
	StateFailed       State = "failed" // retries exhausted, manual reconnect only
)

// Input is an external stimulus fed to the state machine.
type Input string

const (
	InputDial         Input = "dial"
	InputDialOK       Input = "dial_ok"
	InputDialFailed   Input = "dial_failed"
	InputSnapshot     Input = "snapshot"
	InputConnLost     Input = "conn_lost"
	InputRetryElapsed Input = "retry_elapsed"
	InputClose        Input = "close"
	InputReconnect    Input = "reconnect" // manual, the only way out of failed
)

// Action is the side effect the driver must perform after a transition.
type Action int

const (
	ActionNone Action = iota
	ActionDial
	ActionArmRetry
)

// Decision is the outcome of one transition.
type Decision struct {
	Next   State
	Action Action
}

// Next is the pure transition function. retries is the number of consecutive
// failed attempts before this input; the machine enters failed once that
// count would reach maxRetries. It performs no I/O and arms no timers itself,
// which keeps every path table-testable.
func Next(cur State, in Input, retries, maxRetries int) Decision {
	// Close cuts across all states; manual reconnect applies only once the
	// machine has given up or been closed.
	switch in {
	case InputClose:
		return Decision{Next: StateDisconnected}
	case InputReconnect:
		if cur == StateFailed || cur == StateDisconnected {
			return Decision{Next: StateConnecting, Action: ActionDial}
		}
		return Decision{Next: cur}
	}

	switch cur {
	case StateIdle, StateDisconnected:
		if in == InputDial {
			return Decision{Next: StateConnecting, Action: ActionDial}
		}

	case StateConnecting:
		switch in {
		case InputDialOK:
			return Decision{Next: StateConnected}
		case InputDialFailed:
			return retryOrFail(retries, maxRetries)
		}

	case StateConnected:
		switch in {
		case InputSnapshot:
			return Decision{Next: StateSynced}
		case InputConnLost:
			return retryOrFail(retries, maxRetries)
		}

	case StateSynced:
		if in == InputConnLost {
			return retryOrFail(retries, maxRetries)
		}

	case StateRetrying:
		if in == InputRetryElapsed {
			return Decision{Next: StateConnecting, Action: ActionDial}
		}

	case StateFailed:
		// Absorbing: no timer is ever armed here. Only InputReconnect
		// (handled above) leaves this state.
	}

	return Decision{Next: cur}
}

func retryOrFail(retries, maxRetries int) Decision {
	if retries+1 >= maxRetries {
		return Decision{Next: StateFailed}
	}
	return Decision{Next: StateRetrying, Action: ActionArmRetry}
}
