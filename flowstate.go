package authsession

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// FlowState represents the current state of an interactive authorize
// attempt.
type FlowState int

const (
	// FlowIdle means no attempt is running.
	FlowIdle FlowState = iota
	// FlowBuildingURL means the authorize URL is being constructed.
	FlowBuildingURL
	// FlowAwaitingCallback means the browser session is open and waiting
	// for the user.
	FlowAwaitingCallback
	// FlowExchangingCode means the authorization code is being exchanged
	// for tokens.
	FlowExchangingCode
	// FlowSucceeded means the attempt completed successfully.
	FlowSucceeded
	// FlowFailed means the attempt failed with an error.
	FlowFailed
)

// String returns a human-readable representation of the flow state.
func (s FlowState) String() string {
	switch s {
	case FlowIdle:
		return "idle"
	case FlowBuildingURL:
		return "building_url"
	case FlowAwaitingCallback:
		return "awaiting_callback"
	case FlowExchangingCode:
		return "exchanging_code"
	case FlowSucceeded:
		return "succeeded"
	case FlowFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// staleFlowTimeout is the age after which an abandoned attempt no longer
// blocks new ones.
const staleFlowTimeout = 10 * time.Minute

// flowContext tracks a single authorize attempt. The correlation ID links
// all log entries for the attempt.
type flowContext struct {
	CorrelationID string
	Namespace     string
	StartTime     time.Time
	State         FlowState
}

func newFlowContext(namespace string) *flowContext {
	return &flowContext{
		CorrelationID: uuid.New().String(),
		Namespace:     namespace,
		StartTime:     time.Now(),
		State:         FlowBuildingURL,
	}
}

// Duration returns the time elapsed since the attempt started.
func (f *flowContext) Duration() time.Duration {
	return time.Since(f.StartTime)
}

// flowGuard ensures a container runs at most one interactive authorize
// attempt at a time. Each attempt owns its own PKCE pair and browser
// session, so a second concurrent attempt is rejected rather than queued.
type flowGuard struct {
	mu     sync.Mutex
	active *flowContext
}

// begin registers a new attempt, or returns ErrFlowInProgress when one is
// already active. Attempts older than staleFlowTimeout are discarded.
func (g *flowGuard) begin(namespace string) (*flowContext, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active != nil && time.Since(g.active.StartTime) <= staleFlowTimeout {
		return nil, ErrFlowInProgress
	}
	flow := newFlowContext(namespace)
	g.active = flow
	return flow, nil
}

// transition advances the attempt's state.
func (g *flowGuard) transition(flow *flowContext, state FlowState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	flow.State = state
}

// end marks the attempt completed and frees the slot.
func (g *flowGuard) end(flow *flowContext, success bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if success {
		flow.State = FlowSucceeded
	} else {
		flow.State = FlowFailed
	}
	if g.active == flow {
		g.active = nil
	}
}
