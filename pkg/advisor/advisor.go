// Package advisor provides an optional LLM-backed reasoning step consulted
// by the agent-decision tick (spec §4.7.8) to draft alert summaries and
// rank rebalance/alert proposals before they are enqueued as
// PENDING_APPROVAL commands. An Advisor never executes anything itself;
// every proposal it returns still flows through the normal approval
// pipeline.
package advisor

import (
	"context"
	"fmt"
)

// Proposal is one candidate action the advisor suggests enqueuing as a
// PENDING_APPROVAL command.
type Proposal struct {
	Kind       string  `json:"kind"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"` // 0..1, used for cooldown/ranking
	RawCommand string  `json:"raw_command"`
}

// Request bundles the context the agent-decision tick gives the advisor:
// recent activity, cached balances, and outstanding alerts, all rendered
// as plain text since each backend has its own prompt format.
type Request struct {
	DocumentID      string
	RecentActivity  []string
	Balances        []string
	OutstandingAlerts []string
}

// Response is the advisor's output: a human-readable summary plus zero
// or more ranked proposals.
type Response struct {
	Summary   string
	Proposals []Proposal
}

// Advisor is the capability interface the agent-decision tick consults.
// Absent configuration means the tick runs its deterministic heuristics
// only (spec §4.9 of SPEC_FULL).
type Advisor interface {
	Advise(ctx context.Context, req Request) (*Response, error)
}

// NoopAdvisor always returns an empty response. It is the default when
// no backend is configured, so the agent-decision tick can call Advisor
// unconditionally.
type NoopAdvisor struct{}

func (NoopAdvisor) Advise(_ context.Context, _ Request) (*Response, error) {
	return &Response{}, nil
}

// New selects a backend by name ("anthropic", "openai", "copilot") using
// the supplied API key. An empty or "none" backend, or a known backend
// whose API key is empty, yields a NoopAdvisor, since advisor
// consultation is always optional; an unrecognized backend name is an
// error.
func New(backend string, anthropicKey, openaiKey, copilotKey string) (Advisor, error) {
	switch backend {
	case "", "none":
		return NoopAdvisor{}, nil
	case "anthropic":
		if anthropicKey == "" {
			return NoopAdvisor{}, nil
		}
		return newAnthropicAdvisor(anthropicKey), nil
	case "openai":
		if openaiKey == "" {
			return NoopAdvisor{}, nil
		}
		return newOpenAIAdvisor(openaiKey), nil
	case "copilot":
		if copilotKey == "" {
			return NoopAdvisor{}, nil
		}
		return newCopilotAdvisor(copilotKey), nil
	default:
		return nil, fmt.Errorf("advisor: unknown backend %q", backend)
	}
}
