// Package autoresponder implements the policy that reacts to Match Engine
// transitions by injecting canned replies (spec.md §4.6).
package autoresponder

import (
	"log"

	"github.com/ianremillard/agentyes/internal/inputmux"
	"github.com/ianremillard/agentyes/internal/matcher"
	"github.com/ianremillard/agentyes/internal/profile"
)

// Injector is the subset of *inputmux.Mux the Auto-Responder needs, kept as
// an interface so tests can substitute a fake.
type Injector interface {
	InjectAutoResponse(keys []byte)
}

// Responder wires a profile's reply policy to an injector.
type Responder struct {
	profile  *profile.Profile
	injector Injector
	debug    *log.Logger
}

// New creates a Responder. If p.AutoYes is false, OnTransition becomes a
// no-op for every transition — the supervisor still runs, purely as a
// logger + multiplexer (spec.md §4.6).
func New(p *profile.Profile, injector Injector, debug *log.Logger) *Responder {
	return &Responder{profile: p, injector: injector, debug: debug}
}

// OnTransition is the Match Engine's transition callback.
func (r *Responder) OnTransition(tr matcher.Transition) {
	if r.debug != nil {
		r.debug.Printf("match: %s -> %s", tr.From, tr.To)
	}

	switch tr.To {
	case matcher.StateAwaitingConfirm:
		r.maybeReply("auto-yes disabled", r.profile == nil || !r.profile.AutoYes)
	case matcher.StateAwaitingDangerous:
		// spec.md §4.6: withhold unless the profile explicitly opts in, and
		// autoYes=false disables all auto-injection regardless of opt-in.
		r.maybeReply("dangerous confirmation requires explicit opt-in",
			r.profile == nil || !r.profile.AutoYes || !r.profile.RespondToDangerous)
	}
}

func (r *Responder) maybeReply(suppressReason string, suppress bool) {
	if suppress {
		if r.debug != nil {
			r.debug.Printf("auto-responder: suppressed (%s)", suppressReason)
		}
		return
	}

	keys := r.profile.ReplyKeys
	if keys == "" {
		keys = "\n"
	}
	if r.debug != nil {
		r.debug.Printf("auto-responder: injecting reply %q", keys)
	}
	r.injector.InjectAutoResponse([]byte(keys))
}
