package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/floe/internal/interaction"
)

// FollowupSender delivers a late-arriving result after a deferral
// acknowledgment has already been sent.
type FollowupSender interface {
	Deliver(ctx context.Context, token string, resp *interaction.Response) error
}

// Default hard deadline for producing the synchronous acknowledgment. The
// platform closes the response window at three seconds.
const defaultAckDeadline = 3 * time.Second

// Dispatcher executes the full lifecycle of one interaction: routing, the
// race between handler completion and the auto-defer timer, and the detached
// follow-up phase. All registration must finish before the first Dispatch
// call; the routing table is read-only afterwards.
type Dispatcher struct {
	router      *Router
	followup    FollowupSender
	autoDefer   AutoDefer
	ackDeadline time.Duration
	onOutcome   OutcomeFunc

	sealed   atomic.Bool
	detached sync.WaitGroup
}

// Option configures optional Dispatcher parameters.
type Option func(*Dispatcher)

// WithDefaultAutoDefer sets the auto-defer policy applied to routes without
// their own override.
func WithDefaultAutoDefer(policy AutoDefer) Option {
	return func(d *Dispatcher) {
		d.autoDefer = policy
	}
}

// WithAckDeadline sets the hard synchronous-response deadline used when
// auto-defer is disabled.
func WithAckDeadline(deadline time.Duration) Option {
	return func(d *Dispatcher) {
		d.ackDeadline = deadline
	}
}

// WithOutcomeFunc installs an observer for terminal dispatch outcomes.
func WithOutcomeFunc(f OutcomeFunc) Option {
	return func(d *Dispatcher) {
		d.onOutcome = f
	}
}

// New creates a Dispatcher over a router and a follow-up sender.
func New(router *Router, followup FollowupSender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		router:      router,
		followup:    followup,
		ackDeadline: defaultAckDeadline,
	}
	for _, opt := range opts {
		opt(d)
	}
	router.sealed = d.sealed.Load
	return d
}

// Wait blocks until all detached follow-up work has finished. Used during
// graceful shutdown and in tests.
func (d *Dispatcher) Wait() {
	d.detached.Wait()
}

// Dispatch parses a verified request body, routes it, runs the handler race,
// and returns the serialized synchronous response. The caller must have
// authenticated the body already.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte) ([]byte, error) {
	d.sealed.Store(true)

	in, err := interaction.Parse(body)
	if err != nil {
		d.report(nil, OutcomeRejected, err)
		return nil, fmt.Errorf("dispatch.Dispatcher.Dispatch: %w", err)
	}

	resp, err := d.DispatchInteraction(ctx, in)
	if err != nil {
		return nil, err
	}

	out, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("dispatch.Dispatcher.Dispatch: marshal response: %w", err)
	}
	return out, nil
}

// DispatchInteraction runs the lifecycle of an already-parsed interaction
// and returns the synchronous response. An error is returned only for the
// missed-deadline misconfiguration case; every other failure is rendered as
// a visible response.
func (d *Dispatcher) DispatchInteraction(ctx context.Context, in *interaction.Interaction) (*interaction.Response, error) {
	d.sealed.Store(true)

	// Liveness check: answered without touching the router.
	if in.Type == interaction.TypePing {
		d.report(in, OutcomeRespondedDirectly, nil)
		return interaction.Pong(), nil
	}

	handler, override, err := d.router.Resolve(in)
	if err != nil {
		log.Warn().
			Stringer("interaction_id", in.ID).
			Int("type", int(in.Type)).
			Err(err).
			Msg("no handler for interaction")
		d.report(in, OutcomeRejected, err)
		return notFoundResponse(in), nil
	}

	policy := d.autoDefer
	if override != nil {
		policy = *override
	}
	// Autocomplete has no deferral variant on the wire.
	if in.Type == interaction.TypeAutocomplete {
		policy.Enabled = false
	}

	return d.run(ctx, in, handler, policy)
}

type handlerResult struct {
	resp *interaction.Response
	err  error
}

// run races the handler against the auto-defer timer. Exactly one of the two
// reaches the commit point; the synchronous response is whatever was
// committed first, and everything after a committed deferral happens in the
// detached phase.
func (d *Dispatcher) run(ctx context.Context, in *interaction.Interaction, handler Handler, policy AutoDefer) (*interaction.Response, error) {
	// The handler may outlive the request/response cycle, so it must not be
	// cancelled when the transport connection drops.
	hctx := context.WithoutCancel(ctx)

	done := make(chan handlerResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- handlerResult{err: fmt.Errorf("dispatch: handler panic: %v", r)}
			}
		}()
		resp, err := handler(hctx, in)
		done <- handlerResult{resp: resp, err: err}
	}()

	var timerC <-chan time.Time
	var deadlineC <-chan time.Time
	if policy.Enabled {
		timer := time.NewTimer(policy.Timeout)
		defer timer.Stop()
		timerC = timer.C
	} else {
		deadline := time.NewTimer(d.ackDeadline)
		defer deadline.Stop()
		deadlineC = deadline.C
	}

	select {
	case res := <-done:
		return d.commitHandlerResult(hctx, in, res), nil

	case <-timerC:
		ack := deferralAck(in, policy)
		d.spawnDetached(hctx, in, done)
		return ack, nil

	case <-deadlineC:
		// Auto-defer disabled and the handler is still running: the
		// application broke the platform contract. Reported, not rescued.
		err := fmt.Errorf("dispatch.Dispatcher: %w", ErrMissedDeadline)
		log.Error().
			Stringer("interaction_id", in.ID).
			Dur("deadline", d.ackDeadline).
			Msg("handler missed the ack deadline with auto-defer disabled")
		d.drainAbandoned(in, done)
		d.report(in, OutcomeMissedDeadline, err)
		return nil, err
	}
}

// commitHandlerResult handles the case where the handler finished inside the
// synchronous window.
func (d *Dispatcher) commitHandlerResult(hctx context.Context, in *interaction.Interaction, res handlerResult) *interaction.Response {
	if res.err != nil {
		log.Error().
			Stringer("interaction_id", in.ID).
			Err(res.err).
			Msg("handler failed")
		d.report(in, OutcomeRejected, res.err)
		return errorResponse(in)
	}

	// A nil response is the handler saying "I will finish later myself".
	resp := res.resp
	if resp == nil {
		resp = interaction.NewDeferred(nil, false)
	}

	if resp.IsDeferral() {
		cont := resp.Continuation
		if cont == nil {
			// The application owns the follow-up; the deferral itself is the
			// terminal state we can observe.
			d.report(in, OutcomeDeferredThenFollowedUp, nil)
			return resp
		}

		d.detached.Add(1)
		go func() {
			defer d.detached.Done()
			contResp, err := cont(hctx, in)
			if err != nil {
				log.Error().
					Stringer("interaction_id", in.ID).
					Err(err).
					Msg("deferred continuation failed")
				d.report(in, OutcomeDeferredThenFailed, err)
				return
			}
			d.deliver(hctx, in, contResp)
		}()
		return resp
	}

	d.report(in, OutcomeRespondedDirectly, nil)
	return resp
}

// spawnDetached waits for the handler after an auto-defer acknowledgment was
// committed and delivers its eventual result as the follow-up.
func (d *Dispatcher) spawnDetached(hctx context.Context, in *interaction.Interaction, done <-chan handlerResult) {
	d.detached.Add(1)
	go func() {
		defer d.detached.Done()

		res := <-done
		if res.err != nil {
			log.Error().
				Stringer("interaction_id", in.ID).
				Err(res.err).
				Msg("handler failed after auto-defer")
			d.report(in, OutcomeDeferredThenFailed, res.err)
			return
		}

		resp := res.resp
		if resp != nil && resp.IsDeferral() {
			// Already auto-deferred; only the continuation can still produce
			// a deliverable result.
			if resp.Continuation == nil {
				d.report(in, OutcomeDeferredThenFollowedUp, nil)
				return
			}
			contResp, err := resp.Continuation(hctx, in)
			if err != nil {
				d.report(in, OutcomeDeferredThenFailed, err)
				return
			}
			resp = contResp
		}
		if resp == nil {
			d.report(in, OutcomeDeferredThenFollowedUp, nil)
			return
		}

		d.deliver(hctx, in, resp)
	}()
}

// deliver performs exactly one follow-up attempt sequence for a deferred
// interaction.
func (d *Dispatcher) deliver(ctx context.Context, in *interaction.Interaction, resp *interaction.Response) {
	if err := d.followup.Deliver(ctx, in.Token, resp); err != nil {
		log.Error().
			Stringer("interaction_id", in.ID).
			Err(err).
			Msg("follow-up delivery failed")
		d.report(in, OutcomeDeferredThenFailed, err)
		return
	}
	d.report(in, OutcomeDeferredThenFollowedUp, nil)
}

// drainAbandoned consumes the eventual handler result of a missed-deadline
// interaction so the goroutine can exit, logging what would have been sent.
func (d *Dispatcher) drainAbandoned(in *interaction.Interaction, done <-chan handlerResult) {
	d.detached.Add(1)
	go func() {
		defer d.detached.Done()
		res := <-done
		if res.err != nil {
			log.Error().
				Stringer("interaction_id", in.ID).
				Err(res.err).
				Msg("abandoned handler failed")
			return
		}
		log.Warn().
			Stringer("interaction_id", in.ID).
			Msg("abandoned handler finished after the missed deadline")
	}()
}

func (d *Dispatcher) report(in *interaction.Interaction, outcome Outcome, err error) {
	if d.onOutcome != nil {
		d.onOutcome(in, outcome, err)
	}
}

// deferralAck builds the auto-defer acknowledgment: components defer with an
// update-style ack, everything else with a fresh deferred message.
func deferralAck(in *interaction.Interaction, policy AutoDefer) *interaction.Response {
	if in.Type == interaction.TypeMessageComponent {
		return interaction.NewDeferredUpdate(nil)
	}
	return interaction.NewDeferred(nil, policy.Ephemeral)
}

// notFoundResponse renders a routing miss as a minimal visible reply. The
// platform requires an acknowledgment, so a miss is never a silent drop.
func notFoundResponse(in *interaction.Interaction) *interaction.Response {
	if in.Type == interaction.TypeAutocomplete {
		return interaction.NewAutocompleteResult()
	}
	return interaction.NewEphemeralMessage("Unknown command.")
}

// errorResponse renders a handler failure that happened inside the
// synchronous window.
func errorResponse(in *interaction.Interaction) *interaction.Response {
	if in.Type == interaction.TypeAutocomplete {
		return interaction.NewAutocompleteResult()
	}
	return interaction.NewEphemeralMessage("Something went wrong while handling this interaction.")
}
