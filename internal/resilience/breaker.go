// Package resilience wraps every outbound call to an external dependency in
// a circuit breaker, a bounded retry policy, and a mandatory per-dependency
// timeout, and records a service-status snapshot after every attempt.
package resilience

import (
	"context"
	"log"
	"strconv"
	"time"

	"medianest/backend/internal/counterstore"
)

// State is the circuit-breaker state for one dependency.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Breaker hash fields at counterstore.BreakerKey(name).
const (
	fieldState        = "state"
	fieldFailures     = "failures"
	fieldOpenedAt     = "opened_at"
	fieldNextProbeAt  = "next_probe_at"
	fieldResetTimeout = "reset_timeout_ms"
)

// Settings tunes one dependency's breaker and retry envelope.
type Settings struct {
	// FailureThreshold is the consecutive-failure count that opens the breaker.
	FailureThreshold int64
	// ResetTimeout is the cool-down before the first half-open probe.
	ResetTimeout time.Duration
	// MaxResetTimeout caps the cool-down growth on repeated open transitions.
	MaxResetTimeout time.Duration
	// CallTimeout bounds every attempt. A hung connection must never block
	// the caller past this.
	CallTimeout time.Duration
	// MaxAttempts is the total attempts per call (first try plus retries),
	// applied to transient errors only.
	MaxAttempts int
}

// Breaker holds circuit state for one dependency in the counter store, so
// every service instance observes the same state. All transitions go through
// compare-and-swap operations; concurrent callers cannot double-transition.
type Breaker struct {
	name     string
	store    counterstore.Store
	settings Settings
	nowF     func() time.Time
}

// NewBreaker returns a breaker for the named dependency.
func NewBreaker(name string, store counterstore.Store, settings Settings) *Breaker {
	return &Breaker{
		name:     name,
		store:    store,
		settings: settings,
		nowF:     func() time.Time { return time.Now().UTC() },
	}
}

// SetNow overrides the breaker clock. Test helper.
func (b *Breaker) SetNow(f func() time.Time) { b.nowF = f }

// Name returns the dependency name.
func (b *Breaker) Name() string { return b.name }

// Allow reports whether a call may proceed. probe is true when this caller
// won the single half-open probe slot. When the store is unreachable the
// breaker degrades to pass-through: a broken coordination store must not take
// every dependency down with it.
func (b *Breaker) Allow(ctx context.Context) (allowed, probe bool) {
	fields, err := b.store.GetFields(ctx, counterstore.BreakerKey(b.name))
	if err != nil {
		log.Printf("resilience: breaker %s state read failed: %v", b.name, err)
		return true, false
	}
	state := State(fields[fieldState])
	switch state {
	case "", StateClosed:
		return true, false
	case StateHalfOpen:
		nextProbe, _ := strconv.ParseInt(fields[fieldNextProbeAt], 10, 64)
		if b.nowF().Unix() < nextProbe {
			// A probe is in flight somewhere within its lease.
			return false, false
		}
		// The probe holder never reported back. Reopen the slot so the
		// dependency is not stuck half-open forever.
		swapped, _, err := b.store.CompareAndSwapField(ctx,
			counterstore.BreakerKey(b.name), fieldState, string(StateHalfOpen), string(StateOpen), nil)
		if err != nil {
			log.Printf("resilience: breaker %s probe reclaim failed: %v", b.name, err)
			return false, false
		}
		if !swapped {
			return false, false
		}
		return b.takeProbe(ctx)
	case StateOpen:
		nextProbe, _ := strconv.ParseInt(fields[fieldNextProbeAt], 10, 64)
		if b.nowF().Unix() < nextProbe {
			return false, false
		}
		return b.takeProbe(ctx)
	default:
		return true, false
	}
}

// takeProbe claims the single half-open probe slot. The CAS re-arms
// next_probe_at with a lease, so a probe whose process dies before
// reporting frees the slot once the lease runs out.
func (b *Breaker) takeProbe(ctx context.Context) (allowed, probe bool) {
	lease := b.settings.ResetTimeout
	if lease <= 0 {
		lease = 30 * time.Second
	}
	swapped, _, err := b.store.CompareAndSwapField(ctx,
		counterstore.BreakerKey(b.name), fieldState, string(StateOpen), string(StateHalfOpen),
		map[string]string{
			fieldNextProbeAt: strconv.FormatInt(b.nowF().Add(lease).Unix(), 10),
		})
	if err != nil {
		log.Printf("resilience: breaker %s half-open swap failed: %v", b.name, err)
		return false, false
	}
	// Exactly one concurrent caller wins the probe.
	return swapped, swapped
}

// OnSuccess records a successful call. A successful probe closes the breaker
// and resets both the failure count and the cool-down; a success while closed
// resets the failure count.
func (b *Breaker) OnSuccess(ctx context.Context, probe bool) {
	key := counterstore.BreakerKey(b.name)
	if probe {
		_, _, err := b.store.CompareAndSwapField(ctx, key, fieldState, string(StateHalfOpen), string(StateClosed), map[string]string{
			fieldFailures:     "0",
			fieldResetTimeout: strconv.FormatInt(b.settings.ResetTimeout.Milliseconds(), 10),
		})
		if err != nil {
			log.Printf("resilience: breaker %s close failed: %v", b.name, err)
		}
		return
	}
	if err := b.store.SetFields(ctx, key, map[string]string{fieldFailures: "0"}, 0); err != nil {
		log.Printf("resilience: breaker %s failure reset failed: %v", b.name, err)
	}
}

// OnFailure records a failed call. A failed probe reopens the breaker with a
// grown cool-down; a failure while closed increments the consecutive-failure
// count and opens the breaker when it crosses the threshold.
func (b *Breaker) OnFailure(ctx context.Context, probe bool) {
	key := counterstore.BreakerKey(b.name)
	now := b.nowF()
	if probe {
		fields, err := b.store.GetFields(ctx, key)
		if err != nil {
			log.Printf("resilience: breaker %s state read failed: %v", b.name, err)
			return
		}
		cooldown := b.nextCooldown(fields)
		_, _, err = b.store.CompareAndSwapField(ctx, key, fieldState, string(StateHalfOpen), string(StateOpen), map[string]string{
			fieldOpenedAt:     strconv.FormatInt(now.Unix(), 10),
			fieldNextProbeAt:  strconv.FormatInt(now.Add(cooldown).Unix(), 10),
			fieldResetTimeout: strconv.FormatInt(cooldown.Milliseconds(), 10),
		})
		if err != nil {
			log.Printf("resilience: breaker %s reopen failed: %v", b.name, err)
		}
		return
	}
	n, err := b.store.IncrField(ctx, key, fieldFailures, 1)
	if err != nil {
		log.Printf("resilience: breaker %s failure count failed: %v", b.name, err)
		return
	}
	if n < b.settings.FailureThreshold {
		return
	}
	cooldown := b.settings.ResetTimeout
	_, _, err = b.store.CompareAndSwapField(ctx, key, fieldState, "", string(StateOpen), map[string]string{
		fieldOpenedAt:     strconv.FormatInt(now.Unix(), 10),
		fieldNextProbeAt:  strconv.FormatInt(now.Add(cooldown).Unix(), 10),
		fieldResetTimeout: strconv.FormatInt(cooldown.Milliseconds(), 10),
	})
	if err != nil {
		log.Printf("resilience: breaker %s open failed: %v", b.name, err)
		return
	}
	// The state field is "closed" (not empty) once the breaker has cycled;
	// retry the swap from the explicit value.
	_, _, _ = b.store.CompareAndSwapField(ctx, key, fieldState, string(StateClosed), string(StateOpen), map[string]string{
		fieldOpenedAt:     strconv.FormatInt(now.Unix(), 10),
		fieldNextProbeAt:  strconv.FormatInt(now.Add(cooldown).Unix(), 10),
		fieldResetTimeout: strconv.FormatInt(cooldown.Milliseconds(), 10),
	})
}

// nextCooldown doubles the previous cool-down up to the configured ceiling.
func (b *Breaker) nextCooldown(fields map[string]string) time.Duration {
	prevMs, _ := strconv.ParseInt(fields[fieldResetTimeout], 10, 64)
	prev := time.Duration(prevMs) * time.Millisecond
	if prev <= 0 {
		prev = b.settings.ResetTimeout
	}
	next := prev * 2
	if max := b.settings.MaxResetTimeout; max > 0 && next > max {
		next = max
	}
	return next
}

// CurrentState returns the breaker state and consecutive-failure count for
// the status surface. A missing key reads as closed with zero failures.
func (b *Breaker) CurrentState(ctx context.Context) (State, int64, error) {
	fields, err := b.store.GetFields(ctx, counterstore.BreakerKey(b.name))
	if err != nil {
		return StateClosed, 0, err
	}
	state := State(fields[fieldState])
	if state == "" {
		state = StateClosed
	}
	failures, _ := strconv.ParseInt(fields[fieldFailures], 10, 64)
	return state, failures, nil
}
