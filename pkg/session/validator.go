package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

var validatorTracer = otel.Tracer("factindex/session/validator")

var errRefreshNotExtended = errors.New("refreshed token does not extend expiry")

// Recorder receives validation events for metrics
type Recorder interface {
	ObserveValidation(provider, outcome, reason string, destroyed bool)
	ObserveRefresh(provider string, ok bool)
	ObserveCacheLookup(provider, result string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveValidation(string, string, string, bool) {}
func (nopRecorder) ObserveRefresh(string, bool)                    {}
func (nopRecorder) ObserveCacheLookup(string, string)              {}

// Result is the outcome of one validation
type Result struct {
	Status AuthStatus

	// Destroy tells the caller to end the session
	Destroy bool

	// Refreshed and Reauthorized report that the record was mutated and should be saved
	Refreshed    bool
	Reauthorized bool
}

// Dirty reports whether the record changed during validation
func (r Result) Dirty() bool {
	return r.Refreshed || r.Reauthorized
}

// ValidatorOptions configures a Validator
type ValidatorOptions struct {
	// CacheTTL is how long a granted authorization stays fresh. Defaults to DefaultCacheTTL.
	CacheTTL time.Duration
	Logger   logrus.FieldLogger
	Recorder Recorder
}

// Validator decides on every request whether a credential record is still valid
type Validator struct {
	adapters map[Provider]Adapter
	cache    AuthorizationCache
	ttl      time.Duration
	logger   logrus.FieldLogger
	recorder Recorder
	checks   singleflight.Group
}

// NewValidator creates a validator dispatching to the given adapters by provider tag
func NewValidator(adapters []Adapter, cache AuthorizationCache, opts ValidatorOptions) (*Validator, error) {
	if cache == nil {
		return nil, fmt.Errorf("authorization cache is required")
	}

	byProvider := make(map[Provider]Adapter, len(adapters))
	for _, a := range adapters {
		p := a.Provider()
		if !p.Known() {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, p)
		}
		if _, dup := byProvider[p]; dup {
			return nil, fmt.Errorf("duplicate adapter for provider %s", p)
		}
		byProvider[p] = a
	}

	v := &Validator{
		adapters: byProvider,
		cache:    cache,
		ttl:      opts.CacheTTL,
		logger:   opts.Logger,
		recorder: opts.Recorder,
	}
	if v.ttl <= 0 {
		v.ttl = DefaultCacheTTL
	}
	if v.logger == nil {
		v.logger = logrus.StandardLogger()
	}
	if v.recorder == nil {
		v.recorder = nopRecorder{}
	}
	return v, nil
}

// Adapter returns the adapter registered for p
func (v *Validator) Adapter(p Provider) (Adapter, bool) {
	a, ok := v.adapters[p]
	return a, ok
}

// Validate checks rec and may refresh its tokens or rewrite its authorization snapshot
// in place. It never panics; unexpected failures yield reason unexpected_error.
func (v *Validator) Validate(ctx context.Context, rec *CredentialRecord, in Input) (res Result) {
	if in.Now.IsZero() {
		in.Now = time.Now()
	}

	var provider string
	if rec != nil {
		provider = string(rec.Provider)
	}

	ctx, span := validatorTracer.Start(ctx, "Validate",
		trace.WithAttributes(attribute.String("provider", provider)),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			v.logger.WithFields(logrus.Fields{
				"provider": provider,
				"panic":    r,
			}).Error("Recovered from panic during session validation")
			span.SetStatus(codes.Error, "panic")
			res = Result{Status: Assemble(rec, Fail(ReasonUnexpectedError))}
		}

		outcome := "unauthenticated"
		if res.Status.Authenticated {
			outcome = "authenticated"
			if res.Status.Degraded {
				outcome = "degraded"
			}
		}
		span.SetAttributes(
			attribute.String("outcome", outcome),
			attribute.String("reason", string(res.Status.Reason)),
			attribute.Bool("destroy", res.Destroy),
		)
		v.recorder.ObserveValidation(provider, outcome, string(res.Status.Reason), res.Destroy)
	}()

	return v.validate(ctx, rec, in)
}

func (v *Validator) validate(ctx context.Context, rec *CredentialRecord, in Input) Result {
	if rec == nil {
		return Result{Status: Assemble(nil, Fail(ReasonNotLoggedIn))}
	}

	log := v.logger.WithFields(logrus.Fields{
		"provider":     rec.Provider,
		"principal_id": rec.ID,
	})

	if !rec.Provider.Known() {
		log.Warn("Session carries unknown provider")
		return Result{Status: Assemble(rec, Fail(ReasonUnknownProvider)), Destroy: true}
	}

	adapter, ok := v.adapters[rec.Provider]
	if !ok || !adapter.Enabled() {
		log.Info("Provider disabled, ending session")
		return Result{Status: Assemble(rec, Fail(DisabledReason(rec.Provider))), Destroy: true}
	}

	var res Result
	if adapter.NeedsRefresh(rec, in.Now) {
		if err := v.refresh(ctx, adapter, rec, in.Now); err != nil {
			log.WithError(err).Warn("Token refresh failed")
			return Result{Status: Assemble(rec, Fail(ReasonTokenExpired))}
		}
		res.Refreshed = true
	}

	out, reauthorized, destroy := v.authorize(ctx, log, adapter, rec, in)
	res.Status = Assemble(rec, out)
	res.Reauthorized = reauthorized
	res.Destroy = destroy
	return res
}

// refresh performs exactly one refresh attempt and applies the result only on success
func (v *Validator) refresh(ctx context.Context, adapter Adapter, rec *CredentialRecord, now time.Time) error {
	ctx, span := validatorTracer.Start(ctx, "Refresh")
	defer span.End()

	tokens, err := adapter.Refresh(ctx, rec, now)
	if err == nil && !tokens.ExpiresAt.After(now) {
		err = errRefreshNotExtended
	}
	v.recorder.ObserveRefresh(string(rec.Provider), err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
		return err
	}

	tokens.apply(rec)
	return nil
}

func (v *Validator) authorize(ctx context.Context, log logrus.FieldLogger, adapter Adapter, rec *CredentialRecord, in Input) (out Outcome, reauthorized, destroy bool) {
	check := adapter.CheckName()

	var cached CacheEntry
	var hasCached bool
	if check != "" {
		entry, ok, err := v.cache.Get(ctx, rec.Provider, rec.ID)
		if err != nil {
			log.WithError(err).Warn("Authorization cache lookup failed")
			ok = false
		}
		switch {
		case ok && entry.Fresh(in.Now):
			v.recorder.ObserveCacheLookup(string(rec.Provider), "fresh")
			return Success(entry.Facts, false), false, false
		case ok:
			v.recorder.ObserveCacheLookup(string(rec.Provider), "stale")
		default:
			v.recorder.ObserveCacheLookup(string(rec.Provider), "miss")
		}
		cached, hasCached = entry, ok
	}

	decision := v.checkAuthorization(ctx, adapter, rec, in)

	switch decision.Kind {
	case DecisionGranted:
		if check != "" {
			if err := v.cache.Put(ctx, rec.Provider, rec.ID, decision.Facts, in.Now, v.ttl); err != nil {
				log.WithError(err).Warn("Failed to store authorization decision")
			}
		}
		rec.Authorization = &AuthorizationSnapshot{Facts: decision.Facts, CapturedAt: in.Now}
		return Success(decision.Facts, false), check != "", false

	case DecisionDenied:
		log.WithField("reason", decision.Reason).Info("Authorization denied")
		v.forget(ctx, log, rec, check)
		return Deny(decision.Reason), false, false

	case DecisionTerminate:
		log.WithField("reason", decision.Reason).Warn("Authorization terminated session")
		v.forget(ctx, log, rec, check)
		return Deny(decision.Reason), false, true

	case DecisionUnavailable:
		reason := decision.Reason
		if reason == "" {
			reason = FetchFailedReason(check)
		}
		if decision.Fallback && hasCached {
			log.WithError(decision.Err).WithField("verified_at", cached.VerifiedAt).
				Warn("Upstream authorization unavailable, using cached decision")
			return Success(cached.Facts, true), false, false
		}
		log.WithError(decision.Err).WithField("reason", reason).Warn("Upstream authorization unavailable")
		return Fail(reason), false, false

	default:
		log.WithField("kind", decision.Kind).Error("Adapter returned unknown decision")
		return Fail(ReasonUnexpectedError), false, false
	}
}

// forget drops the cached grant so a later upstream outage cannot revive a refused principal
func (v *Validator) forget(ctx context.Context, log logrus.FieldLogger, rec *CredentialRecord, check string) {
	if check == "" {
		return
	}
	if err := v.cache.Delete(ctx, rec.Provider, rec.ID); err != nil {
		log.WithError(err).Warn("Failed to drop authorization decision")
	}
}

// checkAuthorization collapses concurrent upstream checks for one principal. Checks with no
// upstream component depend on per-request input and always run directly.
func (v *Validator) checkAuthorization(ctx context.Context, adapter Adapter, rec *CredentialRecord, in Input) Decision {
	check := adapter.CheckName()
	if check == "" {
		return adapter.CheckAuthorization(ctx, rec, in)
	}

	ctx, span := validatorTracer.Start(ctx, "CheckAuthorization",
		trace.WithAttributes(attribute.String("check", check)),
	)
	defer span.End()

	// The shared call outlives any single caller; the upstream client timeout bounds it
	shared := context.WithoutCancel(ctx)
	ch := v.checks.DoChan(cacheKey(rec.Provider, rec.ID), func() (val interface{}, err error) {
		// DoChan re-panics on its own goroutine, so panics come back as errors
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("authorization check panicked: %v", r)
			}
		}()
		return adapter.CheckAuthorization(shared, rec, in), nil
	})

	var decision Decision
	var joined bool
	select {
	case r := <-ch:
		if r.Err != nil {
			panic(r.Err)
		}
		decision, joined = r.Val.(Decision), r.Shared
	case <-ctx.Done():
		decision = Unavailable(check, ctx.Err())
	}

	span.SetAttributes(
		attribute.String("decision", decision.Kind.String()),
		attribute.Bool("shared", joined),
	)
	if decision.Err != nil {
		span.RecordError(decision.Err)
	}
	return decision
}
