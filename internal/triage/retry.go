package triage

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/aegis/internal/incident"
	"github.com/linnemanlabs/go-core/log"
)

var tracer = otel.Tracer("github.com/linnemanlabs/aegis/internal/triage")

const (
	// MaxAttempts is the total attempt cap: one initial call plus one retry.
	MaxAttempts = 2

	// RetryDelay is the fixed pause between a failed recoverable attempt and
	// the next one, to avoid hammering the inference provider.
	RetryDelay = 300 * time.Millisecond
)

// Hooks lets the controller report per-call and per-run events without a
// hard dependency on the metrics registry. Nil funcs are skipped.
type Hooks struct {
	OnLLMCall func(usage Usage, duration float64)
	OnOutcome func(outcome string, attempts int, duration float64)
}

// Outcome is a successful, validated triage run. The incident is not yet
// persisted; that is the lifecycle manager's job.
type Outcome struct {
	Incident  *incident.Incident
	RawAnswer string
	Attempts  int
}

// Controller wraps the invoker in a bounded retry loop. It owns only the
// control-flow policy: recoverable failures (schema rejection, malformed
// structured output) get one more attempt after a fixed delay; fatal
// failures and an exhausted cap return immediately.
type Controller struct {
	invoker *Invoker
	delay   time.Duration
	logger  log.Logger
	hooks   Hooks
}

// NewController creates a retry controller with the default attempt policy.
func NewController(invoker *Invoker, logger log.Logger, hooks Hooks) *Controller {
	if logger == nil {
		logger = log.Nop()
	}
	return &Controller{
		invoker: invoker,
		delay:   RetryDelay,
		logger:  logger,
		hooks:   hooks,
	}
}

// Run triages logText, retrying recoverable failures up to MaxAttempts total
// attempts. On success it returns the validated incident plus the raw model
// answer; on failure, the last classified error.
func (c *Controller) Run(ctx context.Context, logText, pastContext string) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "triage.run", trace.WithAttributes(
		attribute.Int("aegis.triage.max_attempts", MaxAttempts),
	))
	defer span.End()

	start := time.Now()
	attempts := 0

	outcome, err := backoff.Retry(ctx, func() (*Outcome, error) {
		attempts++
		return c.attempt(ctx, logText, pastContext, attempts)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(c.delay)),
		backoff.WithMaxTries(MaxAttempts),
	)

	span.SetAttributes(attribute.Int("aegis.triage.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, errOutcome(err))
		c.report(errOutcome(err), attempts, time.Since(start).Seconds())
		return nil, err
	}

	c.report("success", attempts, time.Since(start).Seconds())
	return outcome, nil
}

// attempt runs one provider call plus schema validation, wrapped in its own
// span so each retry is visible in the trace.
func (c *Controller) attempt(ctx context.Context, logText, pastContext string, attempt int) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "llm.call", trace.WithAttributes(
		attribute.String("gen_ai.operation.name", "llm.call"),
		attribute.Int("aegis.triage.attempt", attempt),
	))
	defer span.End()

	attemptStart := time.Now()

	res, err := c.invoker.Invoke(ctx, logText, pastContext)
	if err == nil {
		span.SetAttributes(
			attribute.Int("gen_ai.usage.input_tokens", res.Usage.InputTokens),
			attribute.Int("gen_ai.usage.output_tokens", res.Usage.OutputTokens),
		)
		if c.hooks.OnLLMCall != nil {
			c.hooks.OnLLMCall(res.Usage, time.Since(attemptStart).Seconds())
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "llm call failed")
		c.logger.Warn(ctx, "triage attempt failed", "attempt", attempt, "error", err)
		if ClassOf(err) == ClassFatal {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	validated, verr := incident.Validate(res.Candidate)
	if verr != nil {
		span.RecordError(verr)
		span.SetStatus(codes.Error, "schema validation rejected candidate")
		c.logger.Warn(ctx, "triage candidate rejected by validator", "attempt", attempt, "error", verr)
		return nil, Recoverable("schema validation rejected candidate", verr)
	}

	return &Outcome{
		Incident:  validated,
		RawAnswer: res.RawAnswer,
		Attempts:  attempt,
	}, nil
}

func (c *Controller) report(outcome string, attempts int, duration float64) {
	if c.hooks.OnOutcome != nil {
		c.hooks.OnOutcome(outcome, attempts, duration)
	}
}

func errOutcome(err error) string {
	var pe *backoff.PermanentError
	if errors.As(err, &pe) || ClassOf(err) == ClassFatal {
		return "fatal"
	}
	return "exhausted"
}
