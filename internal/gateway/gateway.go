// Package gateway implements the model-provider gateway.
//
// Invoke walks a provider preference strictly in order: the first
// successful reply short-circuits, a transient failure is retried once
// with a short fixed backoff, and every other failure class moves on to
// the next provider immediately. When the whole preference is exhausted
// the caller gets the record of the last attempt. The gateway holds no
// state between invocations beyond its configuration and drivers.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/causekit/causekit/internal/config"
	"github.com/causekit/causekit/internal/metrics"
	"github.com/causekit/causekit/pkg/contracts"
	"github.com/causekit/causekit/pkg/models"
)

// Gateway fans requests out to the configured providers.
type Gateway struct {
	cfg      *config.Config
	registry *driverRegistry
	metrics  *metrics.Metrics
}

// New builds a gateway with the standard drivers registered. metrics may
// be nil.
func New(cfg *config.Config, m *metrics.Metrics) *Gateway {
	g := &Gateway{
		cfg:      cfg,
		registry: newDriverRegistry(),
		metrics:  m,
	}
	g.RegisterDriver(NewOpenAIDriver(models.ProviderOpenAI))
	g.RegisterDriver(NewOpenAIDriver(models.ProviderOpenRouter))
	g.RegisterDriver(NewOpenAIDriver(models.ProviderLLMProxy))
	g.RegisterDriver(NewAnthropicDriver())
	g.RegisterDriver(NewOllamaDriver())
	return g
}

// RegisterDriver installs a driver, replacing any existing driver for
// the same kind.
func (g *Gateway) RegisterDriver(d contracts.Driver) {
	g.registry.register(d)
}

// ListDrivers returns the registered driver kinds.
func (g *Gateway) ListDrivers() []string {
	return g.registry.kinds()
}

// Providers lists the callable provider names in default order.
func (g *Gateway) Providers() []string {
	return g.cfg.ProviderOrder()
}

// Invoke sends the prompt to the preferred providers in order. On total
// failure the returned reply is the record of the last attempt and err
// carries its classification.
func (g *Gateway) Invoke(ctx context.Context, prompt string, preference []string, opts models.CallOptions) (*models.RawModelReply, error) {
	order := g.resolveOrder(preference)
	if len(order) == 0 {
		return nil, models.NewClassifiedError(models.ErrKindConfiguration, "",
			errors.New("no callable providers configured"))
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = g.cfg.Gateway.SystemPrompt
	}

	var last *models.RawModelReply
	for _, name := range order {
		if ctx.Err() != nil {
			break
		}
		provider, _ := g.cfg.FindProvider(name)
		driver, ok := g.registry.get(provider.Kind)
		if !ok {
			log.Warn().Str("provider", name).Str("kind", string(provider.Kind)).
				Msg("no driver for provider kind, skipping")
			continue
		}

		reply := g.attempt(ctx, driver, provider, prompt, opts)
		g.countAttempt(reply)
		if reply.Succeeded {
			log.Info().
				Str("provider", reply.Provider).
				Str("model", reply.Model).
				Int64("latency_ms", reply.LatencyMs).
				Int64("tokens", reply.Usage.TotalTokens).
				Msg("provider call succeeded")
			return reply, nil
		}

		log.Warn().
			Str("provider", reply.Provider).
			Str("error_kind", string(reply.ErrorKind)).
			Str("error", reply.Error).
			Msg("provider call failed, trying next")
		last = reply
	}

	if last == nil {
		err := ctx.Err()
		if err == nil {
			err = errors.New("no provider was attempted")
		}
		return nil, models.NewClassifiedError(models.ErrKindProviderTimeout, "", err)
	}
	return last, models.NewClassifiedError(last.ErrorKind, last.Provider,
		fmt.Errorf("all providers failed, last error: %s", last.Error))
}

// resolveOrder keeps the caller's preference verbatim, filtered down to
// known, callable providers. An empty preference falls back to the
// configured default order.
func (g *Gateway) resolveOrder(preference []string) []string {
	if len(preference) == 0 {
		return g.cfg.ProviderOrder()
	}
	var order []string
	for _, name := range preference {
		p, ok := g.cfg.FindProvider(name)
		if !ok {
			log.Warn().Str("provider", name).Msg("unknown provider in preference, skipping")
			continue
		}
		if !p.Configured() {
			log.Warn().Str("provider", name).Msg("provider not configured, skipping")
			continue
		}
		order = append(order, name)
	}
	return order
}

// attempt runs one provider call with the per-attempt timeout and the
// single transient retry.
func (g *Gateway) attempt(ctx context.Context, driver contracts.Driver, provider *config.Provider, prompt string, opts models.CallOptions) *models.RawModelReply {
	start := time.Now()
	timeout := time.Duration(provider.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(g.cfg.Gateway.CallTimeoutSecs) * time.Second
	}
	delay := time.Duration(g.cfg.Gateway.RetryBackoffMs) * time.Millisecond

	var reply *models.RawModelReply
	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		r, err := driver.Call(callCtx, provider, prompt, opts)
		if err != nil {
			if isTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		reply = r
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), 1), ctx)
	err := backoff.Retry(op, bo)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return &models.RawModelReply{
			Provider:  provider.Name,
			Model:     provider.Model,
			LatencyMs: latency,
			Succeeded: false,
			ErrorKind: models.KindOf(err),
			Error:     err.Error(),
		}
	}

	reply.Provider = provider.Name
	reply.LatencyMs = latency
	reply.Succeeded = true
	return reply
}

func (g *Gateway) countAttempt(reply *models.RawModelReply) {
	result := "success"
	if !reply.Succeeded {
		result = string(reply.ErrorKind)
	}
	g.metrics.CountProviderAttempt(reply.Provider, result)
}

// HealthCheck pings every configured provider with a short deadline.
func (g *Gateway) HealthCheck(ctx context.Context) []models.ProviderStatus {
	var out []models.ProviderStatus
	for i := range g.cfg.Providers {
		provider := &g.cfg.Providers[i]
		status := models.ProviderStatus{
			Name:  provider.Name,
			Kind:  provider.Kind,
			Model: provider.Model,
		}
		if !provider.Configured() {
			status.Error = "not configured"
			out = append(out, status)
			continue
		}
		driver, ok := g.registry.get(provider.Kind)
		if !ok {
			status.Error = "no driver for kind " + string(provider.Kind)
			out = append(out, status)
			continue
		}

		checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		start := time.Now()
		err := driver.HealthCheck(checkCtx, provider)
		cancel()

		status.LatencyMs = time.Since(start).Milliseconds()
		if err != nil {
			status.Error = err.Error()
		} else {
			status.Healthy = true
		}
		out = append(out, status)
	}
	return out
}

var _ contracts.GatewayService = (*Gateway)(nil)
