// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/KodiakAI/KodiakCopilot/services/egress"
	"github.com/KodiakAI/KodiakCopilot/services/policy"
)

// RouterConfig holds the platform-level routing defaults, the lowest layer
// under tenant and task policy.
type RouterConfig struct {
	// DefaultProvider/DefaultModel apply when a tenant has no policy record.
	DefaultProvider string
	DefaultModel    string

	// LocalModel is the model used when AllowRemoteEgress=false forces the
	// local provider.
	LocalModel string

	// BaseMode is the platform-wide default egress mode.
	BaseMode egress.EgressMode
}

// ChatRequest is one routed chat call.
type ChatRequest struct {
	TenantID string
	UserID   string

	// Task selects a tenant task policy, if one exists.
	Task string

	Messages []Message

	// Tools and ToolChoice are passed through to the provider.
	Tools      []ToolDef
	ToolChoice string

	// ModeOverride is the per-call egress mode override (highest-precedence
	// layer of mode resolution, still gated by allow-off grants).
	ModeOverride *egress.EgressMode
}

// RouteDecision is the resolved {provider, model, options, modes} for one call.
type RouteDecision struct {
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int

	// ForcedLocal is true when AllowRemoteEgress=false overrode a task or
	// default policy naming a remote provider.
	ForcedLocal bool

	RequestedMode egress.EgressMode
	EffectiveMode egress.EgressMode
}

// Router resolves per-tenant routing policy and gates every outbound chat
// call through the egress guard.
//
// Description:
//
//	Per request: {resolve tenant policy} → {resolve provider/model/options,
//	honoring AllowRemoteEgress} → {resolve egress mode} → {delegate to the
//	guard with a closure invoking the chosen provider client}. All
//	collaborators are injected at construction; nothing is resolved lazily.
//
// Thread Safety: Safe for concurrent use.
type Router struct {
	store    policy.Store
	registry *Registry
	guard    *egress.GuardClient
	cfg      RouterConfig
	logger   *slog.Logger
}

// NewRouter creates a Router.
//
// Inputs:
//   - store: Tenant policy persistence. Must not be nil.
//   - registry: Named provider clients. Must not be nil.
//   - guard: The egress guard gate. Must not be nil.
//   - cfg: Platform routing defaults.
//   - logger: Structured logger. Nil uses slog.Default().
func NewRouter(store policy.Store, registry *Registry, guard *egress.GuardClient, cfg RouterConfig, logger *slog.Logger) *Router {
	if store == nil || registry == nil || guard == nil {
		panic("NewRouter: store, registry, and guard must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		store:    store,
		registry: registry,
		guard:    guard,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "llm_router")),
	}
}

// Resolve computes the route decision for a request without executing it.
//
// Description:
//
//	Provider/model resolution order: task policy → tenant defaults →
//	platform defaults. When the tenant policy has AllowRemoteEgress=false,
//	any non-local provider from that chain is discarded and the local
//	provider/model is forced — a task policy naming a remote provider is
//	ignored in that state.
//
// Outputs:
//   - *RouteDecision: The resolved route.
//   - *policy.TenantLlmPolicy: The tenant policy used (may be nil).
//   - error: Non-nil on policy store failure.
func (r *Router) Resolve(ctx context.Context, req ChatRequest) (*RouteDecision, *policy.TenantLlmPolicy, error) {
	pol, err := r.store.GetPolicy(ctx, req.TenantID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving tenant policy: %w", err)
	}

	dec := &RouteDecision{
		Provider:    r.cfg.DefaultProvider,
		Model:       r.cfg.DefaultModel,
		Temperature: -1,
	}
	if pol != nil {
		if pol.DefaultProvider != "" {
			dec.Provider = pol.DefaultProvider
		}
		if pol.DefaultModel != "" {
			dec.Model = pol.DefaultModel
		}
		if task := pol.TaskFor(req.Task); task != nil {
			if task.Provider != "" {
				dec.Provider = task.Provider
			}
			if task.Model != "" {
				dec.Model = task.Model
			}
			dec.Temperature = task.Temperature
			dec.MaxTokens = task.MaxTokens
		}
		if !pol.AllowRemoteEgress && dec.Provider != LocalProvider {
			dec.Provider = LocalProvider
			dec.Model = r.localModel(pol)
			dec.ForcedLocal = true
		}
	}

	res := egress.ResolveMode(r.cfg.BaseMode, pol, egress.ResolveOptions{
		UserID:       req.UserID,
		ModeOverride: req.ModeOverride,
	})
	dec.RequestedMode = res.Requested
	dec.EffectiveMode = res.Effective
	return dec, pol, nil
}

// localModel picks the model for a forced-local route.
func (r *Router) localModel(pol *policy.TenantLlmPolicy) string {
	if pol.DefaultProvider == LocalProvider && pol.DefaultModel != "" {
		return pol.DefaultModel
	}
	if r.cfg.LocalModel != "" {
		return r.cfg.LocalModel
	}
	return r.cfg.DefaultModel
}

// Chat executes a routed single-shot chat call through the egress guard.
//
// Outputs:
//   - string: The assistant's response text.
//   - error: *LlmError for configuration failures, guard errors for policy
//     violations, or the provider error.
func (r *Router) Chat(ctx context.Context, req ChatRequest) (string, error) {
	ctx, span := otel.Tracer("kodiak.copilot").Start(ctx, "llm.Router.Chat")
	defer span.End()

	dec, _, err := r.Resolve(ctx, req)
	if err != nil {
		return "", err
	}
	span.SetAttributes(
		attribute.String("provider", dec.Provider),
		attribute.String("model", dec.Model),
		attribute.String("effective_mode", string(dec.EffectiveMode)),
	)

	client, ok := r.registry.Client(dec.Provider)
	if !ok {
		return "", NewLlmError(CodeUnknownProvider, dec.Provider, "provider is not registered")
	}

	r.logger.Debug("routed chat",
		slog.String("tenant_id", req.TenantID),
		slog.String("provider", dec.Provider),
		slog.String("model", dec.Model),
		slog.Bool("forced_local", dec.ForcedLocal),
		slog.Int("estimated_tokens", EstimateTokens(dec.Model, req.Messages)))

	gc := r.guardContext(req, dec, "chat")
	opts := r.chatOptions(req, dec)

	return egress.GuardAndExecute(ctx, r.guard, gc, func(ctx context.Context, gc *egress.GuardContext) (string, error) {
		messages, err := payloadToMessages(gc.Request)
		if err != nil {
			return "", err
		}
		return client.Chat(ctx, messages, dec.Model, opts)
	})
}

// StreamChat executes a routed streaming chat call through the egress guard.
//
// Description:
//
//	Configuration errors (unknown provider, streaming unsupported, policy
//	store failure, provider not allow-listed) are returned as errors before
//	any stream exists. Once a stream is returned, provider failures are
//	converted into a terminal error chunk — never a hang, never a panic —
//	and a done chunk always closes the sequence.
//
// Outputs:
//   - <-chan StreamChunk: Lazy single-consumer sequence ending in done.
//   - error: Configuration or policy error raised before streaming began.
func (r *Router) StreamChat(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	ctx, span := otel.Tracer("kodiak.copilot").Start(ctx, "llm.Router.StreamChat")
	defer span.End()

	dec, _, err := r.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("provider", dec.Provider),
		attribute.String("model", dec.Model),
		attribute.String("effective_mode", string(dec.EffectiveMode)),
	)

	client, ok := r.registry.Client(dec.Provider)
	if !ok {
		return nil, NewLlmError(CodeUnknownProvider, dec.Provider, "provider is not registered")
	}
	streamer, ok := client.(StreamingChatClient)
	if !ok {
		return nil, NewLlmError(CodeStreamingUnsupported, dec.Provider, "provider client does not support streaming")
	}

	gc := r.guardContext(req, dec, "stream_chat")
	opts := r.chatOptions(req, dec)

	upstream, err := egress.GuardAndExecute(ctx, r.guard, gc, func(ctx context.Context, gc *egress.GuardContext) (<-chan StreamChunk, error) {
		messages, err := payloadToMessages(gc.Request)
		if err != nil {
			return nil, err
		}
		return streamer.StreamChat(ctx, messages, dec.Model, opts)
	})
	if err != nil {
		if isPolicyOrConfigError(err) {
			return nil, err
		}
		// Provider execution failure after resolution: degrade to a
		// well-formed terminal stream so partial consumers see a close.
		return errorStream(err), nil
	}
	return ensureDone(ctx, upstream), nil
}

// guardContext builds the per-call guard context with the request payload in
// sanitizer-traversable form.
func (r *Router) guardContext(req ChatRequest, dec *RouteDecision, endpoint string) *egress.GuardContext {
	return &egress.GuardContext{
		Target:        "llm",
		ProviderID:    dec.Provider,
		EndpointID:    endpoint,
		Request:       messagesToPayload(dec.Model, req.Messages),
		TenantID:      req.TenantID,
		UserID:        req.UserID,
		Task:          req.Task,
		Mode:          dec.RequestedMode,
		EffectiveMode: dec.EffectiveMode,
		Sanitization:  egress.ContextChat,
	}
}

// chatOptions merges task-policy options with per-call tool settings.
func (r *Router) chatOptions(req ChatRequest, dec *RouteDecision) ChatOptions {
	return ChatOptions{
		Temperature: dec.Temperature,
		MaxTokens:   dec.MaxTokens,
		Tools:       req.Tools,
		ToolChoice:  req.ToolChoice,
	}
}

// isPolicyOrConfigError reports whether err must surface to the caller
// instead of degrading to an error chunk.
func isPolicyOrConfigError(err error) bool {
	var llmErr *LlmError
	if errors.As(err, &llmErr) {
		return true
	}
	return errors.Is(err, egress.ErrProviderNotAllowed)
}

// errorStream builds a two-chunk terminal stream: error then done.
func errorStream(err error) <-chan StreamChunk {
	out := make(chan StreamChunk, 2)
	out <- ErrorChunk(err)
	out <- DoneChunk()
	close(out)
	return out
}

// ensureDone passes upstream chunks through and guarantees a trailing done
// chunk even when the provider closed the channel without one. Sends race
// against ctx so a consumer that cancels and abandons the channel releases
// the goroutine instead of parking it forever.
func ensureDone(ctx context.Context, upstream <-chan StreamChunk) <-chan StreamChunk {
	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		emit := func(chunk StreamChunk) bool {
			select {
			case out <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}
		sawDone := false
		for chunk := range upstream {
			if chunk.Type == ChunkDone {
				sawDone = true
			}
			if !emit(chunk) {
				return
			}
		}
		if !sawDone {
			emit(DoneChunk())
		}
	}()
	return out
}

// messagesToPayload converts messages into the nested map/slice form the
// object sanitizer traverses.
func messagesToPayload(model string, messages []Message) map[string]any {
	msgs := make([]any, 0, len(messages))
	for _, m := range messages {
		entry := map[string]any{
			"role":    string(m.Role),
			"content": m.Content,
		}
		if m.ToolCallID != "" {
			entry["toolCallId"] = m.ToolCallID
		}
		msgs = append(msgs, entry)
	}
	return map[string]any{
		"model":    model,
		"messages": msgs,
	}
}

// payloadToMessages reverses messagesToPayload after sanitization.
func payloadToMessages(payload any) ([]Message, error) {
	root, ok := payload.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("llm: malformed guard payload (want map, got %T)", payload)
	}
	rawMsgs, ok := root["messages"].([]any)
	if !ok {
		return nil, fmt.Errorf("llm: malformed guard payload (missing messages)")
	}
	out := make([]Message, 0, len(rawMsgs))
	for _, raw := range rawMsgs {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("llm: malformed guard payload message (got %T)", raw)
		}
		msg := Message{}
		if role, ok := m["role"].(string); ok {
			msg.Role = Role(role)
		}
		if content, ok := m["content"].(string); ok {
			msg.Content = content
		}
		if id, ok := m["toolCallId"].(string); ok {
			msg.ToolCallID = id
		}
		out = append(out, msg)
	}
	return out, nil
}
