package llm

import (
	"context"
	"log/slog"

	"github.com/prsentry/prsentry/pkg/errs"
)

// Completer is what the fallback orchestrator needs from a client.
type Completer interface {
	ChatCompletion(ctx context.Context, req Request) (ChatResponse, error)
}

// ChatWithFallback tries the primary model, then each fallback model in
// order. A rate-limit error stops the chain immediately; trying a different
// model against the same rate-limited endpoint only burns quota.
func ChatWithFallback(ctx context.Context, c Completer, req Request, fallbacks []string) (ChatResponse, error) {
	models := append([]string{req.Model}, fallbacks...)

	var lastErr error
	for i, model := range models {
		attempt := req
		attempt.Model = model
		resp, err := c.ChatCompletion(ctx, attempt)
		if err == nil {
			if i > 0 {
				slog.Info("Chat completion succeeded on fallback model", "model", model)
			}
			return resp, nil
		}
		if errs.KindOf(err) == errs.KindRateLimited {
			return ChatResponse{}, err
		}
		slog.Warn("Model failed, trying next", "model", model, "error", err)
		lastErr = err
	}
	return ChatResponse{}, errs.Wrap(errs.KindAIHandler, "all models failed", lastErr)
}
