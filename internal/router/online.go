package router

import (
	"context"
	"errors"
	"strings"

	"github.com/normanking/jarvis/internal/convlog"
	"github.com/normanking/jarvis/internal/llm"
)

// BuildPrompt renders the remote prompt: the system line, the recent
// exchanges as Human/Assistant turns and the new utterance awaiting an
// answer.
func BuildPrompt(systemPrompt string, recent []convlog.Entry, utterance string) string {
	var b strings.Builder
	if systemPrompt != "" {
		b.WriteString(systemPrompt)
		b.WriteString("\n\n")
	}
	for _, e := range recent {
		b.WriteString("Human: ")
		b.WriteString(e.UserInput)
		b.WriteString("\nAssistant: ")
		b.WriteString(e.Response)
		b.WriteString("\n\n")
	}
	b.WriteString("Human: ")
	b.WriteString(utterance)
	b.WriteString("\nAssistant:")
	return b.String()
}

// askRemote makes one bounded attempt. A non-empty reason means the caller
// must fall back.
func (r *Router) askRemote(ctx context.Context, utterance string) (string, FallbackReason, error) {
	if r.provider == nil {
		return "", FallbackError, errors.New("no remote provider configured")
	}
	if r.probeBeforeDispatch && !r.checker.Check(ctx) {
		if err := ctx.Err(); err != nil {
			return "", FallbackCanceled, err
		}
		return "", FallbackProbe, errors.New("connectivity probe failed")
	}

	prompt := BuildPrompt(r.systemPrompt, r.history.Recent(r.contextWindow), utterance)

	cctx, cancel := context.WithTimeout(ctx, r.remoteTimeout)
	defer cancel()

	text, err := llm.Complete(cctx, r.provider, prompt)
	switch {
	case err == nil:
		return text, "", nil
	case ctx.Err() != nil:
		return "", FallbackCanceled, err
	case errors.Is(err, llm.ErrEmptyResponse):
		return "", FallbackEmpty, err
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded):
		return "", FallbackTimeout, err
	default:
		return "", FallbackError, err
	}
}

func fallbackNotice(reason FallbackReason) string {
	if reason == FallbackProbe {
		return "Switched to Offline mode - Connection lost"
	}
	return "Switched to Offline mode - API error"
}
