package router

import (
	"context"

	"github.com/normanking/jarvis/internal/actions"
	"github.com/normanking/jarvis/internal/classifier"
)

// answerOffline classifies utterance and produces the local reply. It never
// fails: action errors become the apologetic reply and are reported in
// Response.ActionError.
func (r *Router) answerOffline(ctx context.Context, utterance string, online bool) Response {
	res := r.classifier.Classify(utterance)
	resp := Response{
		Tier:       res.Tier,
		Confidence: res.Confidence,
	}

	if res.Matched() {
		in, err := r.registry.Current().Get(res.IntentID)
		if err == nil {
			reply, err := r.actions.Dispatch(ctx, actions.Request{
				Intent:    in,
				Utterance: utterance,
				Online:    online,
			})
			if err != nil {
				resp.ActionError = err.Error()
				if reply == "" {
					reply = actions.ErrorReply
				}
			}
			resp.Text = reply
			resp.IntentID = in.ID
			return resp
		}
		// Registry reloaded between classification and lookup.
		r.log.Warn("intent %q vanished from registry, answering generically", res.IntentID)
		resp.Tier = classifier.TierDefault
		res.Class = classifier.ClassDefault
	}

	class := res.Class
	if class == "" {
		class = classifier.ClassDefault
	}
	resp.Text = r.actions.Pick(classifier.KeywordResponses[class])
	return resp
}
