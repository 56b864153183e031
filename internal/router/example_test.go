package router_test

import (
	"context"
	"fmt"

	"github.com/normanking/jarvis/internal/actions"
	"github.com/normanking/jarvis/internal/classifier"
	"github.com/normanking/jarvis/internal/connectivity"
	"github.com/normanking/jarvis/internal/convlog"
	"github.com/normanking/jarvis/internal/intent"
	"github.com/normanking/jarvis/internal/llm"
	"github.com/normanking/jarvis/internal/logging"
	"github.com/normanking/jarvis/internal/router"
)

// ExampleBuildPrompt shows the prompt sent to the remote service.
func ExampleBuildPrompt() {
	recent := []convlog.Entry{{UserInput: "hello", Response: "Hi there!"}}
	fmt.Println(router.BuildPrompt("You are JARVIS.", recent, "what can you do?"))

	// Output:
	// You are JARVIS.
	//
	// Human: hello
	// Assistant: Hi there!
	//
	// Human: what can you do?
	// Assistant:
}

// ExampleRouter_Toggle demonstrates the probe-gated manual switch.
func ExampleRouter_Toggle() {
	ctx := context.Background()
	reachable := false

	holder := intent.NewHolder(intent.Default())
	history, _ := convlog.Open(ctx, nil, convlog.WithLogger(logging.Nop()))
	disp, _ := actions.New(actions.WithLogger(logging.Nop()), actions.WithLauncher(actions.LogLauncher{Log: logging.Nop()}))

	r, _ := router.New(ctx, router.Deps{
		Provider:   llm.NewGeminiProvider(nil),
		Checker:    connectivity.CheckerFunc(func(context.Context) bool { return reachable }),
		Classifier: classifier.New(holder, classifier.WithLogger(logging.Nop())),
		Registry:   holder,
		Actions:    disp,
		History:    history,
	}, router.WithLogger(logging.Nop()))

	fmt.Println(r.State())
	fmt.Println(r.Toggle(ctx).Message)

	reachable = true
	fmt.Println(r.Toggle(ctx).Message)
	fmt.Println(r.Toggle(ctx).Message)

	// Output:
	// offline
	// Cannot switch to Online mode - Check internet connection and API keys
	// Switched to Online mode - Gemini AI connected
	// Switched to Offline mode
}
