package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/normanking/jarvis/internal/convlog"
	"github.com/normanking/jarvis/internal/metrics"
	"github.com/normanking/jarvis/internal/router"
)

const (
	farewellReply = "Goodbye! Have a great day!"
	greeting      = "JARVIS online. Type 'toggle mode' to switch modes, 'stats' for the session summary, 'exit' to leave."
)

var renderMarkdown bool

// ═══════════════════════════════════════════════════════════════════════════════
// CHAT COMMAND (ROOT)
// ═══════════════════════════════════════════════════════════════════════════════

func addChatFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&renderMarkdown, "render", false, "render online replies as markdown")
}

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session (default)",
		RunE:  runChat,
	}
	addChatFlags(cmd)
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := openAssistant(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	session := &chatSession{
		svc:       a,
		dashboard: metrics.NewDashboard(a.Collector()),
		styles:    defaultChatStyles(),
		render:    renderMarkdown,
	}
	return session.run(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
}

// chatService is what the REPL needs from the assistant.
type chatService interface {
	Route(ctx context.Context, utterance string) router.Response
	Toggle(ctx context.Context) router.ToggleResult
	State() router.State
}

type chatStyles struct {
	Prompt lipgloss.Style
	Reply  lipgloss.Style
	Notice lipgloss.Style
	Mode   lipgloss.Style
}

func defaultChatStyles() chatStyles {
	return chatStyles{
		Prompt: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		Reply:  lipgloss.NewStyle().Foreground(lipgloss.Color("255")),
		Notice: lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("214")),
		Mode:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
	}
}

type chatSession struct {
	svc       chatService
	dashboard *metrics.Dashboard
	styles    chatStyles
	render    bool
}

// run reads one utterance per line until EOF, a farewell, or cancellation.
func (s *chatSession) run(ctx context.Context, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, s.styles.Notice.Render(greeting))

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(out, s.prompt())

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			fmt.Fprintln(out, s.styles.Reply.Render("JARVIS: "+farewellReply))
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return nil
			}
			line = l
		}

		if done := s.handle(ctx, line, out); done {
			return nil
		}
	}
}

// handle processes one line and reports whether the session is over.
func (s *chatSession) handle(ctx context.Context, line string, out io.Writer) bool {
	cmd := strings.ToLower(strings.TrimSpace(line))

	switch cmd {
	case "exit", "quit", "goodbye":
		fmt.Fprintln(out, s.styles.Reply.Render("JARVIS: "+farewellReply))
		return true

	case "toggle mode", "toggle":
		res := s.svc.Toggle(ctx)
		fmt.Fprintln(out, s.styles.Notice.Render("System: "+res.Message))
		return false

	case "stats":
		if s.dashboard != nil {
			fmt.Fprintln(out, s.dashboard.Render())
		}
		return false
	}

	resp := s.svc.Route(ctx, line)
	if resp.Notice != "" {
		fmt.Fprintln(out, s.styles.Notice.Render("System: "+resp.Notice))
	}

	text := resp.Text
	if s.render && resp.Mode == convlog.ModeOnline {
		text = renderReply(text)
	}
	fmt.Fprintln(out, s.styles.Reply.Render("JARVIS: "+text))
	return false
}

func (s *chatSession) prompt() string {
	mode := strings.ToUpper(s.svc.State().String())
	return s.styles.Mode.Render("["+mode+"]") + " " + s.styles.Prompt.Render("You: ")
}

// renderReply renders markdown from the remote service, falling back to the
// raw text.
func renderReply(content string) string {
	if strings.TrimSpace(content) == "" {
		return content
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return content
	}
	rendered, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimSpace(rendered)
}
