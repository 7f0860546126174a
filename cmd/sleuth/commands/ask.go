package commands

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
	"golang.org/x/term"

	"github.com/moolen/sleuth/internal/dialogue"
	"github.com/moolen/sleuth/internal/models"
)

var askProblem string

var promptStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("12")).
	Bold(true)

var askCmd = &cobra.Command{
	Use:   "ask [problem]",
	Short: "Diagnose a problem interactively on the terminal",
	Long: `Start a diagnosis session and answer the recommended checks on stdin.
The first line (or the problem argument) describes the symptoms, every further
line reports what you observed. Type "quit" or send EOF to end the session.`,
	Run: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askProblem, "problem", "", "Problem description (alternative to the positional argument)")
}

// sessionDriver is the subset of the dialogue manager used by the REPL.
type sessionDriver interface {
	StartSession(ctx context.Context, problem string) (dialogue.TurnResult, error)
	HandleTurn(ctx context.Context, sessionID, text string) (dialogue.TurnResult, error)
}

func runAsk(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		HandleError(err, "Configuration error")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		HandleError(err, "Initialization error")
	}
	defer func() { _ = a.Close() }()

	problem := askProblem
	if problem == "" && len(args) > 0 {
		problem = strings.Join(args, " ")
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	var render func(string) string
	if interactive {
		render = markdownRenderer()
	}
	if err := converse(ctx, a.manager, problem, os.Stdin, os.Stdout, interactive, render); err != nil {
		HandleError(err, "Diagnosis failed")
	}
}

// markdownRenderer renders assistant messages for the terminal. Messages
// are printed as-is when the renderer cannot be created.
func markdownRenderer() func(string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return nil
	}
	return func(msg string) string {
		rendered, err := r.Render(msg)
		if err != nil {
			return msg + "\n\n"
		}
		return rendered
	}
}

// converse runs a diagnosis session over in and out until EOF, "quit" or
// a confirmed root cause. render may be nil.
func converse(ctx context.Context, d sessionDriver, problem string, in io.Reader, out io.Writer, interactive bool, render func(string) string) error {
	scanner := bufio.NewScanner(in)
	prompt := func() {
		if interactive {
			fmt.Fprint(out, promptStyle.Render(">")+" ")
		}
	}
	if render == nil {
		render = func(msg string) string { return msg + "\n\n" }
	}

	if problem == "" {
		if interactive {
			fmt.Fprintln(out, "Describe the problem you are seeing.")
		}
		prompt()
		for problem == "" {
			if !scanner.Scan() {
				return scanner.Err()
			}
			problem = strings.TrimSpace(scanner.Text())
		}
	}

	res, err := d.StartSession(ctx, problem)
	if err != nil {
		return err
	}
	sessionID := res.Session.ID
	fmt.Fprint(out, render(res.Message))

	for !isFinal(res.Action) {
		prompt()
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}

		res, err = d.HandleTurn(ctx, sessionID, line)
		if err != nil {
			return err
		}
		fmt.Fprint(out, render(res.Message))
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Session %s saved.\n", sessionID)
	return nil
}

func isFinal(a models.Action) bool {
	_, ok := a.(models.ConfirmRootCause)
	return ok
}
