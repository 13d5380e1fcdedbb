package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/skyscope/internal/presentation/tui"
	"github.com/aretw0/skyscope/pkg/explorer"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newExploreCmd(g *globals) *cobra.Command {
	var view string

	cmd := &cobra.Command{
		Use:   "explore",
		Short: "Explore the graph interactively",
		Long: `Reads one command per line. Any line not starting with ':' is a search
pattern. On a terminal searches are debounced while you type and results
print as they arrive. Piped input runs each search to completion before
reading the next line. Type :h for the command list.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app()
			if err != nil {
				return err
			}
			defer closeApp(app)

			ex, err := app.Views.Open(cmd.Context(), view)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			s := &exploreSession{
				ex:          ex,
				out:         out,
				rows:        tui.NewRowPrinter(profileOf(out)),
				render:      tui.NewRenderer(),
				interactive: isTerminal(cmd.InOrStdin()),
				timeout:     app.Config.Backend.Timeout + app.Config.Scheduling.RenderDelay,
			}
			if s.interactive {
				tui.PrintBanner(out, profileOf(out), app.Backend.BaseURL())
				s.help()
			}
			return s.run(cmd.Context(), cmd.InOrStdin())
		},
	}
	cmd.Flags().StringVar(&view, "view", "default", "View to explore")
	return cmd
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

type exploreSession struct {
	ex          *explorer.Explorer
	rows        *tui.RowPrinter
	render      func(string) (string, error)
	interactive bool
	timeout     time.Duration

	mu  sync.Mutex // guards out; events print from scheduler goroutines
	out io.Writer
}

func (s *exploreSession) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

func (s *exploreSession) run(ctx context.Context, in io.Reader) error {
	if s.interactive {
		unsubscribe := s.ex.Subscribe(s.onEvent)
		defer unsubscribe()
	}

	scanner := bufio.NewScanner(in)
	s.prompt()
	for scanner.Scan() {
		quit, err := s.handle(ctx, strings.TrimSpace(scanner.Text()))
		if err != nil {
			s.printf("error: %v\n", err)
		}
		if quit {
			return nil
		}
		s.prompt()
	}
	return scanner.Err()
}

func (s *exploreSession) prompt() {
	if s.interactive {
		s.printf("> ")
	}
}

func (s *exploreSession) handle(ctx context.Context, line string) (quit bool, err error) {
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, ":") {
		return false, s.search(ctx, line)
	}

	cmd, arg, _ := strings.Cut(strings.TrimPrefix(line, ":"), " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "q", "quit":
		return true, nil
	case "h", "help":
		s.help()
	case "c", "collapse":
		if err := s.ex.Collapse(ctx); err != nil {
			return false, err
		}
		s.printf("%s\n", s.ex.NodeCountLabel())
	case "t", "toggle":
		return false, s.toggle(ctx, arg)
	case "r", "render":
		return false, s.renderGraph(ctx, arg)
	default:
		return false, fmt.Errorf("unknown command :%s, type :h for help", cmd)
	}
	return false, nil
}

func (s *exploreSession) search(ctx context.Context, pattern string) error {
	if s.interactive {
		s.ex.Search(pattern)
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ev, err := s.ex.SearchAndWait(ctx, pattern)
	if err != nil {
		return err
	}
	s.printf("%s", s.rows.Rows(ev.Rows, ev.NodeCount))
	return nil
}

func (s *exploreSession) toggle(ctx context.Context, arg string) error {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf("usage: :t N")
	}
	rows := s.ex.Rows()
	if n < 1 || n > len(rows) {
		return fmt.Errorf("no row %d", n)
	}
	row := rows[n-1]
	visible, err := s.ex.Toggle(ctx, row.Hash)
	if err != nil {
		return err
	}
	if !s.interactive {
		state := "hidden"
		if visible {
			state = "shown"
		}
		s.printf("%s %s\n", state, row.Title)
	}
	return nil
}

func (s *exploreSession) renderGraph(ctx context.Context, file string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ev, err := s.ex.RefreshAndWait(ctx)
	if err != nil {
		return err
	}
	if file == "" {
		s.printf("%s\n", ev.SVG)
		return nil
	}
	if err := os.WriteFile(file, []byte(ev.SVG), 0o644); err != nil {
		return err
	}
	s.printf("graph written to %s\n", file)
	return nil
}

func (s *exploreSession) help() {
	text, err := s.render(tui.HelpMarkdown)
	if err != nil {
		text = tui.HelpMarkdown
	}
	s.printf("%s", text)
}

func (s *exploreSession) onEvent(ev explorer.Event) {
	switch ev.Kind {
	case explorer.EventResults:
		s.printf("\n%s> ", s.rows.Rows(ev.Rows, ev.NodeCount))
	case explorer.EventGraph:
		s.printf("\ngraph updated (%d bytes), :r FILE to save\n> ", len(ev.SVG))
	case explorer.EventError:
		s.printf("\n%s failed: %s\n> ", ev.Stream, ev.Error)
	}
}
