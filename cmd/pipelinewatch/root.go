package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/storybook-admin/internal/platform/envutil"
	"github.com/yungbote/storybook-admin/internal/platform/logger"
	"github.com/yungbote/storybook-admin/internal/poller"
)

type watchOptions struct {
	server   string
	token    string
	interval time.Duration
	logMode  string
}

func newRootCommand() *cobra.Command {
	opts := watchOptions{}

	cmd := &cobra.Command{
		Use:           "pipelinewatch <safe_title>...",
		Short:         "Follow pipeline status for books until they finish",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.server, "server", envutil.String("STORYBOOK_API_URL", "http://localhost:8080"), "Base URL of the admin server")
	flags.StringVar(&opts.token, "token", envutil.String("STORYBOOK_ADMIN_TOKEN", ""), "Bearer token for the admin API")
	flags.DurationVar(&opts.interval, "interval", poller.DefaultInterval, "Delay between status fetches")
	flags.StringVar(&opts.logMode, "log-mode", "test", "Logger mode (production, development, test)")
	return cmd
}

func runWatch(cmd *cobra.Command, opts watchOptions, slugs []string) error {
	log, err := logger.New(opts.logMode)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printer := newTransitionPrinter(cmd.OutOrStdout())
	p := poller.New(log, poller.NewHTTPFetcher(opts.server, opts.token), poller.Options{
		Interval: opts.interval,
		OnUpdate: printer.Print,
	})

	seen := map[string]bool{}
	for _, slug := range slugs {
		slug = strings.TrimSpace(slug)
		if slug == "" || seen[slug] {
			continue
		}
		seen[slug] = true
		p.Watch(slug)
	}

	done := make(chan error, 1)
	go func() { done <- p.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-cmd.Context().Done():
		_ = p.Close()
		return cmd.Context().Err()
	}
	_ = p.Close()

	failed := 0
	for slug := range seen {
		if st := p.State(slug); st != nil && strings.EqualFold(st.OverallStatus, "failed") {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d book(s) failed", failed)
	}
	return nil
}

// transitionPrinter writes a line only when a book's overall status changes or a
// fetch error first appears.
type transitionPrinter struct {
	mu   sync.Mutex
	out  io.Writer
	last map[string]string
}

func newTransitionPrinter(out io.Writer) *transitionPrinter {
	return &transitionPrinter{out: out, last: map[string]string{}}
}

func (t *transitionPrinter) Print(u poller.Update) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if u.Err != nil {
		key := "error: " + u.Err.Error()
		if t.last[u.SafeTitle] == key {
			return
		}
		t.last[u.SafeTitle] = key
		fmt.Fprintf(t.out, "%s\t%s\n", u.SafeTitle, key)
		return
	}
	if u.Status == nil {
		return
	}
	key := u.Status.OverallStatus + "|" + activeStep(u.Status)
	if t.last[u.SafeTitle] == key {
		return
	}
	t.last[u.SafeTitle] = key

	line := fmt.Sprintf("%s\t%s", u.SafeTitle, u.Status.OverallStatus)
	if step := activeStep(u.Status); step != "" {
		line += "\t" + step
	}
	if u.Status.Message != "" {
		line += "\t(" + u.Status.Message + ")"
	}
	fmt.Fprintln(t.out, line)
}

// activeStep names the most recent step that is not completed.
func activeStep(st *poller.Status) string {
	for i := len(st.Steps) - 1; i >= 0; i-- {
		s := st.Steps[i]
		if !strings.EqualFold(s.Status, "completed") {
			return s.StepName + "=" + s.Status
		}
	}
	return ""
}
