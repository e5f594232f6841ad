// Package cli implements the procura terminal frontend: role-aware
// purchase-order screens, the modification workflow, and the notification
// bell, all over the platform API client.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/procurahq/procura/internal/api"
	"github.com/procurahq/procura/internal/app"
	"github.com/procurahq/procura/internal/notify"
	"github.com/procurahq/procura/internal/po"
	"github.com/procurahq/procura/internal/session"
	"github.com/procurahq/procura/internal/shared"
)

// App wires the clients and stores behind every subcommand.
type App struct {
	cfg      *app.Config
	logger   *slog.Logger
	sessions *session.Store
	pos      *po.Client
	notifs   *notify.Client
	toasts   *notify.Bus

	out io.Writer
	in  *bufio.Reader

	toastCh     <-chan notify.Toast
	toastCancel func()
}

// Run executes one CLI invocation and returns the process exit code.
func Run(ctx context.Context, args []string) int {
	a, err := newApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, "procura:", err)
		return 1
	}
	defer a.close()
	if err := a.dispatch(ctx, args); err != nil {
		a.toasts.Error("%s", errorMessage(err))
		a.drainToasts()
		return 1
	}
	a.drainToasts()
	return 0
}

func newApp() (*App, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := app.NewLogger(cfg)
	sessions, err := session.NewStore(cfg.SessionFile)
	if err != nil {
		return nil, err
	}
	client, err := api.NewClient(api.Config{
		BaseURL:      cfg.APIBaseURL,
		Timeout:      cfg.APITimeout,
		MaxRetries:   cfg.APIMaxRetries,
		RetryBackoff: cfg.APIRetryBackoff,
	}, sessions.Token, logger)
	if err != nil {
		return nil, err
	}
	a := &App{
		cfg:      cfg,
		logger:   logger,
		sessions: sessions,
		pos:      po.NewClient(client, logger),
		notifs:   notify.NewClient(client, logger),
		toasts:   notify.NewBus(),
		out:      os.Stdout,
		in:       bufio.NewReader(os.Stdin),
	}
	a.toastCh, a.toastCancel = a.toasts.Subscribe(64)
	return a, nil
}

func (a *App) close() {
	if a.toastCancel != nil {
		a.toastCancel()
	}
}

func (a *App) dispatch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.usage()
		return nil
	}
	switch args[0] {
	case "login":
		return a.runLogin(args[1:])
	case "logout":
		return a.runLogout()
	case "whoami":
		return a.runWhoami()
	case "po":
		if err := a.requireSession(); err != nil {
			return err
		}
		return a.runPO(ctx, args[1:])
	case "notify":
		if err := a.requireSession(); err != nil {
			return err
		}
		return a.runNotify(ctx, args[1:])
	case "help", "-h", "--help":
		a.usage()
		return nil
	default:
		a.usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func (a *App) usage() {
	fmt.Fprint(a.out, strings.TrimLeft(`
usage: procura <command> [arguments]

  login      store a session (token, name, email, role)
  logout     clear the stored session
  whoami     print the active session
  po         purchase-order screens and actions
  notify     notification bell and actions
`, "\n"))
}

// requireSession rejects online commands before any request goes out when no
// session is stored.
func (a *App) requireSession() error {
	if _, ok := a.sessions.Current(); !ok {
		return fmt.Errorf("%w: run `procura login` first", shared.ErrUnauthenticated)
	}
	return nil
}

// role returns the active session's role, defaulting to buyer when absent
// so rendering still works; the server remains the authority.
func (a *App) role() po.Role {
	if sess, ok := a.sessions.Current(); ok {
		return po.Role(sess.User.Role)
	}
	return po.RoleBuyer
}

func (a *App) drainToasts() {
	for {
		select {
		case toast, ok := <-a.toastCh:
			if !ok {
				return
			}
			printToast(a.out, toast)
		default:
			return
		}
	}
}

// errorMessage folds API errors into the text a toast should carry.
func errorMessage(err error) string {
	if apiErr, ok := api.AsError(err); ok {
		return apiErr.UserMessage()
	}
	return err.Error()
}
