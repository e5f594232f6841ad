package cli

import (
	"errors"
	"flag"
	"fmt"

	"github.com/procurahq/procura/internal/session"
)

func (a *App) runLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	token := fs.String("token", "", "bearer token issued by the platform")
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "account email")
	role := fs.String("role", "buyer", "platform role (admin|buyer|supplier|developer)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *token == "" {
		return errors.New("login: -token is required")
	}
	user := session.User{Name: *name, Email: *email, Role: *role}
	if err := a.sessions.Login(*token, user); err != nil {
		return err
	}
	a.toasts.Success("logged in as %s (%s)", *name, *role)
	return nil
}

func (a *App) runLogout() error {
	if err := a.sessions.Logout(); err != nil {
		return err
	}
	a.toasts.Info("logged out")
	return nil
}

func (a *App) runWhoami() error {
	sess, ok := a.sessions.Current()
	if !ok {
		fmt.Fprintln(a.out, "not logged in")
		return nil
	}
	fmt.Fprintf(a.out, "%s <%s> role=%s\n", sess.User.Name, sess.User.Email, sess.User.Role)
	return nil
}
