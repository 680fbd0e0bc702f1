package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"xunji/internal/domain"
)

// LoginCmd signs in (optionally registering first) and stores the token.
type LoginCmd struct {
	Username string `short:"u" long:"username" description:"account name" required:"yes"`
	Password string `short:"p" long:"password" description:"password (prompted when omitted)"`
	Register bool   `long:"register" description:"create the account before signing in"`
	Email    string `long:"email" description:"email for --register"`

	app *app
}

func (c *LoginCmd) Execute(_ []string) error {
	a := c.app
	if err := a.setup(); err != nil {
		return err
	}

	password := c.Password
	if password == "" {
		p, err := readPassword(a.stdin, a.stderr)
		if err != nil {
			return err
		}
		password = p
	}
	if password == "" {
		return domain.NewDomainError("login", domain.ErrInvalidInput, "password is empty")
	}

	if c.Register {
		u, err := a.client.Register(a.ctx, domain.Credentials{Username: c.Username, Password: password, Email: c.Email})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "registered %s (%s)\n", u.Username, u.ID)
	}

	tok, err := a.client.Login(a.ctx, c.Username, password)
	if err != nil {
		return err
	}
	if err := a.tokens.Save(a.ctx, tok); err != nil {
		return err
	}
	a.log.Info("login succeeded", "user_id", tok.UserID)
	fmt.Fprintf(a.stdout, "logged in as %s\n", tok.Username)
	return nil
}

// readPassword prompts on w. A terminal stdin is read without echo.
func readPassword(r io.Reader, w io.Writer) (string, error) {
	fmt.Fprint(w, "password: ")
	if f, ok := r.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(w)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// LogoutCmd removes the stored token.
type LogoutCmd struct {
	app *app
}

func (c *LogoutCmd) Execute(_ []string) error {
	a := c.app
	if err := a.setup(); err != nil {
		return err
	}
	if err := a.tokens.Clear(a.ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, "logged out")
	return nil
}
