package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	appcfg "github.com/park285/liru-go/internal/config"
	"github.com/park285/liru-go/internal/cookiestore"
	"github.com/park285/liru-go/internal/lila"
	"github.com/park285/liru-go/internal/msgcat"
)

var errNoPassword = errors.New("no password: set LICHESS_PASSWORD or run in a terminal")

// authenticate restores stored cookies for the configured user, signing in
// again when they are missing or no longer valid. Without a username the
// session is anonymous.
func authenticate(ctx context.Context, cfg *appcfg.AppConfig, client *lila.Client, store cookiestore.Store, cat *msgcat.Catalog, in *os.File, out io.Writer) (*lila.User, error) {
	if cfg.Anonymous() {
		return lila.AnonymousUser(), nil
	}

	cookies, err := store.Load(ctx, cfg.Username)
	if err != nil {
		return nil, fmt.Errorf("load cookies: %w", err)
	}
	if len(cookies) > 0 {
		client.Jar().Load(cookies)
		u, err := client.Account(ctx)
		if err == nil && !u.Anonymous() {
			return u, nil
		}
		for name := range cookies {
			client.Jar().Set(name, "")
		}
		_ = store.Forget(ctx, cfg.Username)
	}

	password := cfg.Password
	if password == "" {
		password, err = readPassword(in, out, cat.Text("prompt.password", map[string]any{"User": cfg.Username}))
		if err != nil {
			return nil, err
		}
	}
	if _, err := client.SignIn(ctx, cfg.Username, password); err != nil {
		return nil, err
	}
	if err := store.Save(ctx, cfg.Username, client.Jar().All(), cookiestore.DefaultTTL); err != nil {
		return nil, fmt.Errorf("save cookies: %w", err)
	}
	// The login response carries no game list.
	u, err := client.Account(ctx)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func readPassword(in *os.File, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read password: %w", err)
		}
		return "", errNoPassword
	}
	return line, nil
}
