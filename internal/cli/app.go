// Package cli implements memocli, a terminal client for the memos API.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/gaa1973/memo-platform/internal/client"
	"github.com/gaa1973/memo-platform/internal/memostore"
	"github.com/gaa1973/memo-platform/internal/model"
)

const usage = `usage: memocli <command> [args]

commands:
  register              create an account and start a session
  login                 start a session
  logout                end the session
  list                  list your memos, newest first
  add [title] [content] create a memo (prompts when title is omitted)
  show <id>             print one memo
  edit <id>             change a memo's title and content
  rm <id>               delete a memo
`

// ErrUsage is returned for unknown commands or bad arguments.
var ErrUsage = errors.New("invalid usage")

type App struct {
	api      *client.Client
	store    *memostore.Store
	sessions *SessionFile
	in       *bufio.Reader
	out      io.Writer
	logger   *slog.Logger

	// readPassword reads a secret without echo when stdin is a terminal.
	readPassword func() (string, error)
}

func NewApp(api *client.Client, sessions *SessionFile, in io.Reader, out io.Writer, logger *slog.Logger) *App {
	a := &App{
		api:      api,
		store:    memostore.New(api, logger.With("component", "memostore")),
		sessions: sessions,
		in:       bufio.NewReader(in),
		out:      out,
		logger:   logger,
	}
	a.readPassword = a.terminalPassword
	return a
}

// Run executes one command. The saved session, if any, is loaded first.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.out, usage)
		return ErrUsage
	}

	if err := a.sessions.Restore(a.api); err != nil {
		a.logger.Warn("restore session", "error", err)
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
		return nil
	case "register":
		return a.register(ctx)
	case "login":
		return a.login(ctx)
	case "logout":
		return a.logout(ctx)
	case "list", "ls":
		return a.list(ctx)
	case "add":
		return a.add(ctx, rest)
	case "show":
		return a.show(ctx, rest)
	case "edit":
		return a.edit(ctx, rest)
	case "rm", "delete":
		return a.remove(ctx, rest)
	default:
		fmt.Fprintf(a.out, "unknown command %q\n\n%s", cmd, usage)
		return ErrUsage
	}
}

func (a *App) register(ctx context.Context) error {
	email, err := a.prompt("Email")
	if err != nil {
		return err
	}
	name, err := a.prompt("Name")
	if err != nil {
		return err
	}
	password, err := a.password()
	if err != nil {
		return err
	}

	u, err := a.api.Register(ctx, client.Credentials{Email: email, Name: name, Password: password})
	if err != nil {
		return err
	}
	if err := a.sessions.Save(a.api); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "registered %s\n", u.Email)
	return nil
}

func (a *App) login(ctx context.Context) error {
	email, err := a.prompt("Email")
	if err != nil {
		return err
	}
	password, err := a.password()
	if err != nil {
		return err
	}

	u, err := a.api.Login(ctx, email, password)
	if err != nil {
		return err
	}
	if err := a.sessions.Save(a.api); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "logged in as %s\n", u.Email)
	return nil
}

func (a *App) logout(ctx context.Context) error {
	if err := a.api.Logout(ctx); err != nil && !client.IsStatus(err, http.StatusUnauthorized) {
		return err
	}
	if err := a.sessions.Clear(); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "logged out")
	return nil
}

func (a *App) list(ctx context.Context) error {
	if err := a.store.Load(ctx); err != nil {
		return err
	}
	memos := a.store.Memos()
	if len(memos) == 0 {
		fmt.Fprintln(a.out, "no memos")
		return nil
	}
	printMemos(a.out, memos)
	return nil
}

func (a *App) add(ctx context.Context, args []string) error {
	var title, content string
	switch len(args) {
	case 0:
		var err error
		if title, err = a.prompt("Title"); err != nil {
			return err
		}
		if content, err = a.multiline("Content"); err != nil {
			return err
		}
	case 1:
		title = args[0]
	default:
		title, content = args[0], strings.Join(args[1:], " ")
	}

	m, err := a.store.Create(ctx, title, content)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s (#%d)\n", a.store.Message(), m.ID)
	return nil
}

func (a *App) show(ctx context.Context, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	m, err := a.api.GetMemo(ctx, id)
	if err != nil {
		return err
	}
	printMemo(a.out, m)
	return nil
}

func (a *App) edit(ctx context.Context, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	m, err := a.api.GetMemo(ctx, id)
	if err != nil {
		return err
	}

	title, err := a.prompt(fmt.Sprintf("Title [%s]", m.Title))
	if err != nil {
		return err
	}
	if title == "" {
		title = m.Title
	}
	content, err := a.multiline("Content (empty keeps the current text)")
	if err != nil {
		return err
	}
	if content == "" {
		content = m.Content
	}

	updated, err := a.api.UpdateMemo(ctx, id, title, content)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "memo updated")
	printMemo(a.out, updated)
	return nil
}

func (a *App) remove(ctx context.Context, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	// The store only deletes memos it holds.
	if err := a.store.Load(ctx); err != nil {
		return err
	}
	if err := a.store.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintln(a.out, a.store.Message())
	return nil
}

func parseID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%w: expected a memo id", ErrUsage)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q is not a memo id", ErrUsage, args[0])
	}
	return id, nil
}

func (a *App) prompt(label string) (string, error) {
	fmt.Fprintf(a.out, "%s: ", label)
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}

// multiline reads until an empty line or EOF.
func (a *App) multiline(label string) (string, error) {
	fmt.Fprintf(a.out, "%s (end with an empty line):\n", label)
	var lines []string
	for {
		line, err := a.in.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line != "" {
			lines = append(lines, line)
		}
		if line == "" || err != nil {
			break
		}
	}
	return strings.Join(lines, "\n"), nil
}

func (a *App) password() (string, error) {
	fmt.Fprint(a.out, "Password: ")
	pw, err := a.readPassword()
	fmt.Fprintln(a.out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return pw, nil
}

func (a *App) terminalPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		return string(b), err
	}
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func printMemos(w io.Writer, memos []model.Memo) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tTITLE")
	for _, m := range memos {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", m.ID, m.CreatedAt.Local().Format(time.DateTime), m.Title)
	}
	tw.Flush()
}

func printMemo(w io.Writer, m *model.Memo) {
	fmt.Fprintf(w, "#%d %s\n", m.ID, m.Title)
	fmt.Fprintf(w, "created %s, updated %s\n\n",
		m.CreatedAt.Local().Format(time.DateTime), m.UpdatedAt.Local().Format(time.DateTime))
	if m.Content != "" {
		fmt.Fprintln(w, m.Content)
	}
}
