package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/jakechorley/shelter-shifts/internal/config"
	"github.com/jakechorley/shelter-shifts/pkg/auth"
	"github.com/jakechorley/shelter-shifts/pkg/cache"
	"github.com/jakechorley/shelter-shifts/pkg/clients/gmailclient"
	"github.com/jakechorley/shelter-shifts/pkg/clients/sheetsclient"
	"github.com/jakechorley/shelter-shifts/pkg/core/calendar"
	"github.com/jakechorley/shelter-shifts/pkg/core/model"
	"github.com/jakechorley/shelter-shifts/pkg/core/notify"
	"github.com/jakechorley/shelter-shifts/pkg/core/services"
	"github.com/jakechorley/shelter-shifts/pkg/core/session"
	"github.com/jakechorley/shelter-shifts/pkg/db"
	"github.com/jakechorley/shelter-shifts/pkg/events"
	"github.com/jakechorley/shelter-shifts/pkg/metrics"
	"github.com/jakechorley/shelter-shifts/pkg/postgres"
)

// PasswordEnv is read before prompting for the operator's password
const PasswordEnv = "SHELTER_PASSWORD"

// AppContext holds the application dependencies shared across all commands
type AppContext struct {
	Cfg          *config.Config
	Database     db.Database
	Postgres     *postgres.DB // nil when running on the in-memory store
	Cache        cache.Cache
	Calendar     *calendar.Calendar
	Notifier     *notify.Registry
	Publisher    events.Publisher
	Metrics      *metrics.Metrics
	Auth         *auth.Provider
	Assignments  *services.AssignmentService
	Users        *services.UserService
	SheetsClient *sheetsclient.Client
	GmailClient  *gmailclient.Client
	Logger       *zap.Logger
	Ctx          context.Context

	// Email of the operator commands run as; set by the --user flag
	UserEmail string
	Session   *session.Machine
	In        io.Reader
	Out       io.Writer

	sessionID string
	token     string
	reader    *bufio.Reader
	closers   []func()
}

// OnClose registers fn to run when the app shuts down, in reverse order
func (app *AppContext) OnClose(fn func()) {
	app.closers = append(app.closers, fn)
}

func (app *AppContext) Close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		app.closers[i]()
	}
	app.closers = nil
}

func (app *AppContext) out() io.Writer {
	if app.Out == nil {
		return os.Stdout
	}
	return app.Out
}

func (app *AppContext) input() *bufio.Reader {
	if app.reader == nil {
		in := app.In
		if in == nil {
			in = os.Stdin
		}
		app.reader = bufio.NewReader(in)
	}
	return app.reader
}

// Actor returns the signed-in operator and their session id, signing in on first use.
// Interactive sessions reuse the same sign-in across commands.
func (app *AppContext) Actor() (*model.User, string, error) {
	if app.Session == nil {
		app.Session = session.NewMachine()
	}
	if u := app.Session.User(); u != nil {
		return u, app.sessionID, nil
	}

	if app.UserEmail == "" {
		return nil, "", errors.New("this command needs a signed-in user: pass --user <email>")
	}

	password := os.Getenv(PasswordEnv)
	if password == "" {
		fmt.Fprintf(app.out(), "Password for %s: ", app.UserEmail)
		line, err := app.input().ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, "", fmt.Errorf("failed to read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	if _, err := app.Session.Fire(session.Event{Kind: session.SignInStarted}); err != nil {
		return nil, "", err
	}

	sess, err := app.Auth.SignIn(app.Ctx, app.UserEmail, password)
	if err != nil {
		return nil, "", app.signInFailed(err)
	}

	// The token id scopes this session's notices
	claims, err := app.Auth.Verify(app.Ctx, sess.Token)
	if err != nil {
		return nil, "", app.signInFailed(err)
	}

	snap, err := app.Session.Fire(session.Event{Kind: session.SignInSucceeded, User: &sess.User})
	if err != nil {
		return nil, "", err
	}
	app.sessionID = claims.ID
	app.token = sess.Token
	return snap.User, app.sessionID, nil
}

// signInFailed moves the session to Failed so the next Actor call can retry
func (app *AppContext) signInFailed(err error) error {
	if _, ferr := app.Session.Fire(session.Event{Kind: session.SignInFailed, Err: err}); ferr != nil {
		app.Logger.Warn("Session transition failed", zap.Error(ferr))
	}
	return fmt.Errorf("sign-in failed: %w", err)
}

// SignOut revokes the operator's token if one was issued
func (app *AppContext) SignOut() error {
	if app.Session == nil || app.Session.User() == nil {
		return nil
	}
	if err := app.Auth.SignOut(app.Ctx, app.token); err != nil {
		return err
	}
	app.Notifier.Drop(app.sessionID)
	if _, err := app.Session.Fire(session.Event{Kind: session.SignedOut}); err != nil {
		return err
	}
	app.sessionID, app.token = "", ""
	return nil
}
