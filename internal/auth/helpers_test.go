package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/signalix/accounts/internal/events"
	"github.com/signalix/accounts/internal/logging"
	"github.com/signalix/accounts/internal/model"
	"github.com/signalix/accounts/internal/repo"
)

const testSecret = "test-jwt-secret-at-least-32-characters-long"

func newTestRepo(t *testing.T) repo.UserRepo {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:auth_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true, Logger: logging.GormLogger()})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return repo.NewUserRepo(db)
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.UnixMilli(1_700_000_000_000)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type captureEmitter struct {
	mu     sync.Mutex
	events []events.SendEmail
	err    error
}

func (e *captureEmitter) Emit(_ context.Context, topic string, payload any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	if ev, ok := payload.(events.SendEmail); ok && topic == events.TopicSendEmail {
		e.events = append(e.events, ev)
	}
	return nil
}

func (e *captureEmitter) sent() []events.SendEmail {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]events.SendEmail(nil), e.events...)
}

type failingIssuer struct{}

func (failingIssuer) Issue(string, int64) (string, error) {
	return "", errors.New("signing key unavailable")
}

// brokenRepo fails every call, or panics when panicky is set.
type brokenRepo struct {
	panicky bool
}

var errStore = errors.New("connection reset")

func (r brokenRepo) fail() error {
	if r.panicky {
		panic("store exploded")
	}
	return errStore
}

func (r brokenRepo) FindByEmail(context.Context, string) (*model.User, error) { return nil, r.fail() }
func (r brokenRepo) FindByID(context.Context, uuid.UUID) (*model.User, error) { return nil, r.fail() }
func (r brokenRepo) Create(context.Context, *model.User) error                { return r.fail() }
func (r brokenRepo) Update(context.Context, uuid.UUID, map[string]any) error  { return r.fail() }
func (r brokenRepo) SetLastLoggedInAt(context.Context, uuid.UUID, string) error {
	return r.fail()
}
func (r brokenRepo) SoftDelete(context.Context, uuid.UUID) error { return r.fail() }

func createUser(t *testing.T, users repo.UserRepo, email, password string, mutate ...func(*model.User)) *model.User {
	t.Helper()
	u := &model.User{Email: email, FirstName: "Ada", LastName: "Lovelace"}
	require.NoError(t, u.SetPassword(password))
	for _, m := range mutate {
		m(u)
	}
	require.NoError(t, users.Create(context.Background(), u))
	return u
}
