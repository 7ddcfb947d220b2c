package tests

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalix/accounts/internal/auth"
	"github.com/signalix/accounts/internal/db"
	"github.com/signalix/accounts/internal/events"
	httphandler "github.com/signalix/accounts/internal/http"
	"github.com/signalix/accounts/internal/http/handlers"
	"github.com/signalix/accounts/internal/metrics"
	"github.com/signalix/accounts/internal/middleware"
	"github.com/signalix/accounts/internal/model"
	"github.com/signalix/accounts/internal/repo"
)

const testSecret = "test-jwt-secret-at-least-32-characters-long"

// recordingMailer remembers every email it was asked to deliver.
type recordingMailer struct {
	mu   sync.Mutex
	sent []events.EmailData
}

func (m *recordingMailer) Send(_ context.Context, data events.EmailData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, data)
	return nil
}

func (m *recordingMailer) all() []events.EmailData {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]events.EmailData(nil), m.sent...)
}

// testServer holds the server and DB for integration tests
type testServer struct {
	Server *httptest.Server
	DB     *sql.DB
	Users  repo.UserRepo
	Mailer *recordingMailer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ctx := context.Background()
	database, err := db.Open(ctx, os.Getenv("DATABASE_URL"))
	require.NoError(t, err, "database open must succeed; check DATABASE_URL and that test DB exists")
	t.Cleanup(func() { database.Close() })

	require.NoError(t, RunMigrations(database), "migrations must run successfully")

	gormDB, err := db.Gorm(database)
	require.NoError(t, err)

	users := repo.NewUserRepo(gormDB)
	bus := events.NewLocalBus()
	mailer := &recordingMailer{}
	events.NewEmailConsumer(mailer, bus).Register(bus)
	require.NoError(t, bus.Start())
	t.Cleanup(func() { bus.Close() })

	jwtService := auth.NewJWTService(testSecret, 0, users)
	accounts := auth.NewAccountService(users, jwtService, bus)
	limiter := middleware.NewRateLimiter(time.Minute, 1000)
	t.Cleanup(limiter.Close)

	router := httphandler.NewRouter(httphandler.Deps{
		Auth:     handlers.NewAuthHandler(accounts),
		Health:   handlers.NewHealthHandler(database, nil),
		Verifier: jwtService,
		Limiter:  limiter,
		Metrics:  metrics.New(),
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testServer{Server: server, DB: database, Users: users, Mailer: mailer}
}

func (s *testServer) BaseURL() string { return s.Server.URL }

func (s *testServer) Truncate(t *testing.T) {
	t.Helper()
	require.NoError(t, TruncateUsers(context.Background(), s.DB), "truncate users")
}

// resultBody matches every account endpoint's JSON body
type resultBody struct {
	StatusCode int             `json:"statusCode"`
	Message    []string        `json:"message"`
	Data       json.RawMessage `json:"data"`
}

type loginData struct {
	AccessToken    string `json:"accessToken"`
	ID             string `json:"id"`
	Email          string `json:"email"`
	LastLoggedInAt string `json:"lastLoggedInAt"`
}

func (s *testServer) call(t *testing.T, method, path, token string, body any) (int, resultBody) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.BaseURL()+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.Server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var res resultBody
	require.NoError(t, json.Unmarshal(raw, &res), "body: %s", raw)
	return resp.StatusCode, res
}

func TestAccountsIntegration(t *testing.T) {
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}

	ts := newTestServer(t)
	registration := map[string]string{
		"email": "a@b.com", "password": "Abc123!@", "firstName": "Ada", "lastName": "Lovelace",
	}

	t.Run("A_HealthCheck", func(t *testing.T) {
		resp, err := ts.Server.Client().Get(ts.BaseURL() + "/health-check")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "API OK", body["health"])
	})

	t.Run("B_RegisterTwice", func(t *testing.T) {
		ts.Truncate(t)
		code, res := ts.call(t, http.MethodPost, "/register", "", registration)
		require.Equal(t, http.StatusCreated, code, "body: %+v", res)
		assert.Equal(t, []string{"account created successfully"}, res.Message)

		code, res = ts.call(t, http.MethodPost, "/register", "", registration)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, []string{"a user with this email already exists"}, res.Message)

		require.Eventually(t, func() bool { return len(ts.Mailer.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, "welcome", ts.Mailer.all()[0].Template)
	})

	t.Run("C_UniqueIndexMapsToUserExists", func(t *testing.T) {
		ts.Truncate(t)
		ctx := context.Background()
		first := &model.User{Email: "race@b.com", FirstName: "A", LastName: "B"}
		require.NoError(t, first.SetPassword("Abc123!@"))
		require.NoError(t, ts.Users.Create(ctx, first))

		second := &model.User{Email: "RACE@b.com", FirstName: "A", LastName: "B"}
		require.NoError(t, second.SetPassword("Abc123!@"))
		assert.ErrorIs(t, ts.Users.Create(ctx, second), repo.ErrUserExists)
	})

	t.Run("D_LoginAndProfile", func(t *testing.T) {
		ts.Truncate(t)
		code, _ := ts.call(t, http.MethodPost, "/register", "", registration)
		require.Equal(t, http.StatusCreated, code)

		code, res := ts.call(t, http.MethodPost, "/login", "", map[string]string{"email": "a@b.com", "password": "Abc123!@"})
		require.Equal(t, http.StatusOK, code, "body: %+v", res)
		var data loginData
		require.NoError(t, json.Unmarshal(res.Data, &data))
		require.NotEmpty(t, data.AccessToken)
		assert.NotEmpty(t, data.LastLoggedInAt)

		code, res = ts.call(t, http.MethodGet, "/users/"+data.ID, data.AccessToken, nil)
		require.Equal(t, http.StatusOK, code)
		var profile map[string]any
		require.NoError(t, json.Unmarshal(res.Data, &profile))
		assert.Equal(t, "a@b.com", profile["email"])
		assert.NotContains(t, profile, "password")
	})

	t.Run("E_LaterLoginRevokesEarlierToken", func(t *testing.T) {
		ts.Truncate(t)
		code, _ := ts.call(t, http.MethodPost, "/register", "", registration)
		require.Equal(t, http.StatusCreated, code)

		creds := map[string]string{"email": "a@b.com", "password": "Abc123!@"}
		_, res := ts.call(t, http.MethodPost, "/login", "", creds)
		var first loginData
		require.NoError(t, json.Unmarshal(res.Data, &first))

		time.Sleep(5 * time.Millisecond)
		_, res = ts.call(t, http.MethodPost, "/login", "", creds)
		var second loginData
		require.NoError(t, json.Unmarshal(res.Data, &second))

		code, res = ts.call(t, http.MethodGet, "/users/"+first.ID, first.AccessToken, nil)
		assert.Equal(t, http.StatusUnauthorized, code)
		assert.Equal(t, []string{"Unauthorized"}, res.Message)

		code, _ = ts.call(t, http.MethodGet, "/users/"+second.ID, second.AccessToken, nil)
		assert.Equal(t, http.StatusOK, code)
	})

	t.Run("F_SoftDeleteKeepsRow", func(t *testing.T) {
		ts.Truncate(t)
		ctx := context.Background()
		code, _ := ts.call(t, http.MethodPost, "/register", "", registration)
		require.Equal(t, http.StatusCreated, code)
		u, err := ts.Users.FindByEmail(ctx, "a@b.com")
		require.NoError(t, err)

		require.NoError(t, ts.Users.SoftDelete(ctx, u.ID))
		code, res := ts.call(t, http.MethodPost, "/login", "", map[string]string{"email": "a@b.com", "password": "Abc123!@"})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, []string{"email or password is not correct"}, res.Message)

		var rows int
		require.NoError(t, ts.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE id = $1", u.ID).Scan(&rows))
		assert.Equal(t, 1, rows)

		code, _ = ts.call(t, http.MethodPost, "/register", "", registration)
		assert.Equal(t, http.StatusCreated, code, "address is free once its holder is deleted")
	})

	t.Run("G_Ready", func(t *testing.T) {
		resp, err := ts.Server.Client().Get(ts.BaseURL() + "/ready")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}
