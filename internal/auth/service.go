package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/signalix/accounts/internal/credential"
	"github.com/signalix/accounts/internal/events"
	"github.com/signalix/accounts/internal/logging"
	"github.com/signalix/accounts/internal/model"
	"github.com/signalix/accounts/internal/repo"
)

// Result is the outcome of every account operation. Message is never nil.
type Result struct {
	StatusCode int      `json:"statusCode"`
	Message    []string `json:"message"`
	Data       any      `json:"data,omitempty"`
}

func result(status int, data any, messages ...string) Result {
	if messages == nil {
		messages = []string{}
	}
	return Result{StatusCode: status, Message: messages, Data: data}
}

// ServerError is the Result for any unexpected failure.
func ServerError() Result {
	return result(http.StatusInternalServerError, nil, MsgServerError)
}

// LoginData is the payload of a successful login: the token plus the
// profile, with lastLoggedInAt already set to the new watermark.
type LoginData struct {
	AccessToken string `json:"accessToken"`
	model.Profile
}

// RegisterInput carries a validated registration request.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Login outcomes reported to the observer.
const (
	LoginSuccess            = "success"
	LoginInvalidCredentials = "invalid_credentials"
	LoginInactive           = "inactive"
	LoginError              = "error"
)

// AccountService orchestrates registration, login and profile reads.
type AccountService struct {
	users   repo.UserRepo
	tokens  TokenIssuer
	emitter events.Emitter
	otp     credential.OTPOptions
	now     func() time.Time
	onLogin func(outcome string)
}

// Option configures an AccountService.
type Option func(*AccountService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *AccountService) { s.now = now }
}

// WithOTPOptions sets code length and step.
func WithOTPOptions(opts credential.OTPOptions) Option {
	return func(s *AccountService) { s.otp = opts }
}

// WithLoginObserver is called once per login attempt with its outcome.
func WithLoginObserver(f func(outcome string)) Option {
	return func(s *AccountService) { s.onLogin = f }
}

// NewAccountService creates a new account service
func NewAccountService(users repo.UserRepo, tokens TokenIssuer, emitter events.Emitter, opts ...Option) *AccountService {
	s := &AccountService{
		users:   users,
		tokens:  tokens,
		emitter: emitter,
		otp:     credential.DefaultOTPOptions(),
		now:     time.Now,
		onLogin: func(string) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// recoverResult turns a panic in an operation into the generic 500.
func recoverResult(ctx context.Context, op string, res *Result) {
	if r := recover(); r != nil {
		logging.FromContext(ctx).Error().
			Str("op", op).
			Interface("panic", r).
			Msg("Server error")
		*res = ServerError()
	}
}

func serverError(ctx context.Context, op string, err error) Result {
	logging.FromContext(ctx).Error().Err(err).Str("op", op).Msg("Server error")
	return ServerError()
}

// Register creates an account and queues the welcome email.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (res Result) {
	defer recoverResult(ctx, "register", &res)

	email := model.NormalizeEmail(in.Email)
	_, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return result(http.StatusBadRequest, nil, MsgUserWithEmailExists)
	case !errors.Is(err, repo.ErrNotFound):
		return serverError(ctx, "register", err)
	}

	user := &model.User{
		Email:     email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
	}
	if err := user.SetPassword(in.Password); err != nil {
		if errors.Is(err, credential.ErrPasswordTooLong) {
			return result(http.StatusBadRequest, nil, MsgPasswordTooLong)
		}
		return serverError(ctx, "register", err)
	}
	if err := s.users.Create(ctx, user); err != nil {
		// lost a race with a concurrent registration
		if errors.Is(err, repo.ErrUserExists) {
			return result(http.StatusBadRequest, nil, MsgUserWithEmailExists)
		}
		return serverError(ctx, "register", err)
	}

	s.emitEmail(ctx, events.EmailData{
		To:           []events.Recipient{{Email: email}},
		Subject:      "Welcome",
		Template:     "welcome",
		TemplateData: map[string]any{"firstName": user.FirstName},
	})

	logging.FromContext(ctx).Info().Str("user_id", user.ID.String()).Msg("Registration successful")
	return result(http.StatusCreated, nil, MsgRegistrationSuccess)
}

// Login checks credentials and issues a token. Persisting the new watermark
// revokes every token issued by earlier logins.
func (s *AccountService) Login(ctx context.Context, email, password string) (res Result) {
	defer recoverResult(ctx, "login", &res)
	logger := logging.FromContext(ctx)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		s.onLogin(LoginError)
		return serverError(ctx, "login", err)
	}
	if user == nil || !user.ValidatePassword(password) {
		s.onLogin(LoginInvalidCredentials)
		return result(http.StatusBadRequest, nil, MsgLoginCredentialsInvalid)
	}
	if !user.IsActive() {
		s.onLogin(LoginInactive)
		return result(http.StatusBadRequest, nil, MsgAccountNotActive)
	}

	watermark := s.now().UnixMilli()
	token, err := s.tokens.Issue(user.Email, watermark)
	if err != nil {
		logger.Error().Err(err).Msg("Token issuance failed")
		s.onLogin(LoginError)
		return result(http.StatusBadRequest, nil, MsgLoginFailure)
	}

	stamp := model.FormatWatermark(watermark)
	if err := s.users.SetLastLoggedInAt(ctx, user.ID, stamp); err != nil {
		s.onLogin(LoginError)
		return serverError(ctx, "login", fmt.Errorf("persist watermark: %w", err))
	}
	user.LastLoggedInAt = &stamp

	s.onLogin(LoginSuccess)
	logger.Info().Str("user_id", user.ID.String()).Msg("Login successful")
	return result(http.StatusOK, LoginData{AccessToken: token, Profile: user.Profile()}, MsgLoginSuccess)
}

func profileNotFound() Result {
	return result(http.StatusNotFound, nil, RecordNotFound("profile"))
}

// lookup resolves a path id to a live user. ok is false with res set when
// the caller should return res as is.
func (s *AccountService) lookup(ctx context.Context, op, id string) (user *model.User, res Result, ok bool) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, profileNotFound(), false
	}
	user, err = s.users.FindByID(ctx, uid)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, profileNotFound(), false
	}
	if err != nil {
		return nil, serverError(ctx, op, err), false
	}
	return user, Result{}, true
}

// GetProfile returns the public profile of the live user with id.
func (s *AccountService) GetProfile(ctx context.Context, id string) (res Result) {
	defer recoverResult(ctx, "get_profile", &res)

	user, res, ok := s.lookup(ctx, "get_profile", id)
	if !ok {
		return res
	}
	return result(http.StatusOK, user.Profile())
}

// DeleteUser soft-deletes the user with id. The row is kept and the email
// becomes available again.
func (s *AccountService) DeleteUser(ctx context.Context, id string) (res Result) {
	defer recoverResult(ctx, "delete_user", &res)

	user, res, ok := s.lookup(ctx, "delete_user", id)
	if !ok {
		return res
	}
	if err := s.users.SoftDelete(ctx, user.ID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return profileNotFound()
		}
		return serverError(ctx, "delete_user", err)
	}
	logging.FromContext(ctx).Info().Str("user_id", user.ID.String()).Msg("Account deleted")
	return result(http.StatusOK, nil, MsgAccountDeleted)
}

// RequestOTP emails the caller a one-time code, creating their secret on
// first use.
func (s *AccountService) RequestOTP(ctx context.Context, user *model.User) (res Result) {
	defer recoverResult(ctx, "request_otp", &res)

	if user.OTPSecret == nil {
		secret, err := credential.NewOTPSecret(user.Email)
		if err != nil {
			return serverError(ctx, "request_otp", err)
		}
		if err := s.users.Update(ctx, user.ID, map[string]any{"totp": secret}); err != nil {
			return serverError(ctx, "request_otp", err)
		}
		user.OTPSecret = &secret
	}

	code, err := user.GenerateOTP(s.otp, s.now())
	if err != nil {
		return serverError(ctx, "request_otp", err)
	}

	s.emitEmail(ctx, events.EmailData{
		To:       []events.Recipient{{Email: user.Email}},
		Subject:  "Verify your email",
		Template: "verify-email",
		TemplateData: map[string]any{
			"firstName": user.FirstName,
			"code":      code,
			"expiresIn": s.otp.Step.String(),
		},
	})
	return result(http.StatusOK, nil, MsgOTPSent)
}

// VerifyOTP checks code against the caller's secret for the current step.
func (s *AccountService) VerifyOTP(ctx context.Context, user *model.User, code string) (res Result) {
	defer recoverResult(ctx, "verify_otp", &res)

	if !user.ValidateOTP(code, s.otp, s.now()) {
		return result(http.StatusBadRequest, nil, MsgOTPInvalid)
	}
	return result(http.StatusOK, nil, MsgOTPVerified)
}

// RegenerateOTPSecret replaces the secret of the user with id. Codes issued
// under the old secret stop validating.
func (s *AccountService) RegenerateOTPSecret(ctx context.Context, id string) (res Result) {
	defer recoverResult(ctx, "regenerate_otp_secret", &res)

	user, res, ok := s.lookup(ctx, "regenerate_otp_secret", id)
	if !ok {
		return res
	}
	secret, err := credential.NewOTPSecret(user.Email)
	if err != nil {
		return serverError(ctx, "regenerate_otp_secret", err)
	}
	if err := s.users.Update(ctx, user.ID, map[string]any{"totp": secret}); err != nil {
		return serverError(ctx, "regenerate_otp_secret", err)
	}
	return result(http.StatusOK, nil, MsgOTPSecretRegenerated)
}

// emitEmail queues a send-email event. Failures are logged and never
// affect the caller.
func (s *AccountService) emitEmail(ctx context.Context, data events.EmailData) {
	defer func() {
		if r := recover(); r != nil {
			logging.FromContext(ctx).Error().Interface("panic", r).Msg("Failed to emit send-email event")
		}
	}()
	err := s.emitter.Emit(ctx, events.TopicSendEmail, events.SendEmail{
		EmailData:  data,
		RetryCount: events.DefaultRetryCount,
	})
	if err != nil {
		logging.FromContext(ctx).Error().Err(err).Str("subject", data.Subject).Msg("Failed to emit send-email event")
	}
}
