package credential

import (
	"errors"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const otpIssuer = "signalix"

// ErrNoOTPSecret is returned when an account has no one-time-password secret.
var ErrNoOTPSecret = errors.New("no otp secret")

// OTPOptions controls code length and the width of one time step.
type OTPOptions struct {
	Digits int
	Step   time.Duration
}

// DefaultOTPOptions returns 6 digit codes on 5 minute steps, long enough for
// a code delivered by email to still be valid when it is read.
func DefaultOTPOptions() OTPOptions {
	return OTPOptions{Digits: 6, Step: 5 * time.Minute}
}

func (o OTPOptions) validateOpts() totp.ValidateOpts {
	digits := o.Digits
	if digits <= 0 {
		digits = 6
	}
	period := uint(o.Step / time.Second)
	if period == 0 {
		period = 30
	}
	return totp.ValidateOpts{
		Period:    period,
		Skew:      0,
		Digits:    otp.Digits(digits),
		Algorithm: otp.AlgorithmSHA1,
	}
}

// NewOTPSecret returns a fresh base32 secret for accountName.
func NewOTPSecret(accountName string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      otpIssuer,
		AccountName: accountName,
	})
	if err != nil {
		return "", fmt.Errorf("generate otp secret: %w", err)
	}
	return key.Secret(), nil
}

// GenerateOTP returns the code for the step containing at. Passing a future
// instant yields the code of a later step.
func GenerateOTP(secret string, opts OTPOptions, at time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, at.UTC(), opts.validateOpts())
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return code, nil
}

// ValidateOTP reports whether code is the code of the step containing at.
// Neighbouring steps are not accepted.
func ValidateOTP(secret, code string, opts OTPOptions, at time.Time) bool {
	if secret == "" || code == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, at.UTC(), opts.validateOpts())
	return err == nil && ok
}
