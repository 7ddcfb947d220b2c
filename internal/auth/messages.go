package auth

// Client-facing messages.
const (
	MsgLoginCredentialsInvalid = "email or password is not correct"
	MsgUserWithEmailExists     = "a user with this email already exists"
	MsgRegistrationSuccess     = "account created successfully"
	MsgLoginSuccess            = "login successful"
	MsgLoginFailure            = "login failed"
	MsgAccountNotActive        = "account is not active"
	MsgAccountDeleted          = "account deleted successfully"
	MsgOTPSent                 = "otp sent"
	MsgOTPVerified             = "otp verified"
	MsgOTPInvalid              = "otp is not valid"
	MsgOTPSecretRegenerated    = "otp secret regenerated"
	MsgServerError             = "An unexpected error occurred on the server. Please try again later"
	MsgUnauthorized            = "Unauthorized"
	MsgNotFound                = "Not Found"
	MsgTooManyRequests         = "Too Many Requests"
	MsgMethodNotAllowed        = "Method Not Allowed"
	MsgPasswordTooLong         = "password must be shorter than or equal to 72 bytes"
)

// RecordNotFound renders the not-found message for a record kind.
func RecordNotFound(record string) string {
	return record + " does not exists"
}
