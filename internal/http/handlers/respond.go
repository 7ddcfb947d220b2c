package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/signalix/accounts/internal/auth"
)

// AccessTokenCookie is the cookie a successful login sets.
const AccessTokenCookie = "accessToken"

// writeResult sends res with its own status code. A result carrying an
// access token also sets the token cookie.
func writeResult(w http.ResponseWriter, res auth.Result) {
	if data, ok := res.Data.(auth.LoginData); ok && data.AccessToken != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     AccessTokenCookie,
			Value:    data.AccessToken,
			Path:     "/",
			Secure:   true,
			HttpOnly: true,
			SameSite: http.SameSiteNoneMode,
		})
	}
	if res.Message == nil {
		res.Message = []string{}
	}
	writeJSON(w, res.StatusCode, res)
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, messages ...string) {
	writeResult(w, auth.Result{StatusCode: statusCode, Message: messages})
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// NotFound answers requests no route matched.
func NotFound(w http.ResponseWriter, r *http.Request) {
	respondWithError(w, http.StatusNotFound, auth.MsgNotFound)
}

// MethodNotAllowed answers a known path called with the wrong method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondWithError(w, http.StatusMethodNotAllowed, auth.MsgMethodNotAllowed)
}
