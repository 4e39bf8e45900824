package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/studyshelf/apiserver/internal/auth"
)

type contextKey string

const contextClaimsKey contextKey = "claims"

// AccessTokenCookie is the cookie carrying the session token. Tokens are
// accepted from either this cookie or the Authorization header, validated
// identically.
const AccessTokenCookie = "access_token"

// loginPageURL is where unauthenticated browsers are sent. The page
// itself is served by the fronting UI, not by this server.
const loginPageURL = "/auth/login-page"

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// tokenFromRequest extracts the bearer token from the Authorization header,
// falling back to the access_token cookie.
func tokenFromRequest(r *http.Request) (string, error) {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", errors.New("invalid authorization header")
		}
		token := strings.TrimSpace(parts[1])
		if token == "" {
			return "", errors.New("invalid authorization header")
		}
		return token, nil
	}

	cookie, err := r.Cookie(AccessTokenCookie)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return "", errors.New("missing token")
	}
	return cookie.Value, nil
}

// WithClaims decodes the request's session token, when present, and stores
// the claim snapshot in the request context. It never blocks the request:
// downstream decisions treat an absent or undecodable token as no claim.
func WithClaims(codec *auth.Codec) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := tokenFromRequest(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := codec.Decode(tokenString)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), contextClaimsKey, &claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// claimsFromContext returns the claim snapshot attached by WithClaims, or
// nil when the request carried no valid token.
func claimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(contextClaimsKey).(*auth.Claims)
	return claims
}

// wantsHTML reports whether the client is a browser navigating pages, in
// which case auth failures redirect instead of returning JSON errors.
func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func clearTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// writeDeny translates an engine refusal into a response. Unauthenticated
// browsers are redirected to the login page with the stale cookie cleared;
// API clients get structured errors. Forbidden responses carry no detail
// about the resource.
func writeDeny(w http.ResponseWriter, r *http.Request, decision auth.Decision) {
	switch decision.Reason() {
	case auth.DenyUnauthenticated:
		if wantsHTML(r) {
			clearTokenCookie(w)
			http.Redirect(w, r, loginPageURL, http.StatusFound)
			return
		}
		writeError(w, http.StatusUnauthorized, "could not validate user")
	case auth.DenyNotApproved:
		writeError(w, http.StatusForbidden, "user not approved by teacher yet")
	default:
		writeError(w, http.StatusForbidden, "access not granted")
	}
}

// Require builds middleware enforcing the engine's decision for an action.
func Require(action auth.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := auth.Decide(claimsFromContext(r.Context()), action)
			if !decision.Allowed() {
				writeDeny(w, r, decision)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
