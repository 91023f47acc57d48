package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"signage-fleet-server/internal/domain"
	"signage-fleet-server/internal/service"
	"signage-fleet-server/pkg/response"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

type DeviceAuthenticator interface {
	Authenticate(ctx context.Context, accessToken, refreshToken string) (*service.AuthResult, error)
}

// DeviceAuth admits paired devices by their session cookies, rotating the
// pair when the access token is no longer usable.
func DeviceAuth(sessions DeviceAuthenticator, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, err := sessions.Authenticate(r.Context(), cookieValue(r, AccessTokenCookie), cookieValue(r, RefreshTokenCookie))
			if err != nil {
				switch {
				case errors.Is(err, domain.ErrSessionCompromised):
					ClearSessionCookies(w, secure)
					response.DeviceError(w, http.StatusUnauthorized, "session compromised", "SESSION_COMPROMISED", response.ActionRePair)
				case errors.Is(err, domain.ErrSessionExpired):
					ClearSessionCookies(w, secure)
					response.DeviceError(w, http.StatusUnauthorized, "session expired", "SESSION_EXPIRED", response.ActionRePair)
				default:
					logrus.WithError(err).WithField("path", r.URL.Path).Error("Device authentication failed")
					response.DeviceError(w, http.StatusInternalServerError, "session error", "SESSION_ERROR", response.ActionRetry)
				}
				return
			}

			if result.Rotated != nil {
				SetSessionCookies(w, result.Rotated, secure)
			}

			ctx := context.WithValue(r.Context(), DeviceKey, result.Device)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func DeviceFromContext(ctx context.Context) (*domain.Device, bool) {
	device, ok := ctx.Value(DeviceKey).(*domain.Device)
	return device, ok && device != nil
}

func SetSessionCookies(w http.ResponseWriter, pair *domain.TokenPair, secure bool) {
	http.SetCookie(w, sessionCookie(AccessTokenCookie, pair.AccessToken, int(pair.ExpiresIn), secure))
	http.SetCookie(w, sessionCookie(RefreshTokenCookie, pair.RefreshToken, int(pair.RefreshExpiresIn), secure))
}

func ClearSessionCookies(w http.ResponseWriter, secure bool) {
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie} {
		c := sessionCookie(name, "", -1, secure)
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}

func sessionCookie(name, value string, maxAge int, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
