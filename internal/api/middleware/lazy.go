package middleware

import (
	"log/slog"
	"net/http"

	"github.com/mcoot/lazysignup-go/internal/api/apierr"
	"github.com/mcoot/lazysignup-go/internal/metrics"
	"github.com/mcoot/lazysignup-go/internal/services/auth"
	"github.com/mcoot/lazysignup-go/internal/services/classifier"
	"github.com/mcoot/lazysignup-go/internal/services/lazy"
)

// LazyConfig holds the services the lazy middlewares depend on
type LazyConfig struct {
	Auth       *auth.Service
	Lazy       *lazy.Service
	Classifier *classifier.Classifier
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	// SecureCookie marks the session cookie Secure
	SecureCookie bool
}

// LazyUser gives requests without a user a freshly created lazy user and
// session. Blacklisted user agents continue anonymously. Apply after Session.
func LazyUser(cfg LazyConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetUser(r.Context()) != nil {
				next.ServeHTTP(w, r)
				return
			}

			if cfg.Classifier.FromRequest(r) {
				if cfg.Metrics != nil {
					cfg.Metrics.IncrementBlacklisted()
				}
				next.ServeHTTP(w, r)
				return
			}

			user, err := cfg.Lazy.CreateLazyUser(r.Context(), cfg.Lazy.NewLazyUsername())
			if err != nil {
				cfg.Logger.Error("lazy user creation failed",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				apierr.WriteError(w, err)
				return
			}

			session := cfg.Auth.CreateSession(user.ID)
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookie,
				Value:    session.Token,
				Path:     "/",
				Expires:  session.ExpiresAt,
				HttpOnly: true,
				Secure:   cfg.SecureCookie,
				SameSite: http.SameSiteLaxMode,
			})
			w.Header().Set(SessionHeader, session.Token)

			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), session, user)))
		})
	}
}

// RequireLazy only lets lazy users through
func RequireLazy(lazySvc *lazy.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUser(r.Context())
			if user == nil {
				apierr.WriteError(w, apierr.NewUnauthorizedError())
				return
			}
			isLazy, err := lazySvc.IsLazy(r.Context(), user.ID)
			if err != nil {
				apierr.WriteError(w, err)
				return
			}
			if !isLazy {
				apierr.WriteError(w, apierr.NewNotLazyError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireNonLazy only lets real, signed-up users through
func RequireNonLazy(lazySvc *lazy.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUser(r.Context())
			if user == nil {
				apierr.WriteError(w, apierr.NewUnauthorizedError())
				return
			}
			isLazy, err := lazySvc.IsLazy(r.Context(), user.ID)
			if err != nil {
				apierr.WriteError(w, err)
				return
			}
			if isLazy {
				apierr.WriteError(w, apierr.NewLazyUserError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
