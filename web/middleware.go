package web

import (
	"context"
	"net/http"
	"os"
	"time"

	"streetlegacy/database"

	"github.com/gorilla/sessions"
)

type ContextKey string

const PlayerContextKey ContextKey = "player"

const sessionCookieName = "streetlegacy-session"

type AuthMiddleware struct {
	repo  *database.Repository
	store *sessions.CookieStore
}

func NewAuthMiddleware(repo *database.Repository, sessionSecret string) *AuthMiddleware {
	store := sessions.NewCookieStore([]byte(sessionSecret))

	isProduction := os.Getenv("ENVIRONMENT") == "production"

	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   30 * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   isProduction,
		SameSite: http.SameSiteLaxMode,
	}

	return &AuthMiddleware{
		repo:  repo,
		store: store,
	}
}

// LoadPlayer resolves the session cookie's auth token to a player and puts it
// on the request context. Requests without a valid token pass through
// anonymously; RequirePlayer decides what needs one.
func (am *AuthMiddleware) LoadPlayer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := am.store.Get(r, sessionCookieName)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := session.Values["token"].(string)
		if !ok || token == "" {
			next.ServeHTTP(w, r)
			return
		}

		player, err := am.repo.GetPlayerBySessionToken(token, time.Now().UTC())
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), PlayerContextKey, player)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePlayer rejects unauthenticated requests.
func (am *AuthMiddleware) RequirePlayer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetPlayerFromContext(r) == nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func GetPlayerFromContext(r *http.Request) *database.Player {
	player, _ := r.Context().Value(PlayerContextKey).(*database.Player)
	return player
}
