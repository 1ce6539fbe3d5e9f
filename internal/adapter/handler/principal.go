package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
)

var ErrNoUser = errors.New("no authenticated user")

type userKey struct{}

// WithUser resolves the authenticated user from the X-User-Id header and
// stores it in the request context. It stands in for the real session
// layer, which is outside this module; nothing downstream reads ambient
// state, only the context value placed here.
func WithUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-User-Id")
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID <= 0 {
			http.Error(w, "missing or invalid X-User-Id", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, userID)))
	})
}

// ContextPrincipal reads the user placed in the context by WithUser.
type ContextPrincipal struct{}

func (ContextPrincipal) CurrentUser(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value(userKey{}).(int64)
	if !ok {
		return 0, ErrNoUser
	}
	return userID, nil
}
