package httpx

import (
	"context"
	"net/http"
)

type ctxKey int

const (
	ctxKeyUserID ctxKey = iota
	ctxKeyStaff
)

// Identity reads the caller from the X-User-Id and X-Staff headers set by the
// gateway in front of this service. The engine trusts them as given.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if uid := r.Header.Get("X-User-Id"); uid != "" {
			ctx = context.WithValue(ctx, ctxKeyUserID, uid)
		}
		if r.Header.Get("X-Staff") == "true" {
			ctx = context.WithValue(ctx, ctxKeyStaff, true)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func UserID(ctx context.Context) string {
	uid, _ := ctx.Value(ctxKeyUserID).(string)
	return uid
}

func IsStaff(ctx context.Context) bool {
	ok, _ := ctx.Value(ctxKeyStaff).(bool)
	return ok
}

func RequireStaff(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !IsStaff(r.Context()) {
			writeJSON(w, http.StatusForbidden, errBody{Error: "staff only", Code: "forbidden"})
			return
		}
		next(w, r)
	}
}

func RequireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if UserID(r.Context()) == "" && !IsStaff(r.Context()) {
			writeJSON(w, http.StatusUnauthorized, errBody{Error: "missing identity", Code: "unauthorized"})
			return
		}
		next(w, r)
	}
}
