package http

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/shortlyhq/shortly/internal/auth"
	"github.com/shortlyhq/shortly/pkg/response"
)

// HMACAuth gates a route subtree behind HMAC request authentication.
//
// The client answer stays a generic 401 regardless of which check failed;
// the specific reason only goes to the request log. A missing server-side
// secret is the one exception: that is a 500, the gate fails closed.
func HMACAuth(authenticator *auth.Authenticator) func(next http.Handler) http.Handler {
	const op = "api.http.HMACAuth"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.BadRequestResponse)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			err = authenticator.Authenticate(auth.Request{
				Method:    r.Method,
				Path:      r.URL.Path,
				Body:      body,
				APIKey:    r.Header.Get("X-API-Key"),
				Signature: r.Header.Get("X-Signature"),
				Timestamp: r.Header.Get("X-Timestamp"),
			})
			if err != nil {
				httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

				if errors.Is(err, auth.ErrNotConfigured) {
					render.Status(r, http.StatusInternalServerError)
					render.JSON(w, r, response.ServerErrorResponse)
					return
				}

				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.UnauthorizedResponse)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
