package http

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-playground/validator/v10"
	"github.com/shortlyhq/shortly/internal/auth"
	"github.com/shortlyhq/shortly/internal/models"
)

// URLService is the business-layer contract the transport depends on.
type URLService interface {
	ShortenURL(ctx context.Context, originalURL, customCode string, expiresAt *time.Time) (*models.URL, error)
	ResolveShortCode(ctx context.Context, shortCode string) (string, error)
	GetURLStats(ctx context.Context, shortCode string) (*models.URL, error)
}

// NewRouter assembles the HTTP surface:
//
//	POST /api/shorten            create a short link
//	GET  /api/{shortCode}/stats  stats for a short link
//	POST /api/v1/shorten         same, HMAC-authenticated
//	GET  /api/v1/{shortCode}/stats
//	GET  /{shortCode}            redirect to the original URL
//
// The /api/v1 subtree requires a valid HMAC signature; the unversioned
// routes are open and expected to sit behind stricter rate limiting.
func NewRouter(logger *httplog.Logger, urlSvc URLService, authenticator *auth.Authenticator, baseURL string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		validate := getValidate()

		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"https://*"},
			AllowedMethods:   []string{"POST", "GET", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "Accept", "X-API-Key", "X-Signature", "X-Timestamp"},
			AllowCredentials: false,
			MaxAge:           84600,
		}))

		r.Get("/ping", handlePing)

		r.With(middleware.AllowContentType("application/json")).
			Post("/shorten", handleShortenURL(urlSvc, validate, baseURL))
		r.Get("/{shortCode}/stats", handleGetURLStats(urlSvc))

		r.Route("/v1", func(r chi.Router) {
			r.Use(HMACAuth(authenticator))

			r.With(middleware.AllowContentType("application/json")).
				Post("/shorten", handleShortenURL(urlSvc, validate, baseURL))
			r.Get("/{shortCode}/stats", handleGetURLStats(urlSvc))
		})
	})

	// Catch-all, must stay last so API routes win.
	r.Get("/{shortCode}", handleRedirect(urlSvc))

	return r
}

func getValidate() *validator.Validate {
	validate := validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return validate
}
