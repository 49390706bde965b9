package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/shortlyhq/shortly/internal/database"
	"github.com/shortlyhq/shortly/internal/models"
	"github.com/shortlyhq/shortly/internal/service"
	"github.com/shortlyhq/shortly/pkg/response"
)

// handlePing handles health check requests to ensure the server is running.
func handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "pong")
}

// shortenRequest represents the request payload for creating a short link.
type shortenRequest struct {
	OriginalURL string     `json:"original_url" validate:"required,url,max=2048,startswith=http"`
	CustomCode  string     `json:"custom_code" validate:"omitempty,alphanum,min=4,max=12"`
	ExpiresAt   *time.Time `json:"expires_at" validate:"omitempty"`
}

// shortenResponse represents the response payload for a created short link.
type shortenResponse struct {
	ShortCode   string `json:"short_code"`
	ShortURL    string `json:"short_url"`
	OriginalURL string `json:"original_url"`
}

// statsResponse represents the response payload for short link statistics.
type statsResponse struct {
	OriginalURL string     `json:"original_url"`
	Clicks      int64      `json:"clicks"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

func toStatsResponse(url *models.URL) statsResponse {
	return statsResponse{
		OriginalURL: url.OriginalURL,
		Clicks:      url.Clicks,
		CreatedAt:   url.CreatedAt,
		ExpiresAt:   url.ExpiresAt,
	}
}

// handleShortenURL handles POST requests to shorten a URL.
//
// The request must contain a valid absolute http(s) URL and may carry a
// custom short code and an expiration timestamp. Validation failures answer
// 422 with field-level details; a short code that is already taken answers
// 422 with a distinct error so the client can retry with another code.
func handleShortenURL(svc URLService, validate *validator.Validate, baseURL string) http.HandlerFunc {
	const op = "api.http.handleShortenURL"
	const successMsg = "The URL has been shortened successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		var req shortenRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			if errors.Is(err, io.EOF) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.EmptyRequestBodyResponse)
				return
			}

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequestResponse)
			return
		}

		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, response.ValidationErrorResponse(err))
			return
		}

		url, err := svc.ShortenURL(r.Context(), req.OriginalURL, req.CustomCode, req.ExpiresAt)
		if err != nil {
			switch {
			case errors.Is(err, database.ErrShortCodeExists):
				render.Status(r, http.StatusUnprocessableEntity)
				render.JSON(w, r, response.CodeAlreadyExistsResponse)
			case errors.Is(err, service.ErrInvalidOriginalURL),
				errors.Is(err, service.ErrInvalidCustomCode),
				errors.Is(err, service.ErrInvalidExpiry):
				render.Status(r, http.StatusUnprocessableEntity)
				render.JSON(w, r, response.ValidationErrorResponse(err))
			default:
				httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.ServerErrorResponse)
			}
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.SuccessResponse(successMsg, shortenResponse{
			ShortCode:   url.ShortCode,
			ShortURL:    strings.TrimSuffix(baseURL, "/") + "/" + url.ShortCode,
			OriginalURL: url.OriginalURL,
		}))
	}
}

// handleRedirect handles GET requests on short codes and answers with a
// 302 redirect to the original URL.
//
// A missing code answers 404 and an expired one 410, so a client can tell
// "never existed" from "used to exist". The redirect body never carries
// internal error detail.
func handleRedirect(svc URLService) http.HandlerFunc {
	const op = "api.http.handleRedirect"

	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := chi.URLParam(r, "shortCode")

		destination, err := svc.ResolveShortCode(r.Context(), shortCode)
		if err != nil {
			switch {
			case errors.Is(err, database.ErrURLNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
			case errors.Is(err, service.ErrLinkExpired):
				render.Status(r, http.StatusGone)
				render.JSON(w, r, response.LinkExpiredResponse)
			default:
				httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.ServerErrorResponse)
			}
			return
		}

		http.Redirect(w, r, destination, http.StatusFound)
	}
}

// handleGetURLStats handles GET requests for short link statistics.
// Expired links still report stats; only the redirect path refuses them.
func handleGetURLStats(svc URLService) http.HandlerFunc {
	const op = "api.http.handleGetURLStats"
	const successMsg = "The URL stats were successfully retrieved."

	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := chi.URLParam(r, "shortCode")

		url, err := svc.GetURLStats(r.Context(), shortCode)
		if err != nil {
			if errors.Is(err, database.ErrURLNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, toStatsResponse(url)))
	}
}
