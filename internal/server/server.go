// Package server exposes meeting ingestion, maintenance, search and chat over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/rcliao/meeting-rag/internal/app"
	"github.com/rcliao/meeting-rag/internal/model"
	"github.com/rcliao/meeting-rag/internal/retrieval"
	"github.com/rcliao/meeting-rag/internal/store"
	"github.com/rcliao/meeting-rag/internal/vectorstore"
)

// HeaderUserID carries the calling user. Requests without it are not
// permission-scoped.
const HeaderUserID = "X-User-ID"

const ctxUser = "user"

// Server is the HTTP API.
type Server struct {
	e   *echo.Echo
	app *app.App
	log zerolog.Logger
}

// New builds the router.
func New(a *app.App) *Server {
	s := &Server{e: echo.New(), app: a, log: a.Log.With().Str("component", "http").Logger()}
	e := s.e
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = s.handleError

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(a.Metrics.Registry, promhttp.HandlerOpts{})))

	api := e.Group("/api", s.identify)
	api.POST("/users", s.signIn)

	api.GET("/meetings", s.listMeetings)
	api.POST("/meetings", s.ingest)
	api.DELETE("/meetings/:id", s.deleteMeeting)
	api.POST("/meetings/:id/summary", s.ingestSummary)
	api.GET("/meetings/:id/summary", s.summary)
	api.POST("/meetings/:id/mindmap", s.saveMindmap)
	api.GET("/meetings/:id/transcript", s.transcript)
	api.PATCH("/meetings/:id/title", s.rename)
	api.PATCH("/meetings/:id/date", s.reschedule)
	api.POST("/meetings/:id/shares", s.share)
	api.DELETE("/meetings/:id/shares/:user_id", s.unshare)

	api.GET("/search", s.search)
	api.POST("/chat", s.chat)
	return s
}

// ServeHTTP lets tests and callers mount the API directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.e.ServeHTTP(w, r)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() { errc <- s.e.Start(addr) }()
	s.log.Info().Str("addr", addr).Msg("listening")

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.e.Shutdown(shutdownCtx)
}

// handleError renders every error as {"error": msg}.
func (s *Server) handleError(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
	}
	req := c.Request()
	ev := s.log.Warn()
	if code >= 500 {
		ev = s.log.Error()
	}
	ev.Err(err).Int("status", code).Str("method", req.Method).Str("path", req.URL.Path).Msg("request failed")
	if !c.Response().Committed {
		_ = c.JSON(code, map[string]string{"error": msg})
	}
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, store.ErrSelfShare), errors.Is(err, store.ErrAlreadyShared),
		errors.Is(err, store.ErrMeetingExists):
		return http.StatusConflict
	case errors.Is(err, retrieval.ErrUnknownStrategy),
		errors.Is(err, retrieval.ErrMissingThreshold),
		errors.Is(err, vectorstore.ErrUnknownCollection),
		errors.Is(err, vectorstore.ErrEmptyFilter):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func httpError(err error) error {
	return echo.NewHTTPError(statusFor(err), err.Error()).SetInternal(err)
}

// identify resolves X-User-ID into the calling user.
func (s *Server) identify(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw := c.Request().Header.Get(HeaderUserID)
		if raw == "" {
			return next(c)
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid "+HeaderUserID)
		}
		u, err := s.app.Store.User(c.Request().Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusUnauthorized, "unknown user")
		}
		if err != nil {
			return httpError(err)
		}
		c.Set(ctxUser, u)
		return next(c)
	}
}

func currentUser(c echo.Context) *model.User {
	u, _ := c.Get(ctxUser).(*model.User)
	return u
}

// accessible returns the caller's meeting ids, or nil for unscoped requests.
func (s *Server) accessible(c echo.Context) ([]string, error) {
	u := currentUser(c)
	if u == nil {
		return nil, nil
	}
	ids, err := s.app.Store.AccessibleMeetingIDs(c.Request().Context(), u.ID)
	if err != nil {
		return nil, httpError(err)
	}
	return ids, nil
}

func (s *Server) canRead(c echo.Context, meetingID string) error {
	ids, err := s.accessible(c)
	if err != nil || ids == nil {
		return err
	}
	for _, id := range ids {
		if id == meetingID {
			return nil
		}
	}
	return echo.NewHTTPError(http.StatusNotFound, "meeting not found")
}

func (s *Server) canEdit(c echo.Context, meetingID string) error {
	u := currentUser(c)
	if u == nil {
		return nil
	}
	ok, err := s.app.Store.CanEdit(c.Request().Context(), meetingID, u.ID)
	if err != nil {
		return httpError(err)
	}
	if !ok {
		return echo.NewHTTPError(http.StatusForbidden, "only the owner or an admin can change this meeting")
	}
	return nil
}
