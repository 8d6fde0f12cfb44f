package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rcliao/meeting-rag/internal/chat"
	"github.com/rcliao/meeting-rag/internal/meeting"
	"github.com/rcliao/meeting-rag/internal/model"
	"github.com/rcliao/meeting-rag/internal/retrieval"
	"github.com/rcliao/meeting-rag/internal/store"
	"github.com/rcliao/meeting-rag/internal/vectorstore"
)

type signInRequest struct {
	GoogleID string `json:"google_id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
}

func (s *Server) signIn(c echo.Context) error {
	var req signInRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.GoogleID == "" || req.Email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "google_id and email are required")
	}
	u, err := s.app.Store.GetOrCreateUser(c.Request().Context(), req.GoogleID, req.Email, req.Name, s.app.Config.Server.AdminEmails)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (s *Server) listMeetings(c echo.Context) error {
	ids, err := s.accessible(c)
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	meetings, err := s.app.Store.ListMeetings(c.Request().Context(), store.ListParams{
		Query: c.QueryParam("q"),
		IDs:   ids,
		Limit: limit,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, meetings)
}

func (s *Server) ingest(c echo.Context) error {
	var p meeting.IngestParams
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(p.Segments) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "segments are required")
	}
	if p.MeetingID != "" {
		_, err := s.app.Store.Meeting(c.Request().Context(), p.MeetingID)
		if err == nil {
			return httpError(fmt.Errorf("%w: %s (delete it first)", store.ErrMeetingExists, p.MeetingID))
		}
		if !errors.Is(err, store.ErrNotFound) {
			return httpError(err)
		}
	}
	p.OwnerID = nil
	if u := currentUser(c); u != nil {
		p.OwnerID = &u.ID
	}
	res := s.app.Meetings.IngestTranscript(c.Request().Context(), p)
	return c.JSON(resultStatus(res.Success, http.StatusCreated), res)
}

type summaryRequest struct {
	Summary string `json:"summary"`
}

func (s *Server) ingestSummary(c echo.Context) error {
	id := c.Param("id")
	if err := s.canEdit(c, id); err != nil {
		return err
	}
	var req summaryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if _, err := s.app.Store.Meeting(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	res := s.app.Meetings.IngestSummary(c.Request().Context(), id, req.Summary)
	return c.JSON(resultStatus(res.Success, http.StatusOK), res)
}

type mindmapRequest struct {
	Content string `json:"content"`
}

func (s *Server) saveMindmap(c echo.Context) error {
	id := c.Param("id")
	if err := s.canEdit(c, id); err != nil {
		return err
	}
	var req mindmapRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Content) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content is required")
	}
	if err := s.app.Meetings.SaveMindmap(c.Request().Context(), id, req.Content); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "meeting_id": id})
}

func (s *Server) transcript(c echo.Context) error {
	return s.reassembled(c, "transcript", s.app.Meetings.Transcript)
}

func (s *Server) summary(c echo.Context) error {
	return s.reassembled(c, "summary", s.app.Meetings.Summary)
}

func (s *Server) reassembled(c echo.Context, key string, get func(ctx context.Context, id string) (string, error)) error {
	id := c.Param("id")
	if err := s.canRead(c, id); err != nil {
		return err
	}
	text, err := get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"meeting_id": id, key: text})
}

type titleRequest struct {
	Title string `json:"title"`
}

func (s *Server) rename(c echo.Context) error {
	id := c.Param("id")
	if err := s.canEdit(c, id); err != nil {
		return err
	}
	var req titleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Title) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title is required")
	}
	res := s.app.Meetings.Rename(c.Request().Context(), id, req.Title)
	return c.JSON(updateStatus(res), res)
}

type dateRequest struct {
	Date string `json:"date"`
}

// normalizeDate stores RFC 3339 timestamps in the meeting date layout and
// passes any other string through.
func normalizeDate(s string) string {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return model.FormatDate(t)
	}
	return s
}

func (s *Server) reschedule(c echo.Context) error {
	id := c.Param("id")
	if err := s.canEdit(c, id); err != nil {
		return err
	}
	var req dateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Date) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "date is required")
	}
	res := s.app.Meetings.Reschedule(c.Request().Context(), id, normalizeDate(req.Date))
	return c.JSON(updateStatus(res), res)
}

func (s *Server) deleteMeeting(c echo.Context) error {
	id := c.Param("id")
	if err := s.canEdit(c, id); err != nil {
		return err
	}
	res := s.app.Meetings.Delete(c.Request().Context(), id)
	return c.JSON(resultStatus(res.Success, http.StatusOK), res)
}

type shareRequest struct {
	Email string `json:"email"`
}

func (s *Server) share(c echo.Context) error {
	u := currentUser(c)
	if u == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, HeaderUserID+" is required")
	}
	var req shareRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sh, err := s.app.Store.Share(c.Request().Context(), c.Param("id"), u.ID, req.Email)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, sh)
}

func (s *Server) unshare(c echo.Context) error {
	u := currentUser(c)
	if u == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, HeaderUserID+" is required")
	}
	target, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	if err := s.app.Store.Unshare(c.Request().Context(), c.Param("id"), u.ID, target); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type searchResponse struct {
	Strategy retrieval.Strategy       `json:"strategy"`
	Upgraded bool                     `json:"upgraded,omitempty"`
	Fallback retrieval.FallbackReason `json:"fallback,omitempty"`
	Matches  []vectorstore.Match      `json:"matches"`
}

// search runs one retrieval against one collection.
func (s *Server) search(c echo.Context) error {
	q := c.QueryParam("q")
	if strings.TrimSpace(q) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	collection := c.QueryParam("collection")
	if collection == "" {
		collection = model.CollectionChunks
	}
	req := retrieval.Request{
		Collection: collection,
		Query:      q,
		Strategy:   retrieval.Strategy(c.QueryParam("strategy")),
	}
	if v := c.QueryParam("k"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid k")
		}
		req.K = k
	}
	if v := c.QueryParam("score_threshold"); v != "" {
		th, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid score_threshold")
		}
		req.ScoreThreshold = &th
	}

	ids, err := s.accessible(c)
	if err != nil {
		return err
	}
	if ids != nil {
		if len(ids) == 0 {
			return c.JSON(http.StatusOK, searchResponse{Strategy: req.Strategy, Matches: []vectorstore.Match{}})
		}
		req.Filter = req.Filter.And(vectorstore.In(model.FieldMeetingID, ids))
	}
	if id := c.QueryParam("meeting_id"); id != "" {
		req.Filter = req.Filter.And(vectorstore.Eq(model.FieldMeetingID, id))
	}

	res, err := s.app.Engine.Retrieve(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	matches := res.Matches
	if matches == nil {
		matches = []vectorstore.Match{}
	}
	return c.JSON(http.StatusOK, searchResponse{
		Strategy: res.Strategy,
		Upgraded: res.Upgraded,
		Fallback: res.Fallback,
		Matches:  matches,
	})
}

type chatRequest struct {
	Query     string `json:"query"`
	MeetingID string `json:"meeting_id"`
}

func (s *Server) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ids, err := s.accessible(c)
	if err != nil {
		return err
	}
	resp := s.app.Chat.Ask(c.Request().Context(), chat.Query{
		Text:          req.Query,
		MeetingID:     req.MeetingID,
		AccessibleIDs: ids,
	})
	return c.JSON(http.StatusOK, resp)
}

// resultStatus reports failed result objects as 500 with the body intact.
func updateStatus(res meeting.UpdateResult) int {
	if res.NotFound {
		return http.StatusNotFound
	}
	return resultStatus(res.Success, http.StatusOK)
}

func resultStatus(ok bool, success int) int {
	if ok {
		return success
	}
	return http.StatusInternalServerError
}
