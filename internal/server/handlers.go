package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ifuryst/quill/internal/models"
	"github.com/ifuryst/quill/internal/publication"
	"github.com/ifuryst/quill/internal/service"
	"github.com/ifuryst/quill/internal/store"
	"github.com/ifuryst/quill/pkg/util"
)

// The gateway in front of the service resolves memberships and forwards the
// caller identity in these headers.
const (
	HeaderActor  = "X-Quill-Actor"
	HeaderGroups = "X-Quill-Groups"
)

func actorFrom(c *gin.Context) publication.Actor {
	return publication.Actor{
		ID:     c.GetHeader(HeaderActor),
		Groups: util.ParseList(c.GetHeader(HeaderGroups)),
	}
}

// writeError maps error kinds to HTTP statuses.
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, publication.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, publication.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, publication.ErrConflict), errors.Is(err, publication.ErrInvalidStateTransition):
		status = http.StatusConflict
	case errors.Is(err, publication.ErrInvalidInput), errors.Is(err, publication.ErrInvalidPage), errors.Is(err, publication.ErrDateParse):
		status = http.StatusBadRequest
	case errors.Is(err, publication.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		s.Logger.Error("Request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

type loginRequest struct {
	Token string `json:"token" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	if !s.Auth.Enabled() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Authentication is not configured"})
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Token is required"})
		return
	}

	session, ok := s.Auth.Login(req.Token)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}

	maxAge := int(s.Config.Auth.SessionTTL / time.Second)
	c.SetCookie(service.SessionCookie, session, maxAge, "/", "", s.Config.Server.CertFile != "", true)
	c.JSON(http.StatusOK, gin.H{"token": session})
}

func (s *Server) handleLogout(c *gin.Context) {
	if token, err := c.Cookie(service.SessionCookie); err == nil {
		s.Auth.RevokeSession(token)
	}
	c.SetCookie(service.SessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (s *Server) handleSchedulerStatus(c *gin.Context) {
	status := gin.H{
		"enabled":     s.Config.Scheduler.IsEnabled(),
		"cron":        s.Config.Scheduler.Cron,
		"running":     s.Scheduler.Running(),
		"last_report": s.Scheduler.LastReport(),
	}
	if next := s.Scheduler.NextRun(); !next.IsZero() {
		status["next_run"] = next
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleSchedulerTick(c *gin.Context) {
	report := s.Scheduler.Tick(c.Request.Context(), time.Now())
	if report.Skipped {
		c.JSON(http.StatusConflict, report)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleDashboard(c *gin.Context) {
	if c.Query("refresh") == "true" {
		if err := s.Monitoring.UpdatePublicationSummary(c.Request.Context()); err != nil {
			s.writeError(c, err)
			return
		}
	}
	summary, err := s.Monitoring.GetPublicationSummary(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleGetErrors(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	logs, err := s.Monitoring.GetRecentErrors(c.Request.Context(), limit, c.Query("unresolved") == "true")
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"errors": logs})
}

func (s *Server) handleResolveError(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid error id"})
		return
	}
	if err := s.Monitoring.ResolveError(c.Request.Context(), uint(id)); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Error resolved"})
}

func (s *Server) handleListTargets(c *gin.Context) {
	targets, err := s.Targets.List(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"targets": targets})
}

func (s *Server) handleAllowedTargets(c *gin.Context) {
	targets, err := s.Targets.Allowed(c.Request.Context(), actorFrom(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"targets": targets})
}

func (s *Server) handleCreateTarget(c *gin.Context) {
	var input service.TargetInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	target, err := s.Targets.Create(c.Request.Context(), input, actorFrom(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, target)
}

func (s *Server) handleUpdateTarget(c *gin.Context) {
	var input service.TargetInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	target, err := s.Targets.Update(c.Request.Context(), c.Param("name"), input, actorFrom(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, target)
}

func (s *Server) handleDeleteTarget(c *gin.Context) {
	if err := s.Targets.Delete(c.Request.Context(), c.Param("name"), actorFrom(c)); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleTargetArticles(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	links, err := s.Targets.Articles(c.Request.Context(), c.Param("name"), store.Window(offset, limit))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"articles": links})
}

type articleRequest struct {
	ID              string   `json:"id"`
	Lang            string   `json:"lang"`
	SpaceID         string   `json:"space_id"`
	Title           string   `json:"title"`
	Summary         string   `json:"summary"`
	Body            string   `json:"body"`
	Audience        string   `json:"audience"`
	Targets         []string `json:"targets"`
	IllustrationURL string   `json:"illustration_url"`
}

func (r articleRequest) input() service.DraftInput {
	return service.DraftInput{
		ID:              r.ID,
		Lang:            r.Lang,
		SpaceID:         r.SpaceID,
		Title:           r.Title,
		Summary:         r.Summary,
		Body:            r.Body,
		Audience:        r.Audience,
		Targets:         r.Targets,
		IllustrationURL: r.IllustrationURL,
	}
}

type scheduleRequest struct {
	Date     string `json:"date" binding:"required"`
	TimeZone string `json:"time_zone"`
}

// articleRef reads the article id from the path and the variant from ?lang=.
func articleRef(c *gin.Context) publication.ArticleRef {
	return publication.ArticleRef{ID: c.Param("id"), Lang: c.Query("lang")}
}

func (s *Server) handleCreateArticle(c *gin.Context) {
	var req articleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	article, err := s.Publication.CreateDraft(c.Request.Context(), req.input(), actorFrom(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, article)
}

func (s *Server) handleGetArticle(c *gin.Context) {
	article, err := s.Publication.GetArticle(c.Request.Context(), articleRef(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, article)
}

func (s *Server) handleUpdateArticle(c *gin.Context) {
	var req articleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	article, err := s.Publication.UpdateDraft(c.Request.Context(), articleRef(c), req.input(), actorFrom(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, article)
}

func (s *Server) handleScheduleArticle(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date is required"})
		return
	}
	article, err := s.Publication.ScheduleNews(c.Request.Context(), articleRef(c), req.Date, req.TimeZone, actorFrom(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, article)
}

func (s *Server) handleScheduleUnpublish(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date is required"})
		return
	}
	article, err := s.Publication.ScheduleUnpublish(c.Request.Context(), articleRef(c), req.Date, req.TimeZone, actorFrom(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, article)
}

type articleAction func(ctx context.Context, ref publication.ArticleRef, actor publication.Actor) (*models.Article, error)

// handleArticleAction serves the transitions that take no body.
func (s *Server) handleArticleAction(action articleAction) gin.HandlerFunc {
	return func(c *gin.Context) {
		article, err := action(c.Request.Context(), articleRef(c), actorFrom(c))
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, article)
	}
}

func (s *Server) handleDeleteArticle(c *gin.Context) {
	if err := s.Publication.DeleteArticle(c.Request.Context(), articleRef(c), actorFrom(c)); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleArticleTargets(c *gin.Context) {
	links, err := s.Targets.ArticleTargets(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"targets": links})
}
