package app

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"bidline/api/internal/metrics"
	"bidline/api/internal/proposal"
	"bidline/api/internal/search"
	"bidline/api/internal/util"
)

const (
	streamBuffer     = 8
	streamPingPeriod = 30 * time.Second
	streamWriteWait  = 10 * time.Second
	readyTimeout     = 5 * time.Second
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	log        zerolog.Logger
	upgrader   websocket.Upgrader
}

func NewHTTPServer(service *Service, corsOrigin string, log zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		service:    service,
		corsOrigin: strings.TrimSpace(corsOrigin),
		log:        log.With().Str("component", "http").Logger(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.allowOrigin,
	}
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery(), s.withRequestID(), s.withCORS())

	router.GET("/api/health", s.handleHealth)
	router.HEAD("/api/health", s.handleHealth)
	router.GET("/api/ready", s.handleReady)
	router.HEAD("/api/ready", s.handleReady)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/api/search", s.handleSearch)

	proposals := router.Group("/api/proposals")
	proposals.POST("", s.handleCreate)
	proposals.GET("/:id", s.handleOpen)
	proposals.PUT("/:id", s.handleReplace)
	proposals.PATCH("/:id/solicitation", s.handleSolicitation)
	proposals.POST("/:id/roles", s.handleAddRole)
	proposals.POST("/:id/subcontractors", s.handleAddSubcontractor)
	proposals.POST("/:id/wbs", s.handleAddWBS)
	proposals.PUT("/:id/rates", s.handleRates)
	proposals.POST("/:id/extractions", s.handleExtraction)
	proposals.GET("/:id/pricing", s.handlePricing)
	proposals.POST("/:id/flush", s.handleFlush)
	proposals.GET("/:id/history", s.handleHistory)
	proposals.GET("/:id/history/diff", s.handleHistoryDiff)
	proposals.GET("/:id/history/:hash", s.handleRevision)
	proposals.GET("/:id/archive", s.handleArchive)
	proposals.GET("/:id/stream", s.handleStream)

	router.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	return router
}

func (s *HTTPServer) handleHealth(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"ok": true})
}

func (s *HTTPServer) handleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	ready, checks := s.service.Ready(ctx)
	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(c, code, gin.H{
		"ok":     ready,
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleCreate(c *gin.Context) {
	view, err := s.service.Create(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, view)
}

func (s *HTTPServer) handleOpen(c *gin.Context) {
	view, err := s.service.Open(c.Request.Context(), c.Param("id"))
	s.reply(c, view, err)
}

func (s *HTTPServer) handleReplace(c *gin.Context) {
	var body proposal.Proposal
	if !decodeBody(c, &body) {
		return
	}
	view, err := s.service.Replace(c.Request.Context(), c.Param("id"), body)
	s.reply(c, view, err)
}

func (s *HTTPServer) handleSolicitation(c *gin.Context) {
	var body SolicitationPatch
	if !decodeBody(c, &body) {
		return
	}
	view, err := s.service.UpdateSolicitation(c.Request.Context(), c.Param("id"), body)
	s.reply(c, view, err)
}

func (s *HTTPServer) handleAddRole(c *gin.Context) {
	var body RoleInput
	if !decodeBody(c, &body) {
		return
	}
	view, err := s.service.AddRole(c.Request.Context(), c.Param("id"), body)
	s.reply(c, view, err)
}

func (s *HTTPServer) handleAddSubcontractor(c *gin.Context) {
	var body SubcontractorInput
	if !decodeBody(c, &body) {
		return
	}
	view, err := s.service.AddSubcontractor(c.Request.Context(), c.Param("id"), body)
	s.reply(c, view, err)
}

func (s *HTTPServer) handleAddWBS(c *gin.Context) {
	var body WBSInput
	if !decodeBody(c, &body) {
		return
	}
	view, err := s.service.AddWBSElement(c.Request.Context(), c.Param("id"), body)
	s.reply(c, view, err)
}

func (s *HTTPServer) handleRates(c *gin.Context) {
	var body proposal.Rates
	if !decodeBody(c, &body) {
		return
	}
	view, err := s.service.UpdateRates(c.Request.Context(), c.Param("id"), body)
	s.reply(c, view, err)
}

func (s *HTTPServer) handleExtraction(c *gin.Context) {
	var body ExtractionInput
	if !decodeBody(c, &body) {
		return
	}
	view, err := s.service.ImportExtraction(c.Request.Context(), c.Param("id"), body)
	s.reply(c, view, err)
}

func (s *HTTPServer) handlePricing(c *gin.Context) {
	report, err := s.service.Pricing(c.Request.Context(), c.Param("id"))
	s.reply(c, report, err)
}

func (s *HTTPServer) handleFlush(c *gin.Context) {
	view, err := s.service.Flush(c.Request.Context(), c.Param("id"))
	s.reply(c, view, err)
}

func (s *HTTPServer) handleHistory(c *gin.Context) {
	revisions, err := s.service.History(c.Param("id"), queryInt(c, "limit", 0))
	if err != nil {
		s.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"proposalId": c.Param("id"), "revisions": revisions})
}

func (s *HTTPServer) handleHistoryDiff(c *gin.Context) {
	changes, err := s.service.Diff(c.Param("id"), c.Query("from"), c.Query("to"))
	if err != nil {
		s.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"from": c.Query("from"), "to": c.Query("to"), "changes": changes})
}

func (s *HTTPServer) handleRevision(c *gin.Context) {
	p, err := s.service.Revision(c.Param("id"), c.Param("hash"))
	if err != nil {
		s.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"hash": c.Param("hash"), "proposal": p})
}

func (s *HTTPServer) handleArchive(c *gin.Context) {
	entry, err := s.service.Archived(c.Request.Context(), c.Param("id"))
	s.reply(c, entry, err)
}

func (s *HTTPServer) handleSearch(c *gin.Context) {
	resp := s.service.Search(c.Request.Context(), search.Query{
		Text:               strings.TrimSpace(c.Query("q")),
		FilterClient:       strings.TrimSpace(c.Query("client")),
		FilterContractType: strings.TrimSpace(c.Query("contractType")),
		Limit:              queryInt(c, "limit", 20),
		Offset:             queryInt(c, "offset", 0),
	})
	writeJSON(c, http.StatusOK, resp)
}

// handleStream upgrades to a websocket and pushes a ProposalView after every
// state change. Slow readers only ever see the latest state.
func (s *HTTPServer) handleStream(c *gin.Context) {
	id := c.Param("id")
	if err := s.service.EnsureLoaded(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Debug().Err(err).Str("proposal_id", id).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	updates := make(chan ProposalView, streamBuffer)
	unsubscribe, err := s.service.Subscribe(c.Request.Context(), id, func(view ProposalView) {
		for {
			select {
			case updates <- view:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()),
			time.Now().Add(streamWriteWait))
		return
	}
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case view := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(gin.H{"type": "state", "data": view}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}

func (s *HTTPServer) allowOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || s.corsOrigin == "" || s.corsOrigin == "*" || origin == s.corsOrigin
}

func (s *HTTPServer) withCORS() gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:  []string{"GET", "HEAD", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	if s.corsOrigin == "" || s.corsOrigin == "*" {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = strings.Split(s.corsOrigin, ",")
	}
	return cors.New(config)
}

func (s *HTTPServer) withRequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(c.Request.Context(), requestIDKey{}, requestID)
		c.Request = c.Request.WithContext(ctx)

		started := time.Now()
		c.Header("X-Request-ID", requestID)
		c.Header("Cache-Control", "no-store")

		c.Next()

		s.log.Info().
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Int64("duration_ms", time.Since(started).Milliseconds()).
			Msg("request")
	}
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func randomRequestID() string {
	return util.NewID("")[:16]
}

func (s *HTTPServer) reply(c *gin.Context, payload any, err error) {
	if err != nil {
		s.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, payload)
}

func (s *HTTPServer) fail(c *gin.Context, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).
			Str("request_id", requestIDFrom(c.Request.Context())).
			Str("path", c.Request.URL.Path).
			Msg("request failed")
	}
	writeError(c, status, code, message, details)
}

func writeJSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

func writeError(c *gin.Context, status int, code, message string, details any) {
	response := gin.H{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	c.AbortWithStatusJSON(status, response)
}

// decodeBody binds the JSON body and writes a 400 on failure.
func decodeBody(c *gin.Context, target any) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
		return false
	}
	return true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
