// Package server exposes the HTTP surface: event ingestion, ledger queries,
// manual drains and classifier rule updates.
package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"autoledger/internal/classify"
	"autoledger/internal/domain"
	"autoledger/internal/pipeline"
	"autoledger/internal/storage/sqlite"
	"autoledger/internal/syncer"
)

// Validator checks the configured spreadsheet target.
type Validator interface {
	Configured() bool
	ValidateTarget(ctx context.Context, spreadsheetID string) (string, error)
}

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	pipeline   *pipeline.Pipeline
	store      *sqlite.Store
	engine     *syncer.Engine
	classifier *classify.Classifier
	validator  Validator
	sheetID    string
	logger     *log.Logger
}

func New(p *pipeline.Pipeline, store *sqlite.Store, engine *syncer.Engine,
	classifier *classify.Classifier, validator Validator, sheetID string, logger *log.Logger) *Server {
	return &Server{
		pipeline:   p,
		store:      store,
		engine:     engine,
		classifier: classifier,
		validator:  validator,
		sheetID:    sheetID,
		logger:     logger,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	v1.POST("/events", s.handleEvent)
	v1.GET("/transactions", s.handleRecent)
	v1.GET("/transactions/pending", s.handlePending)
	v1.POST("/sync/drain", s.handleDrain)
	v1.PUT("/rules", s.handleRules)
	v1.GET("/sheet", s.handleSheet)

	return r
}

type eventRequest struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	SourceID string `json:"source_id"`
}

func (s *Server) handleEvent(c *gin.Context) {
	var req eventRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if req.SourceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source_id is required"})
		return
	}

	ev := pipeline.Event{
		ID:       uuid.NewString(),
		Title:    req.Title,
		Body:     req.Body,
		SourceID: req.SourceID,
	}
	outcome, txn, err := s.pipeline.Handle(c.Request.Context(), ev)
	if err != nil {
		// Storage failure: the transaction was lost, surface it loudly.
		s.logger.Error("event processing failed", "event", ev.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"event_id": ev.ID, "error": err.Error()})
		return
	}

	resp := gin.H{"event_id": ev.ID, "outcome": outcome}
	if txn.ID != 0 {
		resp["transaction"] = txn
	}
	c.JSON(http.StatusAccepted, resp)
}

func (s *Server) handleRecent(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	txns, err := s.store.ListRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if txns == nil {
		txns = []domain.Transaction{}
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}

func (s *Server) handlePending(c *gin.Context) {
	txns, err := s.store.ListPending(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if txns == nil {
		txns = []domain.Transaction{}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(txns), "transactions": txns})
}

func (s *Server) handleDrain(c *gin.Context) {
	result, err := s.engine.DrainPending(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "result": result})
		return
	}
	c.JSON(http.StatusOK, result)
}

type rulesRequest struct {
	AllowedSources  []string              `json:"allowed_sources"`
	ExcludedSources []string              `json:"excluded_sources"`
	CategoryRules   []domain.CategoryRule `json:"category_rules"`
}

// handleRules replaces the classifier snapshot wholesale; there is no
// incremental diffing, the request is the new configuration.
func (s *Server) handleRules(c *gin.Context) {
	var req rulesRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	for _, rule := range req.CategoryRules {
		if rule.Keyword == "" || rule.Category == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "category rules need keyword and category"})
			return
		}
	}

	s.classifier.Update(domain.NewRuleset(req.AllowedSources, req.ExcludedSources, req.CategoryRules))
	c.JSON(http.StatusOK, gin.H{
		"allowed":  len(req.AllowedSources),
		"excluded": len(req.ExcludedSources),
		"rules":    len(req.CategoryRules),
	})
}

func (s *Server) handleSheet(c *gin.Context) {
	if s.validator == nil || !s.validator.Configured() {
		c.JSON(http.StatusOK, gin.H{"configured": false})
		return
	}
	title, err := s.validator.ValidateTarget(c.Request.Context(), s.sheetID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"configured": true, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"configured": true, "title": title})
}
