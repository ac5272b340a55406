// Package server exposes the operator HTTP surface: run status and CAPTCHA
// intake, run launch, workbook download, and log clearing.
package server

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deedharvest/api/schemas"
	"github.com/xkilldash9x/deedharvest/internal/export"
	"github.com/xkilldash9x/deedharvest/internal/scrape"
)

// StatusStore reads run progress and clears it.
type StatusStore interface {
	LatestRun(ctx context.Context) (*schemas.Run, error)
	Statuses(ctx context.Context, runID string) ([]schemas.StatusEvent, error)
	ClearStatuses(ctx context.Context) error
}

// CaptchaSlot accepts operator-entered CAPTCHA values for a run.
type CaptchaSlot interface {
	Put(ctx context.Context, runID, value string, ttl time.Duration) error
}

// Runner executes one scraping run to completion.
type Runner interface {
	Run(ctx context.Context, in scrape.Inputs) schemas.RunResult
}

// WorkbookWriter streams the record export.
type WorkbookWriter interface {
	WriteTo(ctx context.Context, w io.Writer) error
}

// Server is the operator front end. One scraping run may be active at a
// time; the run owns a single browser session and the CAPTCHA relay is keyed
// to the latest run.
type Server struct {
	log      *zap.Logger
	statuses StatusStore
	slot     CaptchaSlot
	runner   Runner
	exporter WorkbookWriter
	relayTTL time.Duration

	active atomic.Bool
}

// New assembles the server.
func New(logger *zap.Logger, statuses StatusStore, slot CaptchaSlot, runner Runner, exporter WorkbookWriter, relayTTL time.Duration) *Server {
	return &Server{
		log:      logger.Named("server"),
		statuses: statuses,
		slot:     slot,
		runner:   runner,
		exporter: exporter,
		relayTTL: relayTTL,
	}
}

// Router builds the gin handler.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/status", s.getStatus)
	r.POST("/captcha", s.postCaptcha)
	r.POST("/scrape", s.postScrape)
	r.GET("/export", s.getExport)
	r.POST("/clear-logs", s.postClearLogs)

	return r
}

// statusResponse is the /status payload. Statuses belong to the latest run
// only; images ride along base64-encoded.
type statusResponse struct {
	Run       *schemas.Run          `json:"run"`
	Statuses  []schemas.StatusEvent `json:"statuses"`
	Active    bool                  `json:"active"`
	Timestamp int64                 `json:"timestamp"`
}

func (s *Server) getStatus(c *gin.Context) {
	run, err := s.statuses.LatestRun(c.Request.Context())
	if err != nil {
		s.log.Error("Could not load latest run", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not load status"})
		return
	}

	resp := statusResponse{
		Run:       run,
		Statuses:  []schemas.StatusEvent{},
		Active:    s.active.Load(),
		Timestamp: time.Now().Unix(),
	}
	if run != nil {
		events, err := s.statuses.Statuses(c.Request.Context(), run.ID)
		if err != nil {
			s.log.Error("Could not load statuses", zap.String("run_id", run.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not load status"})
			return
		}
		resp.Statuses = events
	}
	c.JSON(http.StatusOK, resp)
}

type captchaRequest struct {
	CaptchaValue string `json:"captcha_value" form:"captcha_value"`
}

func (s *Server) postCaptcha(c *gin.Context) {
	var req captchaRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Malformed request"})
		return
	}
	value := strings.TrimSpace(req.CaptchaValue)
	if value == "" {
		s.log.Warn("Empty captcha submitted")
		c.JSON(http.StatusBadRequest, gin.H{"message": "Empty captcha submitted"})
		return
	}

	run, err := s.statuses.LatestRun(c.Request.Context())
	if err != nil {
		s.log.Error("Could not load latest run", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not accept captcha"})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "No run is awaiting a captcha"})
		return
	}

	if err := s.slot.Put(c.Request.Context(), run.ID, value, s.relayTTL); err != nil {
		s.log.Error("Could not store captcha value", zap.String("run_id", run.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not accept captcha"})
		return
	}
	s.log.Info("Received captcha value", zap.String("run_id", run.ID))
	c.JSON(http.StatusOK, gin.H{"message": "Captcha value received"})
}

type scrapeRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
	District string `json:"district" form:"district"`
	DeedType string `json:"deed_type" form:"deed_type"`
	DateFrom string `json:"date_from" form:"date_from"`
	DateTo   string `json:"date_to" form:"date_to"`
}

func (s *Server) postScrape(c *gin.Context) {
	var req scrapeRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Malformed request"})
		return
	}

	in := scrape.Inputs{
		Username: strings.TrimSpace(req.Username),
		Password: strings.TrimSpace(req.Password),
		District: strings.TrimSpace(req.District),
		DeedType: strings.TrimSpace(req.DeedType),
		DateFrom: strings.TrimSpace(req.DateFrom),
		DateTo:   strings.TrimSpace(req.DateTo),
	}
	if err := in.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid date format. Expected YYYY-MM-DD."})
		return
	}

	if !s.active.CompareAndSwap(false, true) {
		c.JSON(http.StatusConflict, gin.H{"message": "A scraping run is already in progress"})
		return
	}

	go func() {
		defer s.active.Store(false)
		// The run outlives the HTTP request that launched it.
		res := s.runner.Run(context.Background(), in)
		s.log.Info("Run finished",
			zap.String("outcome", string(res.Outcome)),
			zap.String("message", res.Message),
		)
	}()

	c.JSON(http.StatusAccepted, gin.H{"message": "Scraping started"})
}

func (s *Server) getExport(c *gin.Context) {
	c.Header("Content-Disposition", `attachment; filename="`+export.Filename+`"`)
	c.Header("Content-Type", export.ContentType)
	if err := s.exporter.WriteTo(c.Request.Context(), c.Writer); err != nil {
		s.log.Error("Export failed", zap.Error(err))
		// Headers are already out; all we can do is cut the stream.
		c.Abort()
	}
}

func (s *Server) postClearLogs(c *gin.Context) {
	if err := s.statuses.ClearStatuses(c.Request.Context()); err != nil {
		s.log.Error("Could not clear logs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not clear logs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logs cleared"})
}
