// Package api is the scan engine's HTTP surface: enqueue, status,
// health, and the WebSocket progress relay.
package api

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vulx-io/vulx/internal/config"
	"github.com/vulx-io/vulx/internal/logger"
	"github.com/vulx-io/vulx/internal/models"
)

// ScanQueue is the enqueue side of the job queue.
type ScanQueue interface {
	Enqueue(ctx context.Context, job models.ScanJob) error
	Ping(ctx context.Context) error
}

// ScanReader loads scan rows for the status endpoint.
type ScanReader interface {
	GetByID(scanID string) (*models.Scan, error)
}

// FindingReader loads a scan's findings for the status endpoint.
type FindingReader interface {
	ListByScan(scanID string) ([]models.FindingRecord, error)
}

type Server struct {
	config   *config.Config
	router   *gin.Engine
	queue    ScanQueue
	scans    ScanReader
	findings FindingReader
	db       *sql.DB
	hub      *Hub
	log      *logger.Logger
}

func NewServer(cfg *config.Config, q ScanQueue, scans ScanReader, findings FindingReader, db *sql.DB, hub *Hub) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config:   cfg,
		router:   gin.New(),
		queue:    q,
		scans:    scans,
		findings: findings,
		db:       db,
		hub:      hub,
		log:      logger.NewLogger("API"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(gin.Logger())

	s.router.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			if origin == "" {
				return true
			}
			if strings.Contains(origin, "localhost") {
				return true
			}
			return strings.Contains(origin, ".vulx.io")
		},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "Accept", "Origin"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	s.router.GET("/", s.handleRoot)
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	v1.POST("/scans", s.handleEnqueueScan)
	v1.GET("/scans/:id", s.handleGetScan)

	s.router.GET("/ws/scans/:id", s.handleScanSocket)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.log.Info("Starting HTTP server on port", s.config.Port)
	return http.ListenAndServe(":"+s.config.Port, s.router)
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "VULX Scan Engine Ready"})
}

func (s *Server) handleHealth(c *gin.Context) {
	checks := gin.H{}
	healthy := true

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			checks["database"] = "down"
			healthy = false
		} else {
			checks["database"] = "up"
		}
	}
	if s.queue != nil {
		if err := s.queue.Ping(ctx); err != nil {
			checks["redis"] = "down"
			healthy = false
		} else {
			checks["redis"] = "up"
		}
	}

	status := http.StatusOK
	body := gin.H{"status": "ok", "service": "vulx-scan-engine", "checks": checks}
	if !healthy {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
	}
	c.JSON(status, body)
}

type enqueueRequest struct {
	ScanID      string `json:"scanId"`
	SpecContent string `json:"specContent" binding:"required"`
}

func (s *Server) handleEnqueueScan(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "specContent is required"})
		return
	}
	if req.ScanID == "" {
		req.ScanID = uuid.New().String()
	}

	job := models.ScanJob{ScanID: req.ScanID, SpecContent: req.SpecContent}
	if err := s.queue.Enqueue(c.Request.Context(), job); err != nil {
		s.log.Error("Failed to enqueue scan", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue scan"})
		return
	}

	s.log.Info("Scan enqueued", req.ScanID)
	c.JSON(http.StatusAccepted, gin.H{
		"scanId": req.ScanID,
		"status": models.ScanStatusQueued,
	})
}

func (s *Server) handleGetScan(c *gin.Context) {
	scanID := c.Param("id")

	scan, err := s.scans.GetByID(scanID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "scan not found"})
		return
	}

	findings, err := s.findings.ListByScan(scanID)
	if err != nil {
		s.log.Error("Failed to load findings", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load findings"})
		return
	}
	if findings == nil {
		findings = []models.FindingRecord{}
	}

	c.JSON(http.StatusOK, gin.H{
		"scan":     scan,
		"findings": findings,
	})
}

func (s *Server) handleScanSocket(c *gin.Context) {
	s.hub.Serve(c.Writer, c.Request, c.Param("id"))
}
