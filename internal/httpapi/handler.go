package httpapi

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"rollcall/internal/auth"
	"rollcall/internal/code"
	"rollcall/internal/config"
	"rollcall/internal/fingerprint"
	"rollcall/internal/ledger"
	"rollcall/internal/live"
	"rollcall/internal/metrics"
	"rollcall/internal/submission"
)

// Handler exposes the attendance protocol over HTTP+JSON. All timestamps on
// the wire are epoch millis.
type Handler struct {
	cfg       config.App
	codes     *code.Manager
	validator *submission.Validator
	records   *ledger.Repository
	hub       *live.Hub
}

// New creates a handler. records may be nil when no database is attached;
// the records endpoint then reports service unavailable.
func New(cfg config.App, codes *code.Manager, validator *submission.Validator, records *ledger.Repository, hub *live.Hub) *Handler {
	return &Handler{cfg: cfg, codes: codes, validator: validator, records: records, hub: hub}
}

// Register mounts all protocol routes on the router group.
func (h *Handler) Register(r *gin.Engine) {
	r.POST("/v1/register", h.register)

	authed := r.Group("/v1", auth.Bearer(h.cfg.JWTSigningKey, h.cfg.JWTIssuer))

	teacher := authed.Group("", auth.RequireRole(auth.RoleTeacher))
	teacher.POST("/codes", h.generate)
	teacher.POST("/codes/close", h.closeCode)
	teacher.GET("/codes/:id/live", h.liveFeed)
	teacher.GET("/records", h.listRecords)

	authed.POST("/codes/latest", h.latest)
	authed.POST("/codes/submit", auth.RequireRole(auth.RoleStudent), h.submit)
}

func (h *Handler) register(c *gin.Context) {
	var req struct {
		Subject string `json:"subject" binding:"required"`
		Role    string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, err := auth.Issue(req.Subject, req.Role, h.cfg.JWTIssuer, h.cfg.JWTSigningKey, h.cfg.TokenTTL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"token":      token.Value,
		"expires_at": token.ExpiresAt.UnixMilli(),
	})
}

func (h *Handler) generate(c *gin.Context) {
	var req struct {
		Department      string                    `json:"department" binding:"required"`
		Subject         string                    `json:"subject" binding:"required"`
		ClassName       string                    `json:"class_name" binding:"required"`
		AcademicYear    string                    `json:"academic_year" binding:"required"`
		WifiFingerprint []fingerprint.Observation `json:"wifi_fingerprint"`
		BluetoothUUID   string                    `json:"bluetooth_uuid" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims := auth.FromContext(c)
	cohort := code.Cohort{
		Department:   req.Department,
		Subject:      req.Subject,
		ClassName:    req.ClassName,
		AcademicYear: req.AcademicYear,
	}
	ac, err := h.codes.Generate(claims.Subject, cohort, req.WifiFingerprint, req.BluetoothUUID)
	if err != nil {
		status := http.StatusBadRequest
		if !errors.Is(err, code.ErrValidation) && !errors.Is(err, code.ErrEmptyFingerprint) {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	metrics.CodesGenerated.WithLabelValues(ac.Department).Inc()
	metrics.ActiveCodes.Set(float64(h.codes.ActiveCount()))

	c.JSON(http.StatusCreated, gin.H{
		"id":            ac.ID,
		"code":          ac.Code,
		"department":    ac.Department,
		"subject":       ac.Subject,
		"class_name":    ac.ClassName,
		"academic_year": ac.AcademicYear,
		"generated_at":  ac.GeneratedAt.UnixMilli(),
		"expires_at":    ac.ExpiresAt.UnixMilli(),
	})
}

func (h *Handler) latest(c *gin.Context) {
	var req struct {
		Department   string `json:"department" binding:"required"`
		AcademicYear string `json:"academic_year"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ac, ok := h.codes.GetActive(req.Department, req.AcademicYear)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"active": false, "code": ""})
		return
	}
	// bluetooth_uuid is the token the student device should scan for; hearing
	// it on air is one of the two accepted proximity proofs.
	c.JSON(http.StatusOK, gin.H{
		"active":         true,
		"code":           ac.Code,
		"subject":        ac.Subject,
		"class_name":     ac.ClassName,
		"expires_at":     ac.ExpiresAt.UnixMilli(),
		"bluetooth_uuid": ac.BluetoothUUID,
	})
}

func (h *Handler) submit(c *gin.Context) {
	var req struct {
		Department      string                    `json:"department" binding:"required"`
		Code            string                    `json:"code" binding:"required"`
		WifiFingerprint []fingerprint.Observation `json:"wifi_fingerprint"`
		BluetoothUUID   string                    `json:"bluetooth_uuid"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims := auth.FromContext(c)
	dec, err := h.validator.Submit(c.Request.Context(), claims.Subject, req.Department, req.Code, submission.Evidence{
		WifiFingerprint: req.WifiFingerprint,
		BluetoothUUID:   req.BluetoothUUID,
	})
	if err != nil {
		log.Printf("submit failed for %s: %v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "submit failed"})
		return
	}

	metrics.Submissions.WithLabelValues(string(dec.Reason)).Inc()
	if dec.Accepted {
		h.hub.Broadcast(live.Event{
			Event:       "STUDENT_PRESENT",
			CodeID:      dec.Code.ID,
			StudentID:   claims.Subject,
			SubmittedAt: time.Now().UnixMilli(),
			Present:     h.codes.SubmissionCount(dec.Code.ID),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"success": dec.Accepted,
		"reason":  string(dec.Reason),
		"message": dec.Message,
	})
}

func (h *Handler) closeCode(c *gin.Context) {
	var req struct {
		Department string `json:"department" binding:"required"`
		Subject    string `json:"subject" binding:"required"`
		ClassName  string `json:"class_name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims := auth.FromContext(c)
	if err := h.codes.Close(claims.Subject, req.Department, req.Subject, req.ClassName); err != nil {
		status := http.StatusNotFound
		if errors.Is(err, code.ErrValidation) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"success": false, "error": err.Error()})
		return
	}
	metrics.ActiveCodes.Set(float64(h.codes.ActiveCount()))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) liveFeed(c *gin.Context) {
	codeID := c.Param("id")
	if codeID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code id required"})
		return
	}
	if err := h.hub.Subscribe(c.Writer, c.Request, codeID); err != nil {
		log.Printf("ws upgrade failed: %v", err)
	}
}

func (h *Handler) listRecords(c *gin.Context) {
	if h.records == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger not configured"})
		return
	}
	limit, offset := 50, 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	records, err := h.records.List(c.Request.Context(), c.Query("code_id"), c.Query("student_id"), c.Query("department"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}
