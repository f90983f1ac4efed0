package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"classtrack/internal/attendance"
	"classtrack/internal/auth"
	"classtrack/internal/config"
	"classtrack/internal/engine"
	"classtrack/internal/model"
	"classtrack/internal/session"
	"classtrack/internal/tally"
)

// Users is the user store the auth routes need.
type Users interface {
	CreateUser(ctx context.Context, email, password string, role model.Role) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// Handler carries the services behind the /v1 routes.
type Handler struct {
	cfg        config.App
	users      Users
	sessions   *session.Service
	attendance *attendance.Service
	tallies    *tally.Tracker
}

// New wires the handler.
func New(cfg config.App, users Users, sessions *session.Service, att *attendance.Service, tallies *tally.Tracker) *Handler {
	return &Handler{cfg: cfg, users: users, sessions: sessions, attendance: att, tallies: tallies}
}

// Register mounts all /v1 routes on the router.
func (h *Handler) Register(r *gin.Engine) {
	r.POST("/v1/auth/login", h.Login)

	authed := r.Group("/v1", auth.RequireAuth(h.cfg.JWTSigningKey, h.cfg.JWTIssuer))
	authed.GET("/sessions", h.ListSessions)
	authed.GET("/sessions/:id", h.GetSession)
	authed.POST("/scan", h.Scan)

	admin := authed.Group("", auth.RequireAdmin())
	admin.POST("/users", h.CreateUser)
	admin.POST("/sessions", h.CreateSession)
	admin.GET("/sessions/:id/qr", h.SessionQR)
	admin.GET("/sessions/:id/roster", h.ListRoster)
	admin.POST("/sessions/:id/roster", h.AddToRoster)
	admin.DELETE("/sessions/:id/roster/:student", h.RemoveFromRoster)
	admin.POST("/sessions/:id/roster/import", h.ImportRoster)
	admin.POST("/sessions/:id/manual", h.Manual)
	admin.POST("/sessions/:id/undo", h.Undo)
	admin.GET("/sessions/:id/attendance", h.Report)
	authed.GET("/sessions/:id/tally", h.Tally)
}

// ---------- Auth ----------

// Login verifies credentials and issues a token pair. The token subject is
// the principal's normalized identifier; role rides along as the capability.
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := h.users.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	tokens, err := auth.Issue(user.Email, user.Role, h.cfg.JWTIssuer, h.cfg.JWTSigningKey, h.cfg.AccessTTL, h.cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
		"role":          user.Role,
	})
}

// CreateUser provisions a principal. There is no self-registration; an admin
// creates accounts from the enrollment list, students by default.
func (h *Handler) CreateUser(c *gin.Context) {
	var req struct {
		Email    string     `json:"email" binding:"required"`
		Password string     `json:"password" binding:"required,min=8"`
		Role     model.Role `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Role == "" {
		req.Role = model.RoleStudent
	}
	if !req.Role.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}
	existing, err := h.users.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user lookup failed"})
		return
	}
	if existing != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
		return
	}
	user, err := h.users.CreateUser(c.Request.Context(), req.Email, req.Password, req.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create user failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// ---------- Sessions ----------

func (h *Handler) CreateSession(c *gin.Context) {
	var req struct {
		Title    string    `json:"title" binding:"required"`
		StartsAt time.Time `json:"starts_at" binding:"required"`
		EndsAt   time.Time `json:"ends_at" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := h.sessions.Create(c.Request.Context(), req.Title, req.StartsAt, req.EndsAt)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (h *Handler) ListSessions(c *gin.Context) {
	limit, offset := intQuery(c, "limit", 50), intQuery(c, "offset", 0)
	sessions, err := h.sessions.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *Handler) GetSession(c *gin.Context) {
	sess, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	windows, err := h.sessions.Windows(sess)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session": sess,
		"windows": gin.H{
			"checkin_opens_at":   windows.CheckinOpensAt,
			"checkin_closes_at":  windows.CheckinClosesAt,
			"checkout_opens_at":  windows.CheckoutOpensAt,
			"checkout_closes_at": windows.CheckoutClosesAt,
		},
	})
}

// SessionQR streams the PNG an instructor projects or prints.
func (h *Handler) SessionQR(c *gin.Context) {
	sess, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	png, err := h.sessions.QRImage(sess, model.Action(c.DefaultQuery("action", "checkin")))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// ---------- Roster ----------

func (h *Handler) AddToRoster(c *gin.Context) {
	var req struct {
		StudentID string `json:"student_id" binding:"required"`
		Name      string `json:"name"`
		Email     string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.sessions.AddToRoster(c.Request.Context(), c.Param("id"), req.StudentID, req.Name, req.Email); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "added"})
}

func (h *Handler) RemoveFromRoster(c *gin.Context) {
	if err := h.sessions.RemoveFromRoster(c.Request.Context(), c.Param("id"), c.Param("student")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

func (h *Handler) ListRoster(c *gin.Context) {
	entries, err := h.sessions.Roster(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roster": entries})
}

// ImportRoster accepts a multipart CSV of license_number,name,email rows.
func (h *Handler) ImportRoster(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
		return
	}
	defer file.Close()
	imported, err := h.sessions.ImportRosterCSV(c.Request.Context(), c.Param("id"), file)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": imported})
}

// ---------- Attendance ----------

// Scan receives the decoded QR string from a student's camera. The student
// identity comes from the token, never from the payload.
func (h *Handler) Scan(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id" binding:"required"`
		Payload   string `json:"payload" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims, ok := auth.ClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing claims"})
		return
	}
	rec, err := h.attendance.Scan(c.Request.Context(), req.SessionID, req.Payload, claims.Subject, time.Now().UTC())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": rec, "state": rec.State()})
}

// Manual is the admin escape hatch for students whose phone will not scan.
func (h *Handler) Manual(c *gin.Context) {
	var req struct {
		Action    string `json:"action" binding:"required"`
		StudentID string `json:"student_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := h.attendance.Manual(c.Request.Context(), c.Param("id"), model.Action(req.Action), req.StudentID, time.Now().UTC())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": rec, "state": rec.State()})
}

// Undo clears a previously recorded timestamp.
func (h *Handler) Undo(c *gin.Context) {
	var req struct {
		Action    string `json:"action" binding:"required"`
		StudentID string `json:"student_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	now := time.Now().UTC()
	var err error
	switch model.Action(req.Action) {
	case model.ActionCheckin:
		err = h.attendance.UndoCheckin(ctx, c.Param("id"), req.StudentID, now)
	case model.ActionCheckout:
		err = h.attendance.UndoCheckout(ctx, c.Param("id"), req.StudentID, now)
	default:
		h.writeError(c, engine.ErrUnknownAction)
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "undone"})
}

func (h *Handler) Report(c *gin.Context) {
	records, err := h.attendance.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attendance": records})
}

func (h *Handler) Tally(c *gin.Context) {
	counts, err := h.tallies.Counts(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

// ---------- Error mapping ----------

// writeError maps engine rejections to 4xx with their exact messages; the
// client shows Message verbatim.
func (h *Handler) writeError(c *gin.Context, err error) {
	var engErr *engine.Error
	switch {
	case errors.As(err, &engErr):
		c.JSON(statusFor(engErr.Code), gin.H{"error": engErr.Message, "code": engErr.Code})
	case errors.Is(err, session.ErrNotFound), errors.Is(err, attendance.ErrSessionNotFound), errors.Is(err, attendance.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func statusFor(code engine.Code) int {
	switch code {
	case engine.CodeAlreadyCheckedIn, engine.CodeAlreadyCheckedOut, engine.CodeCheckinRequired:
		return http.StatusConflict
	case engine.CodeNotOnRoster:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}

func intQuery(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}
