package reports

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nimasrn/school-treasury/internal/model"
	"github.com/rs/zerolog/log"
)

const (
	ActorIDHeader   = "X-Actor-Id"
	ActorRoleHeader = "X-Actor-Role"
)

// Authorizer gates the report feed. A nil Authorizer leaves it open, which
// is only meant for deployments behind a trusted network boundary.
type Authorizer interface {
	Authorize(ctx context.Context, actor model.Actor, action model.Action) error
}

// HealthCheck reports whether a dependency of the server is usable.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	service *Service
	authz   Authorizer
	health  HealthCheck
}

func NewHandler(service *Service, authz Authorizer, health HealthCheck) *Handler {
	return &Handler{service: service, authz: authz, health: health}
}

// DailySummary handles GET /api/v1/reports/daily-summary?from=&to=.
// Both bounds are days; to is inclusive.
func (h *Handler) DailySummary(c *gin.Context) {
	from, err := parseDay(c.Query("from"))
	if err != nil {
		badRequest(c, "from", err)
		return
	}
	to, err := parseDay(c.Query("to"))
	if err != nil {
		badRequest(c, "to", err)
		return
	}

	summary, err := h.service.DailySummary(c.Request.Context(), from, to.AddDate(0, 0, 1))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Transactions handles GET /api/v1/reports/transactions.
func (h *Handler) Transactions(c *gin.Context) {
	var filter model.TransactionFilter
	filter.Type = model.TransactionType(c.Query("type"))
	filter.ReferenceID = c.Query("reference_id")

	if v := c.Query("from"); v != "" {
		from, err := parseDay(v)
		if err != nil {
			badRequest(c, "from", err)
			return
		}
		filter.From = &from
	}
	if v := c.Query("to"); v != "" {
		to, err := parseDay(v)
		if err != nil {
			badRequest(c, "to", err)
			return
		}
		to = to.AddDate(0, 0, 1)
		filter.To = &to
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := c.Query(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(c, name, errors.New("must be a non-negative integer"))
			return
		}
		*dst = n
	}

	items, total, err := h.service.Transactions(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items":  items,
		"total":  total,
		"offset": filter.Offset,
	})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.health(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func (h *Handler) authorize(c *gin.Context) {
	if h.authz == nil {
		c.Next()
		return
	}
	actor := model.Actor{
		ID:   c.GetHeader(ActorIDHeader),
		Role: c.GetHeader(ActorRoleHeader),
	}
	if err := h.authz.Authorize(c.Request.Context(), actor, model.ActionView); err != nil {
		log.Warn().Str("actor", actor.ID).Str("role", actor.Role).Err(err).Msg("report access denied")
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": err.Error(),
			"code":  model.Reason(err),
		})
		return
	}
	c.Next()
}

func (h *Handler) fail(c *gin.Context, err error) {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": verr.Error(),
			"field": verr.Field,
		})
		return
	}
	log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("report failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func badRequest(c *gin.Context, field string, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": field + ": " + err.Error(),
		"field": field,
	})
}

func parseDay(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, errors.New("is required")
	}
	t, err := time.Parse(dayLayout, v)
	if err != nil {
		return time.Time{}, errors.New("must be a date in YYYY-MM-DD form")
	}
	return t, nil
}

// SetupRouter configures all routes
func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Msg("Request processed")
	})

	v1 := router.Group("/api/v1/reports", handler.authorize)
	{
		v1.GET("/daily-summary", handler.DailySummary)
		v1.GET("/transactions", handler.Transactions)
	}

	router.GET("/health", handler.HealthCheck)

	return router
}
