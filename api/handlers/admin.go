package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	apierrors "github.com/customeros/mailprobe/api/errors"
	"github.com/customeros/mailprobe/dto"
	"github.com/customeros/mailprobe/interfaces"
	"github.com/customeros/mailprobe/internal/tracing"
)

type AdminHandler struct {
	cache   interfaces.CacheAdmin
	breaker interfaces.CircuitBreakerAdmin
}

func NewAdminHandler(cache interfaces.CacheAdmin, breaker interfaces.CircuitBreakerAdmin) *AdminHandler {
	return &AdminHandler{cache: cache, breaker: breaker}
}

// ViewCache lists a cache namespace. JSON values are returned decoded.
func (h *AdminHandler) ViewCache() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ViewCache")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		namespace := c.Param("namespace")
		entries, err := h.cache.View(ctx, namespace)
		if err != nil {
			tracing.TraceErr(span, err)
			httpErr := apierrors.FromError(err, "Failed to view cache")
			c.JSON(httpErr.Status, dto.ErrorResponse{Error: httpErr.Message})
			return
		}

		decoded := make(map[string]any, len(entries))
		for key, value := range entries {
			var parsed any
			if json.Unmarshal([]byte(value), &parsed) == nil {
				decoded[key] = parsed
			} else {
				decoded[key] = value
			}
		}
		c.JSON(http.StatusOK, dto.CacheViewResponse{
			CacheType:    namespace,
			TotalEntries: len(entries),
			Entries:      decoded,
		})
	}
}

func (h *AdminHandler) ClearCache() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ClearCache")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		namespace := c.Param("namespace")
		cleared, err := h.cache.Clear(ctx, namespace)
		if err != nil {
			tracing.TraceErr(span, err)
			httpErr := apierrors.FromError(err, "Failed to clear cache")
			c.JSON(httpErr.Status, dto.ErrorResponse{Error: httpErr.Message})
			return
		}
		c.JSON(http.StatusOK, dto.CacheClearResponse{
			CacheType:      namespace,
			ClearedEntries: cleared,
			Message:        fmt.Sprintf("Successfully cleared %d cache entries", cleared),
		})
	}
}

func (h *AdminHandler) CircuitBreakerMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "CircuitBreakerMetrics")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		metrics, err := h.breaker.Metrics(ctx)
		if err != nil {
			tracing.TraceErr(span, err)
			httpErr := apierrors.FromError(err, "Failed to read circuit breaker metrics")
			c.JSON(httpErr.Status, dto.ErrorResponse{Error: httpErr.Message})
			return
		}
		c.JSON(http.StatusOK, metrics)
	}
}

func (h *AdminHandler) ResetCircuitBreaker() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ResetCircuitBreaker")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		if err := h.breaker.Reset(ctx); err != nil {
			tracing.TraceErr(span, err)
			httpErr := apierrors.FromError(err, "Failed to reset circuit breaker")
			c.JSON(httpErr.Status, dto.ErrorResponse{Error: httpErr.Message})
			return
		}
		metrics, err := h.breaker.Metrics(ctx)
		if err != nil {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusOK, metrics)
	}
}
