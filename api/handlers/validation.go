package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/log"

	apierrors "github.com/customeros/mailprobe/api/errors"
	"github.com/customeros/mailprobe/dto"
	"github.com/customeros/mailprobe/interfaces"
	"github.com/customeros/mailprobe/internal/tracing"
	"github.com/customeros/mailprobe/internal/utils"
)

type ValidationHandler struct {
	submitter interfaces.ValidationSubmitter
}

func NewValidationHandler(submitter interfaces.ValidationSubmitter) *ValidationHandler {
	return &ValidationHandler{submitter: submitter}
}

// ValidateEmail validates the first address of the request synchronously.
func (h *ValidationHandler) ValidateEmail() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ValidateEmail")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		req, ok := bindValidationRequest(c, span)
		if !ok {
			return
		}
		tracing.TagEmail(span, req.Emails[0])

		result := h.submitter.ValidateOne(ctx, req.Emails[0], req.Flags())
		c.JSON(http.StatusOK, result)
	}
}

// ValidateBatch answers small uploads inline and returns a handle for queued ones.
func (h *ValidationHandler) ValidateBatch() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ValidateBatch")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		req, ok := bindValidationRequest(c, span)
		if !ok {
			return
		}
		span.LogFields(log.Int("emails", len(req.Emails)))

		handle, err := h.submitter.Submit(ctx, req.Emails, req.Flags())
		if err != nil {
			tracing.TraceErr(span, err)
			httpErr := apierrors.FromError(err, "Failed to queue validation request")
			c.JSON(httpErr.Status, dto.ErrorResponse{Error: httpErr.Message})
			return
		}
		c.JSON(http.StatusOK, handle)
	}
}

func (h *ValidationHandler) ValidationStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ValidationStatus")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		id := c.Param("id")
		status, err := h.submitter.Status(ctx, id)
		if err != nil {
			tracing.TraceErr(span, err)
			httpErr := apierrors.FromError(err, "Failed to get validation status")
			c.JSON(httpErr.Status, dto.ErrorResponse{Error: httpErr.Message})
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

func bindValidationRequest(c *gin.Context, span opentracing.Span) (dto.ValidationRequest, bool) {
	var req dto.ValidationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		tracing.TraceErr(span, err)
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body", Details: err.Error()})
		return req, false
	}
	if len(req.Emails) == 0 {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "No emails provided"})
		return req, false
	}
	if err := utils.ValidateStruct(req); err != nil {
		tracing.TraceErr(span, err)
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body", Details: err.Error()})
		return req, false
	}
	return req, true
}
