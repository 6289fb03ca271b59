package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	univsig "github.com/blip-x402/univsig"
	"github.com/blip-x402/univsig/types"
)

type handlers struct {
	facilitator  Facilitator
	logger       *zap.Logger
	maxBodyBytes int64
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": univsig.ServiceName,
		"version": univsig.Version,
	})
}

func (h *handlers) supported(c *gin.Context) {
	c.JSON(http.StatusOK, h.facilitator.Supported())
}

func (h *handlers) verify(c *gin.Context) {
	var request types.VerifyRequest
	if !h.bind(c, types.ValidateVerifyRequest, &request) {
		return
	}

	result, err := h.facilitator.Verify(c.Request.Context(), request)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handlers) wrap(c *gin.Context) {
	var request types.WrapRequest
	if !h.bind(c, types.ValidateWrapRequest, &request) {
		return
	}

	result, err := h.facilitator.Wrap(request)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handlers) unwrap(c *gin.Context) {
	var request types.UnwrapRequest
	if !h.bind(c, types.ValidateUnwrapRequest, &request) {
		return
	}

	result, err := h.facilitator.Unwrap(request)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// bind reads the body, validates it against its schema and decodes it into
// out. It writes the error response itself and reports whether to continue.
func (h *handlers) bind(c *gin.Context, validate func([]byte) error, out interface{}) bool {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, types.ErrorResponse{Error: "request body too large"})
			return false
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, types.ErrorResponse{Error: "failed to read request body"})
		return false
	}

	if err := validate(body); err != nil {
		response := types.ErrorResponse{Error: "invalid request body"}
		var schemaErr *types.SchemaError
		if errors.As(err, &schemaErr) {
			response.Details = schemaErr.Details
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, response)
		return false
	}

	if err := binding.JSON.BindBody(body, out); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, types.ErrorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

// fail maps facilitator errors: request-level errors are the caller's fault,
// anything else is ours
func (h *handlers) fail(c *gin.Context, err error) {
	var verifyErr *univsig.VerifyError
	if errors.As(err, &verifyErr) {
		c.AbortWithStatusJSON(http.StatusBadRequest, types.ErrorResponse{
			Error:  verifyErr.Error(),
			Reason: verifyErr.Reason,
		})
		return
	}

	_ = c.Error(err)
	h.logger.Error("Facilitator request failed", zap.String("request_id", GetRequestID(c)), zap.Error(err))
	c.AbortWithStatusJSON(http.StatusInternalServerError, types.ErrorResponse{Error: "internal error"})
}
