package executor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// executeTimeout bounds the whole submit-and-poll exchange from the caller's
// side, so a wedged backend surfaces as a failed run instead of a stuck
// "executing" flag.
const executeTimeout = 30 * time.Second

type Runner interface {
	Execute(ctx context.Context, code, language, input string) (Result, error)
}

type Handler struct {
	runner Runner
}

func NewHandler(runner Runner) *Handler {
	return &Handler{runner: runner}
}

func RegisterRoute(r *gin.Engine, h *Handler) {
	r.POST("/execute", h.ExecuteHandler)
}

func (h *Handler) ExecuteHandler(ctx *gin.Context) {
	var request struct {
		Code     string `json:"code"`
		Language string `json:"language"`
		Input    string `json:"input"`
	}

	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "bad-request-format"})
		return
	}
	if request.Code == "" || request.Language == "" {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "code-and-language-required"})
		return
	}

	execCtx, cancel := context.WithTimeout(ctx.Request.Context(), executeTimeout)
	defer cancel()

	result, err := h.runner.Execute(execCtx, request.Code, request.Language, request.Input)
	if err != nil {
		if errors.Is(err, ErrUnsupportedLanguage) {
			ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unsupported-language"})
			return
		}
		// Backend unreachable or timed out: a terminal failed result, never a
		// crash and never a retry.
		log.Warn().Str("language", request.Language).Err(err).Msg("code execution failed")
		ctx.JSON(http.StatusOK, Result{
			Output: "Execution failed: the code runner is unavailable",
			Status: "Failed",
			Time:   "N/A",
			Memory: "N/A",
		})
		return
	}

	ctx.JSON(http.StatusOK, result)
}
