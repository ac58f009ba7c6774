package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cppla/goboard/board"
	"github.com/cppla/goboard/middleware"
	"github.com/cppla/goboard/store"
	"github.com/cppla/goboard/utils"
)

// getUserID reads the authenticated user id placed in the context by the
// auth middleware. Returns (0, false) for anonymous requests.
func getUserID(ctx *gin.Context) (uint, bool) {
	value, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		return uint(v), true
	case int64:
		return uint(v), true
	case float64:
		return uint(v), true
	default:
		return 0, false
	}
}

// viewerID is getUserID for endpoints where anonymous access is fine.
func viewerID(ctx *gin.Context) uint {
	id, _ := getUserID(ctx)
	return id
}

// parseID parses a numeric path parameter.
func parseID(ctx *gin.Context, param string) (uint, bool) {
	n, err := strconv.ParseUint(ctx.Param(param), 10, 32)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

// handleServiceError maps the board/store error taxonomy onto the uniform
// JSON envelope. Validation messages are passed through verbatim; storage
// failures are logged and reported as a generic 500.
func handleServiceError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		utils.Error(ctx, http.StatusNotFound, 40401, "not found")
	case errors.Is(err, board.ErrUnauthorized):
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
	case errors.Is(err, board.ErrForbidden):
		utils.Error(ctx, http.StatusForbidden, 40301, "permission denied")
	case errors.Is(err, board.ErrValidation):
		utils.Error(ctx, http.StatusBadRequest, 40001, err.Error())
	case errors.Is(err, store.ErrEmailTaken):
		utils.Error(ctx, http.StatusConflict, 40901, "email already registered")
	default:
		if utils.Sugar != nil {
			utils.Sugar.Errorf("unexpected service error: %v", err)
		}
		utils.Error(ctx, http.StatusInternalServerError, 50000, "internal server error")
	}
}
