package controllers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/goboard/board"
	"github.com/cppla/goboard/utils"
)

// StatsController exposes aggregate board statistics.
type StatsController struct {
	svc *board.Service
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(svc *board.Service) *StatsController {
	return &StatsController{svc: svc}
}

// GetStats returns user, post, reply and view totals.
func (s *StatsController) GetStats(ctx *gin.Context) {
	const cacheKey = "cache:stats:board"
	if b, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(200, "application/json", b)
		return
	}

	stats, err := s.svc.Stats()
	if err != nil {
		handleServiceError(ctx, err)
		return
	}

	wrapper := utils.JSONResponse{Code: 0, Message: "success", Data: stats}
	utils.CacheSetJSON(cacheKey, wrapper, time.Minute)
	utils.Success(ctx, stats)
}
