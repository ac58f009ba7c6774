package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cppla/goboard/board"
	"github.com/cppla/goboard/utils"
)

// ReplyController manages threaded replies under posts.
type ReplyController struct {
	svc *board.Service
}

// NewReplyController creates a new ReplyController instance.
func NewReplyController(svc *board.Service) *ReplyController {
	return &ReplyController{svc: svc}
}

// ListReplies returns all replies for a post, oldest first.
func (r *ReplyController) ListReplies(ctx *gin.Context) {
	postID, ok := parseID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40061, "invalid post id")
		return
	}

	replies, err := r.svc.ListReplies(postID)
	if err != nil {
		handleServiceError(ctx, err)
		return
	}

	utils.Success(ctx, gin.H{"items": replies})
}

// CreateReply adds a reply to a post and bumps its reply count.
func (r *ReplyController) CreateReply(ctx *gin.Context) {
	postID, ok := parseID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40061, "invalid post id")
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40040, "invalid request payload")
		return
	}

	userID, _ := getUserID(ctx)
	reply, err := r.svc.CreateReply(userID, postID, req.Content)
	if err != nil {
		handleServiceError(ctx, err)
		return
	}

	// Reply counters show up in cached post lists
	utils.InvalidateByPrefix("cache:posts:list:")
	utils.InvalidateByPrefix("cache:user:" + strconv.Itoa(int(userID)) + ":posts:")

	utils.Respond(ctx, http.StatusCreated, 0, "success", gin.H{"reply": reply})
}

// UpdateReply allows the author to edit their reply text.
func (r *ReplyController) UpdateReply(ctx *gin.Context) {
	replyID, ok := parseID(ctx, "replyId")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40062, "invalid reply id")
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40041, "invalid request payload")
		return
	}

	userID, _ := getUserID(ctx)
	reply, err := r.svc.UpdateReply(userID, replyID, req.Content)
	if err != nil {
		handleServiceError(ctx, err)
		return
	}

	utils.Success(ctx, gin.H{"reply": reply})
}

// DeleteReply allows the author to remove their reply, decrementing the
// parent post's reply count.
func (r *ReplyController) DeleteReply(ctx *gin.Context) {
	replyID, ok := parseID(ctx, "replyId")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40062, "invalid reply id")
		return
	}

	userID, _ := getUserID(ctx)
	if err := r.svc.DeleteReply(userID, replyID); err != nil {
		handleServiceError(ctx, err)
		return
	}

	utils.InvalidateByPrefix("cache:posts:list:")

	utils.Success(ctx, gin.H{"message": "reply deleted"})
}
