package controllers

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cppla/goboard/board"
	"github.com/cppla/goboard/config"
	"github.com/cppla/goboard/utils"
)

// PostController manages CRUD, likes and image uploads for posts.
type PostController struct {
	svc *board.Service
}

// NewPostController creates a new PostController instance.
func NewPostController(svc *board.Service) *PostController {
	return &PostController{svc: svc}
}

// CreatePost allows authenticated users to create new posts.
func (p *PostController) CreatePost(ctx *gin.Context) {
	var req struct {
		Title   string `json:"title" binding:"required,min=1"`
		Content string `json:"content" binding:"required"`
		Image   string `json:"image"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}

	userID, _ := getUserID(ctx)
	post, err := p.svc.CreatePost(userID, board.PostInput{
		Title:   req.Title,
		Content: req.Content,
		Image:   req.Image,
	})
	if err != nil {
		handleServiceError(ctx, err)
		return
	}

	// Invalidate list caches (homepage and per-author)
	utils.InvalidateByPrefix("cache:posts:list:")
	utils.InvalidateByPrefix("cache:user:" + strconv.Itoa(int(userID)) + ":posts:")

	utils.Respond(ctx, http.StatusCreated, 0, "success", gin.H{"post": post})
}

// ListPosts returns all posts newest first, including author information.
func (p *PostController) ListPosts(ctx *gin.Context) {
	const cacheKey = "cache:posts:list:all"
	if b, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}

	posts, err := p.svc.ListPosts()
	if err != nil {
		handleServiceError(ctx, err)
		return
	}

	payload := gin.H{"items": posts}
	wrapper := utils.JSONResponse{Code: 0, Message: "success", Data: payload}
	utils.CacheSetJSON(cacheKey, wrapper, time.Hour)
	utils.Success(ctx, payload)
}

// ListUserPosts returns posts created by a specific user (public).
func (p *PostController) ListUserPosts(ctx *gin.Context) {
	userID, ok := parseID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40060, "invalid user id")
		return
	}

	cacheKey := fmt.Sprintf("cache:user:%d:posts:all", userID)
	if b, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}

	posts, err := p.svc.UserPosts(userID)
	if err != nil {
		handleServiceError(ctx, err)
		return
	}

	payload := gin.H{"items": posts}
	wrapper := utils.JSONResponse{Code: 0, Message: "success", Data: payload}
	utils.CacheSetJSON(cacheKey, wrapper, time.Hour)
	utils.Success(ctx, payload)
}

// GetPost returns a single post. Reading as anyone but the owner counts a
// view, so the detail response is never served from cache.
func (p *PostController) GetPost(ctx *gin.Context) {
	postID, ok := parseID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40061, "invalid post id")
		return
	}

	post, liked, err := p.svc.GetPost(postID, viewerID(ctx))
	if err != nil {
		handleServiceError(ctx, err)
		return
	}

	utils.Success(ctx, gin.H{"post": post, "liked": liked})
}

// RefreshPost returns the post without counting a view, for re-reads after
// a mutation.
func (p *PostController) RefreshPost(ctx *gin.Context) {
	postID, ok := parseID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40061, "invalid post id")
		return
	}

	post, liked, err := p.svc.RefreshPost(postID, viewerID(ctx))
	if err != nil {
		handleServiceError(ctx, err)
		return
	}

	utils.Success(ctx, gin.H{"post": post, "liked": liked})
}

// UpdatePost allows the author to update their post.
func (p *PostController) UpdatePost(ctx *gin.Context) {
	postID, ok := parseID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40061, "invalid post id")
		return
	}

	var req struct {
		Title   string `json:"title"`
		Content string `json:"content"`
		Image   string `json:"image"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40024, "invalid request payload")
		return
	}

	userID, _ := getUserID(ctx)
	post, err := p.svc.UpdatePost(userID, postID, board.PostInput{
		Title:   req.Title,
		Content: req.Content,
		Image:   req.Image,
	})
	if err != nil {
		handleServiceError(ctx, err)
		return
	}

	utils.InvalidateByPrefix("cache:posts:list:")
	utils.InvalidateByPrefix("cache:user:" + strconv.Itoa(int(post.UserID)) + ":posts:")

	utils.Success(ctx, gin.H{"post": post})
}

// DeletePost allows the author to delete their post together with its
// replies, like rows and image file.
func (p *PostController) DeletePost(ctx *gin.Context) {
	postID, ok := parseID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40061, "invalid post id")
		return
	}

	userID, _ := getUserID(ctx)
	if err := p.svc.DeletePost(userID, postID); err != nil {
		handleServiceError(ctx, err)
		return
	}

	utils.InvalidateByPrefix("cache:posts:list:")
	utils.InvalidateByPrefix("cache:user:" + strconv.Itoa(int(userID)) + ":posts:")

	utils.Success(ctx, gin.H{"message": "post deleted"})
}

// ToggleLike flips the like state for the authenticated user and returns
// the new state plus the effective count.
func (p *PostController) ToggleLike(ctx *gin.Context) {
	postID, ok := parseID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40061, "invalid post id")
		return
	}

	userID, _ := getUserID(ctx)
	liked, likes, err := p.svc.ToggleLike(userID, postID)
	if err != nil {
		handleServiceError(ctx, err)
		return
	}

	utils.InvalidateByPrefix("cache:posts:list:")

	utils.Success(ctx, gin.H{"liked": liked, "likes": likes})
}

// UploadImage handles image uploads for posts and profiles. The stored
// path string is what post/user records later reference.
func (p *PostController) UploadImage(ctx *gin.Context) {
	file, header, err := ctx.Request.FormFile("image")
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40030, "no file uploaded")
		return
	}
	defer file.Close()

	// Size limit: 5MB, images only
	const maxSize = 5 * 1024 * 1024
	if header.Size > 0 && header.Size > maxSize {
		utils.Error(ctx, http.StatusBadRequest, 40032, "file size exceeds 5MB")
		return
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif":
	default:
		utils.Error(ctx, http.StatusBadRequest, 40033, "images only")
		return
	}

	cfg := config.Get()
	subDir := cfg.UploadDir
	if ctx.PostForm("kind") == "profile" {
		subDir = filepath.Join(subDir, "profiles")
	}
	baseDir := filepath.Join(cfg.StaticRoot, subDir)
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50030, "failed to create upload directory")
		return
	}

	safeName := uuid.NewString() + ext
	dstPath := filepath.Join(baseDir, safeName)

	out, err := os.Create(dstPath)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50031, "failed to save file")
		return
	}
	defer out.Close()

	lr := &io.LimitedReader{R: file, N: maxSize + 1}
	written, err := io.Copy(out, lr)
	if err != nil {
		_ = os.Remove(dstPath)
		utils.Error(ctx, http.StatusInternalServerError, 50032, "failed to write file")
		return
	}
	if written > maxSize {
		_ = os.Remove(dstPath)
		utils.Error(ctx, http.StatusBadRequest, 40032, "file size exceeds 5MB")
		return
	}

	relURL := "/" + filepath.ToSlash(filepath.Join(subDir, safeName))
	utils.Success(ctx, gin.H{"url": relURL})
}
