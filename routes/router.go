package routes

import (
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/cppla/goboard/board"
	"github.com/cppla/goboard/config"
	"github.com/cppla/goboard/controllers"
	"github.com/cppla/goboard/middleware"
	"github.com/cppla/goboard/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(svc *board.Service) *gin.Engine {
	// Load config and set Gin mode from configuration
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Replace default console logger with file-based zap logger
	ginLogPath := cfg.GinPath
	// Use application log level as reference
	gl, err := utils.NewRollingFileLogger(ginLogPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		// fallback to default recovery if logger failed to init
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}

	r.Use(cors.New(corsCfg))

	r.Static("/static", "./"+cfg.StaticRoot)
	// Uploaded images live under the static root
	r.Static("/"+cfg.UploadDir, "./"+filepath.ToSlash(filepath.Join(cfg.StaticRoot, cfg.UploadDir)))

	r.GET("/", func(c *gin.Context) {
		c.File("./" + cfg.StaticRoot + "/index.html")
	})

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	authController := controllers.NewAuthController(svc)
	postController := controllers.NewPostController(svc)
	replyController := controllers.NewReplyController(svc)
	statsController := controllers.NewStatsController(svc)

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware())
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.GET("/oauth/:provider/login", authController.OAuthRedirect)
	authGroup.GET("/oauth/:provider/callback", authController.OAuthCallback)
	authGroup.POST("/logout", middleware.AuthRequired(), authController.Logout)
	authGroup.GET("/me", middleware.AuthRequired(), authController.Me)
	authGroup.PATCH("/profile", middleware.AuthRequired(), authController.UpdateProfile)
	authGroup.PATCH("/password", middleware.AuthRequired(), authController.UpdatePassword)
	authGroup.DELETE("/account", middleware.AuthRequired(), authController.DeleteAccount)

	postsGroup := api.Group("/posts")
	postsGroup.GET("", postController.ListPosts)
	// Optional identity: anonymous reads still bump views, owners do not
	postsGroup.GET("/:id", middleware.AuthOptional(), postController.GetPost)
	postsGroup.GET("/:id/preview", middleware.AuthOptional(), postController.RefreshPost)
	postsGroup.GET("/:id/replies", replyController.ListReplies)

	// Public stats endpoint
	api.GET("/stats", statsController.GetStats)
	// Public user posts
	api.GET("/users/:id/posts", postController.ListUserPosts)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(), middleware.RateLimitMiddleware())
	protected.POST("/upload", postController.UploadImage)
	protected.POST("/posts", postController.CreatePost)
	protected.PUT("/posts/:id", postController.UpdatePost)
	protected.DELETE("/posts/:id", postController.DeletePost)
	protected.POST("/posts/:id/like", postController.ToggleLike)
	protected.POST("/posts/:id/replies", replyController.CreateReply)
	protected.PUT("/replies/:replyId", replyController.UpdateReply)
	protected.DELETE("/replies/:replyId", replyController.DeleteReply)

	r.NoRoute(func(ctx *gin.Context) {
		path := ctx.Request.URL.Path
		if strings.HasPrefix(path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
			return
		}
		if strings.HasPrefix(path, "/static/") {
			ctx.JSON(http.StatusNotFound, gin.H{"message": "static asset not found"})
			return
		}
		// Remaining paths fall back to the SPA entry
		ctx.Status(http.StatusOK)
		ctx.File("./" + cfg.StaticRoot + "/index.html")
	})

	return r
}
