package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cppla/aiblog/config"
	"github.com/cppla/aiblog/controllers"
	"github.com/cppla/aiblog/genfile"
	"github.com/cppla/aiblog/middleware"
	"github.com/cppla/aiblog/services"
	"github.com/cppla/aiblog/utils"
)

// Deps are the services the HTTP layer is built on.
type Deps struct {
	Members  *services.MemberService
	Posts    *services.PostService
	Comments *services.CommentService
	GenFiles *services.GenFileService
	Stage    *genfile.Materializer
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg *config.AppConfig, deps Deps) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.MaxMultipartMemory = 8 << 20
	// HTTP access log goes to its own rolling file
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(ginzap.Ginzap(gl, time.RFC3339, true))
		r.Use(ginzap.RecoveryWithZap(gl, !cfg.IsProd()))
	} else {
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	if len(corsCfg.AllowOrigins) > 0 || corsCfg.AllowAllOrigins {
		r.Use(cors.New(corsCfg))
	}

	r.Use(middleware.Metrics())
	r.Use(middleware.Authenticate(cfg, deps.Members))

	r.Static("/gen", deps.GenFiles.RootDir())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	memberController := controllers.NewMemberController(cfg, deps.Members)
	admMemberController := controllers.NewAdmMemberController(deps.Members)
	oauthController := controllers.NewOAuthController(cfg, deps.Members)
	postController := controllers.NewPostController(cfg, deps.Posts, deps.Members, deps.GenFiles)
	commentController := controllers.NewCommentController(deps.Posts, deps.Comments, deps.Members)
	genFileController := controllers.NewGenFileController(deps.Posts, deps.GenFiles, deps.Stage)
	downloadController := controllers.NewGenFileDownloadController(deps.Posts, deps.GenFiles)
	siteController := controllers.NewSiteController(cfg)

	r.GET("/post/genFile/download/:postId/:fileName", downloadController.Download)

	api := r.Group("/api/v1")
	authRequired := middleware.AuthRequired()
	api.GET("/site", siteController.GetSite)

	membersGroup := api.Group("/members")
	membersGroup.Use(middleware.RateLimitMiddleware(cfg))
	membersGroup.POST("/join", memberController.Join)
	membersGroup.POST("/login", memberController.Login)
	membersGroup.DELETE("/logout", memberController.Logout)
	membersGroup.GET("/me", authRequired, memberController.Me)
	membersGroup.PUT("/me", authRequired, memberController.ModifyMe)
	membersGroup.GET("/oauth/:provider/login", oauthController.Login)
	membersGroup.GET("/oauth/:provider/callback", oauthController.Callback)

	adm := api.Group("/adm")
	adm.Use(middleware.AdminRequired())
	adm.GET("/members", admMemberController.Items)

	posts := api.Group("/posts")
	posts.GET("", postController.Items)
	posts.GET("/mine", authRequired, postController.Mine)
	posts.GET("/statistics", middleware.AdminRequired(), postController.Statistics)
	posts.POST("/temp", authRequired, postController.Temp)
	posts.POST("", authRequired, postController.Write)
	posts.GET("/:id", postController.Item)
	posts.PUT("/:id", authRequired, postController.Modify)
	posts.DELETE("/:id", authRequired, postController.Delete)

	posts.GET("/:id/comments", commentController.Items)
	posts.POST("/:id/comments", authRequired, commentController.Write)
	posts.PUT("/:id/comments/:commentId", authRequired, commentController.Modify)
	posts.DELETE("/:id/comments/:commentId", authRequired, commentController.Delete)

	// :target is a type code on POST and the slot form of PUT, a file id elsewhere
	posts.GET("/:id/genFiles", genFileController.Items)
	posts.POST("/:id/genFiles/:target", authRequired, genFileController.MakeNewItems)
	posts.GET("/:id/genFiles/:target", genFileController.Item)
	posts.PUT("/:id/genFiles/:target", authRequired, genFileController.Modify)
	posts.DELETE("/:id/genFiles/:target", authRequired, genFileController.Delete)
	posts.PUT("/:id/genFiles/:target/:fileNo", authRequired, genFileController.Put)

	r.NoRoute(func(ctx *gin.Context) {
		if strings.HasPrefix(ctx.Request.URL.Path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
			return
		}
		utils.Error(ctx, http.StatusNotFound, 40400, "not found")
	})

	return r
}
