package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/college-portal-api/internal/middleware"
	"github.com/noah-isme/college-portal-api/internal/models"
	"github.com/noah-isme/college-portal-api/internal/service"
	"github.com/noah-isme/college-portal-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/college-portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/college-portal-api/pkg/middleware/requestid"
)

var (
	staffRoles  = []models.UserRole{models.RoleAdmin, models.RoleClerk, models.RoleTeacher}
	officeRoles = []models.UserRole{models.RoleAdmin, models.RoleClerk}
	adminRoles  = []models.UserRole{models.RoleAdmin}
)

// RouterConfig carries the HTTP-level settings of the router.
type RouterConfig struct {
	APIPrefix      string
	CookieName     string
	AllowedOrigins []string
}

// Handlers groups every endpoint handler.
type Handlers struct {
	Auth     *AuthHandler
	Classes  *ClassHandler
	Students *StudentHandler
	Staff    *StaffHandler
	Files    *FileHandler
	Metrics  *MetricsHandler
}

// NewRouter builds the gin engine. Role requirements are declared here, once per route.
func NewRouter(cfg RouterConfig, h Handlers, sessions middleware.TokenValidator, metrics *service.MetricsService, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(log))
	r.Use(corsmiddleware.New(cfg.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	authn := middleware.Authenticate(sessions, cfg.CookieName)
	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", h.Auth.Login)
	auth.POST("/logout", middleware.OptionalAuthenticate(sessions, cfg.CookieName), h.Auth.Logout)
	auth.GET("/me", authn, h.Auth.Me)
	auth.POST("/change-password", authn, middleware.RequireRoles(staffRoles...), h.Auth.ChangePassword)

	api.GET("/files/:token", h.Files.Download)

	classes := api.Group("/classes", authn)
	classes.GET("", middleware.RequireRoles(staffRoles...), h.Classes.List)
	classes.POST("", middleware.RequireRoles(officeRoles...), h.Classes.Create)
	classes.GET("/:id", middleware.RequireRoles(staffRoles...), h.Classes.Get)
	classes.GET("/:id/roster", middleware.RequireRoles(staffRoles...), h.Classes.Roster)

	students := api.Group("/students", authn)
	students.POST("", middleware.RequireRoles(officeRoles...), h.Students.Enroll)
	students.GET("", middleware.RequireRoles(staffRoles...), h.Students.List)
	students.GET("/:id", middleware.RequireRoles(staffRoles...), h.Students.Get)
	students.PUT("/:id", middleware.RequireRoles(officeRoles...), h.Students.Update)
	students.DELETE("/:id", middleware.RequireRoles(adminRoles...), h.Students.Delete)
	students.PUT("/:id/photo", middleware.RequireRoles(officeRoles...), h.Students.UploadPhoto)
	students.GET("/:id/photo-url", middleware.RequireRoles(staffRoles...), h.Students.PhotoURL)

	staff := api.Group("/staff", authn, middleware.RequireRoles(adminRoles...))
	staff.GET("", h.Staff.List)
	staff.POST("", h.Staff.Create)
	staff.PUT("/:id", h.Staff.Update)
	staff.DELETE("/:id", h.Staff.Delete)

	return r
}
