package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"imagevault/internal/access"
	"imagevault/internal/config"
	"imagevault/internal/middleware"
	"imagevault/internal/models"
	"imagevault/internal/service"
)

// Version is reported by the ping endpoint.
var Version = "1.0.0"

type Retriever interface {
	GetOriginal(ctx context.Context, imageID string, identity string) (*access.Asset, error)
	GetThumbnail(ctx context.Context, imageID string, sizePx int, identity string) (*access.Asset, error)
	GetByTempLink(ctx context.Context, tempID string, identity string, now time.Time) (*access.Asset, error)
}

type Uploader interface {
	Upload(ctx context.Context, input service.UploadInput) (service.UploadResult, error)
}

type Authenticator interface {
	middleware.Authenticator
	Login(ctx context.Context, username, password string) (service.AuthResult, error)
}

type ImageLister interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Image, error)
	List(ctx context.Context, limit, offset int) ([]models.Image, error)
}

type TierLister interface {
	List(ctx context.Context) ([]models.AccountTier, error)
}

// Checker reports the health of one backing service.
type Checker func(ctx context.Context) error

type Dependencies struct {
	Auth      Authenticator
	Uploads   Uploader
	Access    Retriever
	Images    ImageLister
	Tiers     TierLister
	Checks    map[string]Checker
	MaxUpload int64
	Clock     func() time.Time
}

type HandlerSet struct {
	log  zerolog.Logger
	cfg  *config.AppConfig
	deps Dependencies
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, deps Dependencies) HandlerSet {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return HandlerSet{
		log:  log,
		cfg:  cfg,
		deps: deps,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/ping", h.Ping)
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/login", h.Login)
		auth.GET("/me", middleware.Auth(h.deps.Auth), h.Me)
	}

	images := v1.Group("/images")
	images.Use(middleware.Auth(h.deps.Auth))
	images.POST("", h.UploadImage)
	images.GET("", h.ListImages)
	images.GET("/:id", h.GetOriginal)
	images.GET("/:id/size/:size", h.GetThumbnail)

	v1.GET("/temp/:tempId", middleware.Auth(h.deps.Auth), h.GetByTempLink)

	admin := v1.Group("/admin")
	admin.Use(
		middleware.Auth(h.deps.Auth),
		middleware.RequireRoles(models.UserRoleAdmin),
	)
	admin.GET("/images", h.AdminListImages)
	admin.GET("/tiers", h.AdminListTiers)
}
