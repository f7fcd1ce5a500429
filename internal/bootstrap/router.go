package bootstrap

import (
	fbauth "firebase.google.com/go/v4/auth"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/datacharted/go-provisioning-backend/internal/accounts"
	httpapi "github.com/datacharted/go-provisioning-backend/internal/api/http"
	"github.com/datacharted/go-provisioning-backend/internal/auth"
	provhttp "github.com/datacharted/go-provisioning-backend/internal/provisioning/http"
	"github.com/datacharted/go-provisioning-backend/internal/provisioning/repository"
	"github.com/datacharted/go-provisioning-backend/internal/provisioning/service"
)

type RouterDeps struct {
	ServiceName string
	Version     string
	DB          *pgxpool.Pool
	Redis       *redis.Client
	AuthClient  *fbauth.Client
	Cloud       service.CloudClient
	Notifier    service.Notifier

	BillingAccountID string
	DatasetLocation  string
}

func BuildRouter(dep RouterDeps) *gin.Engine {
	r := gin.Default()
	r.Use(cors.Default())
	r.Use(requestID())

	healthHandler := httpapi.NewHealthHandler(dep.ServiceName, dep.Version, dep.DB, dep.Redis)
	healthHandler.RegisterRoutes(r)

	accountRepo := accounts.NewRepo(dep.DB)
	recordRepo := repository.NewRepo(dep.DB)
	locker := service.NewRedisLocker(dep.Redis)

	folders := service.NewFolderAllocator(dep.Cloud, accountRepo, locker)
	orchestrator := service.NewOrchestrator(
		dep.Cloud, accountRepo, recordRepo, folders, dep.Notifier,
		dep.BillingAccountID, dep.DatasetLocation,
	)
	reporter := service.NewStatusReporter(recordRepo)

	api := r.Group("/api/v1")
	api.Use(auth.FirebaseAuth(dep.AuthClient))
	api.Use(auth.WithAccount(accountRepo))

	projectsGroup := api.Group("/projects")
	provhttp.New(orchestrator, reporter).Register(projectsGroup)

	return r
}

// requestID tags each request context so service log lines correlate.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-Id")
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Header("X-Request-Id", rid)
		c.Request = c.Request.WithContext(service.WithRequestID(c.Request.Context(), rid))
		c.Next()
	}
}
