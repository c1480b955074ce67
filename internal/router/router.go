package router

import (
	"time"

	"clawpos/internal/config"
	"clawpos/internal/handler"
	"clawpos/internal/infra"
	"clawpos/internal/middleware"
	"clawpos/internal/repository"
	"clawpos/internal/service"
	"clawpos/internal/worker"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client, mailCB *infra.CircuitBreaker) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS(cfg.CORSOrigin))
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(1000, time.Minute)) // per IP; a store's tablets share one NAT address

	// ── Repositories ─────────────────────────────────────────────────────────
	userRepo := repository.NewUserRepository(db)
	productRepo := repository.NewProductRepository(db)
	saleRepo := repository.NewSaleRepository(db)
	inventoryRepo := repository.NewInventoryRepository(db)
	movementRepo := repository.NewStockMovementRepository(db)

	// ── Services ─────────────────────────────────────────────────────────────
	dispatcher := worker.NewDispatcher(rdb)

	authSvc := service.NewAuthService(userRepo, cfg)
	productSvc := service.NewProductService(productRepo, rdb, time.Duration(cfg.CatalogCacheTTL)*time.Second)
	inventorySvc := service.NewInventoryService(inventoryRepo, movementRepo)
	saleSvc := service.NewSaleService(saleRepo, productRepo, inventorySvc, dispatcher, cfg.StoreName)

	// ── Handlers ─────────────────────────────────────────────────────────────
	authH := handler.NewAuthHandler(authSvc)
	productsH := handler.NewProductsHandler(productSvc)
	inventoryH := handler.NewInventoryHandler(inventorySvc)
	salesH := handler.NewSalesHandler(saleSvc)
	jobsH := handler.NewJobsHandler(worker.NewDeadLetters(rdb))

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public; tablets probe it for connectivity
	r.GET("/health", handler.Health(db, rdb, mailCB))

	auth := r.Group("/v1/auth")
	{
		auth.POST("/login", middleware.LoginRateLimiter(), authH.Login)
	}

	jwtMW := middleware.JWTAuth(cfg.JWTSecret)
	anyRole := middleware.RequireRole(middleware.RoleCashier, middleware.RoleManager, middleware.RoleAdmin)
	v1 := r.Group("/v1", jwtMW)
	{
		v1.POST("/sales", anyRole, salesH.CreateSale)
		v1.GET("/sales", anyRole, salesH.ListSales)
		v1.GET("/sales/summary/today", anyRole, salesH.TodaySummary)
		v1.GET("/sales/:id", anyRole, salesH.GetSale)
		v1.GET("/sales/:id/receipt", anyRole, salesH.Receipt)

		// Offline queue drain (tablet sync engine)
		v1.POST("/sync/sales/bulk", anyRole, salesH.SyncSales)

		v1.GET("/products", anyRole, productsH.Catalog)

		inv := v1.Group("/inventory", middleware.RequireRole(middleware.RoleAdmin, middleware.RoleManager))
		{
			inv.GET("/movements", inventoryH.ListMovements)
		}

		jobs := v1.Group("/jobs", middleware.RequireRole(middleware.RoleAdmin, middleware.RoleManager))
		{
			jobs.GET("/dead", jobsH.ListDead)
			jobs.POST("/dead/replay", jobsH.ReplayDead)
		}
	}

	// Swagger UI, only outside production
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
