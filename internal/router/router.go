package router

import (
	"net/http"
	"time"

	"household-ledger/internal/config"
	"household-ledger/internal/handler"
	"household-ledger/internal/ledger"
	"household-ledger/internal/middleware"
	"household-ledger/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SetupRouter builds the gin engine with every /api route.
func SetupRouter(cfg *config.Config, db *gorm.DB, log *logrus.Logger) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	util.SetupValidator()

	r := gin.New()
	r.Use(middleware.RequestLogger(log), middleware.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	authHandler := &handler.AuthHandler{
		DB:               db,
		JWTSecret:        cfg.JWT.Secret,
		Issuer:           cfg.JWT.Issuer,
		TokenTTL:         cfg.JWT.TokenTTL(),
		BcryptCost:       cfg.Security.BcryptCost,
		MaxLoginAttempts: cfg.Security.MaxLoginAttempts,
		LockDuration:     time.Duration(cfg.Security.LockMinutes) * time.Minute,
		DefaultCurrency:  cfg.App.DefaultCurrency,
	}
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)

	protected := api.Group("")
	protected.Use(
		middleware.AuthMiddleware(cfg.JWT.Secret, cfg.JWT.Issuer, db),
		middleware.AuditMiddleware(db),
	)
	write := middleware.RequireWrite()
	owner := middleware.RequireOwner()

	protected.POST("/auth/logout", authHandler.Logout)
	protected.GET("/me", authHandler.Me)
	protected.PUT("/profile", handler.UpdateProfile(db))
	protected.POST("/profile/password", handler.ChangePassword(db, cfg.Security.BcryptCost))

	users := &handler.UserHandler{DB: db, BcryptCost: cfg.Security.BcryptCost}
	ug := protected.Group("/users", owner)
	ug.GET("", users.ListUsers)
	ug.POST("", users.CreateUser)
	ug.GET("/:id", users.GetUser)
	ug.PUT("/:id", users.UpdateUser)
	ug.DELETE("/:id", users.DeleteUser)

	accounts := &handler.AccountHandler{DB: db}
	protected.GET("/accounts", accounts.ListAccounts)
	protected.GET("/accounts/:id", accounts.GetAccount)
	protected.POST("/accounts", write, accounts.CreateAccount)
	protected.PUT("/accounts/:id", write, accounts.UpdateAccount)
	protected.DELETE("/accounts/:id", write, accounts.DeleteAccount)

	categories := &handler.CategoryHandler{DB: db}
	protected.GET("/categories", categories.ListCategories)
	protected.GET("/categories/:id", categories.GetCategory)
	protected.POST("/categories", write, categories.CreateCategory)
	protected.PUT("/categories/:id", write, categories.UpdateCategory)
	protected.DELETE("/categories/:id", write, categories.DeleteCategory)

	txns := &handler.TransactionHandler{
		DB:       db,
		Ledger:   ledger.New(db, log),
		PageSize: cfg.App.PageSize,
	}
	protected.GET("/transactions", txns.ListTransactions)
	protected.GET("/transactions/:id", txns.GetTransaction)
	protected.POST("/transactions", write, txns.CreateTransaction)
	protected.PUT("/transactions/:id", write, txns.UpdateTransaction)
	protected.DELETE("/transactions/:id", write, txns.DeleteTransaction)

	reports := &handler.ReportHandler{DB: db}
	protected.GET("/reports/summary", reports.Summary)
	protected.GET("/reports/categories", reports.Categories)
	protected.GET("/reports/monthly", reports.Monthly)
	protected.GET("/reports/accounts", reports.Accounts)

	exports := &handler.ExportHandler{DB: db}
	protected.GET("/export/transactions.csv", exports.ExportCSV)
	protected.GET("/export/transactions.xlsx", exports.ExportXLSX)

	logs := &handler.LogHandler{DB: db, PageSize: cfg.App.PageSize}
	protected.GET("/logs", owner, logs.ListLogs)

	return r
}
