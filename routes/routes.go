package routes

import (
	"github.com/gin-gonic/gin"

	config "github.com/omotechhub-debug/OMOTECHY-sub004/config"
	controllers "github.com/omotechhub-debug/OMOTECHY-sub004/controllers"
	middleware "github.com/omotechhub-debug/OMOTECHY-sub004/middleware"
)

func SetupRoutes(r *gin.Engine, cfg *config.Config, svc controllers.ReconciliationService) {
	// public
	r.POST("/auth/login", controllers.Login(cfg))

	// provider callbacks (authenticated by IP allowlist at the edge)
	r.POST("/payments/mpesa/callback", controllers.MpesaCallback(svc))

	// protected
	auth := middleware.AuthMiddleware(cfg)
	adminOnly := middleware.RequireRoles("admin", "superadmin")

	r.GET("/auth/me", auth, controllers.Me(cfg))

	payments := r.Group("/payments")
	payments.Use(auth, adminOnly)
	{
		payments.GET("/transactions", controllers.ListTransactions(cfg))
		payments.GET("/transactions/:id", controllers.GetTransaction(cfg))

		payments.GET("/reconcile/pending", controllers.ListPendingReconciliations(svc))
		payments.GET("/reconcile/unmatched", controllers.ListUnmatchedTransactions(svc))
		payments.POST("/reconcile/:id/confirm", controllers.ConfirmTransaction(svc))
		payments.POST("/reconcile/:id/reject", controllers.RejectTransaction(svc))
		payments.POST("/reconcile/:id/unlink", controllers.UnlinkTransaction(svc))

		payments.GET("/audit", controllers.ListAuditTrail(svc))
	}

	orders := r.Group("/orders")
	orders.Use(auth, adminOnly)
	{
		orders.POST("", controllers.CreateOrder(cfg))
		orders.GET("", controllers.ListOrders(cfg))
		orders.GET("/:id", controllers.GetOrder(cfg))
		orders.PATCH("/:id", controllers.UpdateOrderStatus(cfg))
		orders.POST("/:id/attachments", controllers.AddOrderAttachments(cfg))
		orders.DELETE("/:id", controllers.DeleteOrder(cfg))
	}

	customers := r.Group("/customers")
	customers.Use(auth, adminOnly)
	{
		customers.POST("", controllers.CreateCustomer(cfg))
		customers.GET("", controllers.ListCustomers(cfg))
		customers.GET("/:id", controllers.GetCustomer(cfg))
		customers.PATCH("/:id", controllers.UpdateCustomer(cfg))
		customers.DELETE("/:id", controllers.DeleteCustomer(cfg))
	}
}
