package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	config "github.com/omotechhub-debug/OMOTECHY-sub004/config"
	reconcile "github.com/omotechhub-debug/OMOTECHY-sub004/reconcile"
	routes "github.com/omotechhub-debug/OMOTECHY-sub004/routes"
	store "github.com/omotechhub-debug/OMOTECHY-sub004/store"
)

func main() {
	cfg := config.Load()

	db := store.NewMongo(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := db.EnsureIndexes(ctx); err != nil {
		cancel()
		log.Fatalf("could not create indexes: %v", err)
	}
	cancel()

	workflow := reconcile.NewWorkflow(db, db, db)

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "If-None-Match"},
		ExposeHeaders: []string{"ETag", "Last-Modified"},
		MaxAge:        12 * time.Hour,
	}))

	routes.SetupRoutes(r, cfg, workflow)

	log.Printf("listening on :%s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
