package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"

	"LIBRIS-backend/internal/catalogue"
	"LIBRIS-backend/internal/categories"
	"LIBRIS-backend/internal/circulation"
	"LIBRIS-backend/internal/platform/auth"
	"LIBRIS-backend/internal/platform/db"
	"LIBRIS-backend/internal/users"
)

func main() {
	// Load configuration
	cfg, err := db.LoadConfig("config/config.yaml")
	if err != nil {
		panic(err)
	}

	mode := cfg.Mode
	log.Printf("[INFO] mode:%s\n", mode)

	if cfg.Mode != "dev" && cfg.Mode != "release" {
		fmt.Println("Usage: go run main.go [dev|release]")
		return
	}

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		panic(err)
	}
	defer conn.Close()

	log.Printf("[INFO] connected to DB: %s", cfg.DB.DBName)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if mode == "dev" {
		// CORS is only needed while the frontend runs on its own dev server.
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:3000"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	secret := []byte(cfg.Auth.Secret)

	authSvc := auth.NewService(conn, secret, cfg.Auth.TokenTTL())
	catalogueSvc := catalogue.NewService(conn)
	categoriesSvc := categories.NewService(conn)
	circulationSvc := circulation.NewService(conn)
	usersSvc := users.NewService(conn)

	// /api/v1
	api := r.Group("/api/v1")
	auth.RegisterRoutes(api.Group("/auth"), authSvc)

	authd := api.Group("", auth.RequireAuth(secret))

	// Read-only browsing is open to every authenticated role.
	catalogue.RegisterBrowseRoutes(authd, catalogueSvc)
	categories.RegisterBrowseRoutes(authd, categoriesSvc)

	// Students: their own requests and history.
	student := authd.Group("", auth.RequireRole(auth.RoleStudent))
	circulation.RegisterRequesterRoutes(student, circulationSvc)

	// Librarians and admins: catalogue management and circulation approval.
	staff := authd.Group("", auth.RequireRole(auth.RoleLibrarian, auth.RoleAdmin))
	catalogue.RegisterManageRoutes(staff, catalogueSvc)
	categories.RegisterManageRoutes(staff, categoriesSvc)
	circulation.RegisterApproverRoutes(staff, circulationSvc)

	// Admins only.
	admin := authd.Group("", auth.RequireRole(auth.RoleAdmin))
	users.RegisterRoutes(admin, usersSvc)
	circulation.RegisterReportRoutes(admin, circulationSvc)

	srv := &http.Server{
		Addr:    ":8443",
		Handler: r,
	}

	var certFile, keyFile string

	if mode == "dev" {
		certFile = fmt.Sprintf("config/tls/dev/%s", cfg.Certificate.Cert)
		keyFile = fmt.Sprintf("config/tls/dev/%s", cfg.Certificate.Key)
	} else {
		certFile = fmt.Sprintf("config/tls/release/%s", cfg.Certificate.Cert)
		keyFile = fmt.Sprintf("config/tls/release/%s", cfg.Certificate.Key)
	}

	go func() {
		log.Println("[INFO] listening on https://0.0.0.0:8443")
		if err := srv.ListenAndServeTLS(certFile, keyFile); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	log.Println("[INFO] shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal(err)
	}
}
