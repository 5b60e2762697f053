package main

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"

	"github.com/tutorlink/tutorlink-backend/internal/chat"
	"github.com/tutorlink/tutorlink-backend/internal/config"
	"github.com/tutorlink/tutorlink-backend/internal/db"
	"github.com/tutorlink/tutorlink-backend/internal/handlers"
	"github.com/tutorlink/tutorlink-backend/internal/middleware"
	"github.com/tutorlink/tutorlink-backend/internal/models"
	"github.com/tutorlink/tutorlink-backend/internal/realtime"
	"github.com/tutorlink/tutorlink-backend/internal/storage"
	"github.com/tutorlink/tutorlink-backend/internal/wallet"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}

	if err := gdb.AutoMigrate(
		&models.User{},
		&models.TeacherProfile{},
		&models.Conversation{},
		&models.Message{},
		&models.Consultancy{},
		&models.Earning{},
	); err != nil {
		log.Fatal(err)
	}

	rdb := realtime.NewRedis(cfg.RedisAddr, cfg.RedisPassword)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal("Redis not reachable:", err)
	}

	hub := realtime.NewHub(realtime.NewRedisNotifier(rdb))
	go hub.Run()

	conversationSvc := chat.NewConversationService(gdb)
	messageSvc := chat.NewMessageService(gdb, conversationSvc)
	walletSvc := wallet.NewWalletService(gdb)
	storageSvc := storage.NewSupabaseService(cfg.SupabaseURL, cfg.SupabaseBucket, cfg.SupabaseServiceKey)

	authH := &handlers.AuthHandler{DB: gdb, JWTSecret: cfg.JWTSecret, Expires: cfg.JWTExpiresMin}
	googleH := &handlers.GoogleOAuthHandler{
		DB:              gdb,
		JWTSecret:       cfg.JWTSecret,
		Expires:         cfg.JWTExpiresMin,
		GoogleClientID:  cfg.GoogleClientID,
		GoogleSecret:    cfg.GoogleSecret,
		GoogleRedirect:  cfg.GoogleRedirect,
		FrontendBaseURL: cfg.FrontendBaseURL,
	}
	chatH := handlers.NewChatHandler(conversationSvc, messageSvc)
	wsH := handlers.NewWSHandler(hub, conversationSvc, messageSvc, cfg.JWTSecret)
	teacherH := handlers.NewTeacherHandler(gdb)
	consultancyH := handlers.NewConsultancyHandler(gdb, conversationSvc, walletSvc, hub)
	earningsH := handlers.NewEarningsHandler(gdb, walletSvc)
	uploadH := handlers.NewUploadHandler(storageSvc)

	app := fiber.New()

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		ExposeHeaders:    "Content-Length",
		AllowCredentials: true,
	}))

	api := app.Group("/api")

	// public
	api.Post("/auth/register", authH.Register)
	api.Post("/auth/login", authH.Login)
	api.Get("/auth/google/start", googleH.GoogleStart)
	api.Get("/auth/google/callback", googleH.GoogleCallback)
	api.Get("/teachers/:id", teacherH.GetPublic)

	// protected (JWT bearer)
	protected := api.Group("/",
		middleware.JWTFromHeader(cfg.JWTSecret),
		middleware.AttachJWTLocals(),
	)

	protected.Post("/auth/logout", authH.Logout)
	protected.Get("/me", authH.Me)

	protected.Get("/teachers/profile/me",
		middleware.RequireRoles("teacher"),
		teacherH.GetMine,
	)
	protected.Put("/teachers/profile",
		middleware.RequireRoles("teacher"),
		teacherH.UpdateMine,
	)

	conversations := protected.Group("/conversations")
	conversations.Post("/initiate", middleware.RequireRoles("student"), chatH.Initiate)
	conversations.Get("/", chatH.List)
	conversations.Get("/:id", chatH.Get)
	conversations.Get("/:id/messages", chatH.GetMessages)
	conversations.Post("/:id/messages", chatH.SendMessage)
	conversations.Put("/:id/messages/seen", chatH.MarkSeen)
	conversations.Put("/:id/status", chatH.UpdateStatus)
	conversations.Put("/:id/read", chatH.MarkRead)
	conversations.Put("/:id/archive", chatH.Archive)
	conversations.Delete("/:id", chatH.Delete)

	consultancies := protected.Group("/consultancies")
	consultancies.Post("/", middleware.RequireRoles("student"), consultancyH.Create)
	consultancies.Get("/", consultancyH.List)
	consultancies.Get("/:id", consultancyH.Get)
	consultancies.Put("/:id/confirm", middleware.RequireRoles("teacher"), consultancyH.Confirm)
	consultancies.Put("/:id/cancel", consultancyH.Cancel)
	consultancies.Put("/:id/complete", middleware.RequireRoles("teacher"), consultancyH.Complete)

	earnings := protected.Group("/earnings", middleware.RequireRoles("teacher"))
	earnings.Get("/summary", earningsH.Summary)
	earnings.Get("/", earningsH.List)
	earnings.Post("/settle", earningsH.Settle)

	protected.Post("/uploads", uploadH.Upload)

	// WebSocket endpoint; the token is validated inside the handshake so a
	// rejected connection gets an explicit error event before close.
	app.Get("/ws/chat", websocket.New(wsH.Handle))

	log.Fatal(app.Listen(":" + cfg.AppPort))
}
