package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/crossflow/configs"
	"github.com/maheshrc27/crossflow/internal/api/handlers"
	"github.com/maheshrc27/crossflow/internal/api/middleware"
	job "github.com/maheshrc27/crossflow/internal/jobs"
	"github.com/maheshrc27/crossflow/internal/metrics"
	"github.com/maheshrc27/crossflow/internal/models"
	"github.com/maheshrc27/crossflow/internal/queue"
	"github.com/maheshrc27/crossflow/internal/repository"
	"github.com/maheshrc27/crossflow/internal/service"
	"github.com/robfig/cron"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	m := metrics.New()

	userRepo := repository.NewUserRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	postRepo := repository.NewPostRepository(db)
	postStatusRepo := repository.NewPostStatusRepository(db)

	submitter := queue.NewClient(client)

	authService := service.NewAuthService(*cfg, userRepo)
	userService := service.NewUserService(userRepo)
	archiveService := service.NewArchiveService(*cfg)
	tokenService := service.NewTokenService(*cfg, accountRepo)
	platformService := service.NewPlatformService(*cfg, accountRepo)
	instagramService := service.NewInstagramService(*cfg, accountRepo, postRepo, postStatusRepo, tokenService, submitter, archiveService, m)
	twitterService := service.NewTwitterService(*cfg, accountRepo, tokenService)
	youtubeService := service.NewYoutubeService(*cfg, accountRepo, tokenService, service.NewVideoConverter())

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	auth := handlers.NewAuthHandler(*cfg, authService)
	app.Get("/login", auth.Login)
	app.Get("/login/callback", auth.LoginCallbackHandler)

	platform := handlers.NewPlatformHandler(platformService, instagramService, twitterService, youtubeService, *cfg)
	app.Get("/auth/:platform", platform.AddSocialAccount)
	app.Get("/auth/:platform/callback", platform.CallbackHandler)

	webhook := handlers.NewWebhookHandler(*cfg, instagramService)
	app.Get("/webhook/instagram", webhook.Verify)
	app.Post("/webhook/instagram", webhook.Receive)

	app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	user := handlers.NewUserHandler(userService)
	api.Get("/user/info", user.GetUserInfo)

	status := handlers.NewStatusHandler(postStatusRepo, submitter)
	api.Get("/statuses", status.ListStatuses)
	api.Post("/statuses/retry", status.RetryStatus)
	api.Post("/statuses/reset-stuck", status.ResetStuck)

	// connected accounts api routes
	api.Get("/accounts", platform.ListSocialAccounts)
	api.Post("/accounts/remove", platform.DeleteSocialAccount)

	// cron jobs
	recoveryJob := job.NewRecoveryJob(postStatusRepo, submitter, m)
	pollJob := job.NewPollJob(accountRepo, instagramService)
	refreshTokenJob := job.NewTokenRefreshJob(accountRepo, tokenService)

	cronHandler := handlers.NewCronHandler(recoveryJob, pollJob)
	app.Post("/cron/run", cronHandler.Run)
	app.Post("/cron/sweep", cronHandler.RunSweep)
	app.Post("/cron/poll", cronHandler.RunPoll)

	// queue
	publishers := map[string]service.Publisher{
		models.PlatformTwitter: twitterService,
		models.PlatformYoutube: youtubeService,
	}
	queueW := queue.NewQueue(postStatusRepo, postRepo, accountRepo, publishers, m)

	c := cron.New()
	c.AddFunc("@every 00h01m00s", recoveryJob.Run)
	c.AddFunc("@every 00h05m00s", pollJob.Run)
	c.AddFunc("@every 00h10m00s", refreshTokenJob.RefreshTokens)
	c.Start()

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: 10,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypeExecuteStatus, queueW.HandleExecuteStatusTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Server is running on http://localhost:3000")

	gracefulShutdown(app, db)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
