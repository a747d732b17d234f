package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/account-api/internal/config"
	"github.com/yourusername/account-api/internal/handler"
	"github.com/yourusername/account-api/internal/middleware"
	pgRepo "github.com/yourusername/account-api/internal/repository/postgres"
	"github.com/yourusername/account-api/internal/service"
	"github.com/yourusername/account-api/pkg/auth"
	"github.com/yourusername/account-api/pkg/database"
	"github.com/yourusername/account-api/pkg/storage"
)

func main() {
	// Загружаем конфигурацию
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Загрузка конфигурации из %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к PostgreSQL
	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	// Применяем миграции
	if err := database.MigrateDB(db); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к Redis (используется для rate limiting)
	redisClient, err := database.NewUniversalRedisClient(cfg.Redis)
	if err != nil {
		log.Printf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	log.Println("Successfully connected to Redis")

	// Инициализируем репозитории
	userRepo := pgRepo.NewUserRepo(db)
	tokenRepo := pgRepo.NewEmailVerificationTokenRepo(db)

	sessionRepo, err := pgRepo.NewSessionRepo(db)
	if err != nil {
		log.Printf("Failed to initialize SessionRepo: %v", err)
		os.Exit(1)
	}

	// Инициализируем JWT сервис
	jwtService, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpirationHrs, cfg.App.Issuer)
	if err != nil {
		log.Printf("Failed to initialize JWTService: %v", err)
		os.Exit(1)
	}

	// Корневой контекст приложения, отменяется при завершении работы
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Объектное хранилище для аватаров (опционально)
	var objectStorage storage.ObjectStorage
	if cfg.Storage.Enabled {
		s3Store, errS3 := storage.NewS3Store(ctx, storage.S3Config{
			Region:          cfg.Storage.Region,
			Bucket:          cfg.Storage.Bucket,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			EndpointURL:     cfg.Storage.EndpointURL,
			PublicBaseURL:   cfg.Storage.PublicBaseURL,
		})
		if errS3 != nil {
			log.Printf("Failed to initialize object storage: %v", errS3)
			os.Exit(1)
		}
		objectStorage = s3Store
		log.Println("Объектное хранилище аватаров подключено")
	} else {
		log.Println("Объектное хранилище выключено, загрузка аватаров недоступна")
	}

	// Сервис отправки почты: Resend или noop-заглушка
	var emailService service.EmailService
	if cfg.Mail.Enabled {
		resendService, errMail := service.NewResendEmailService(cfg.Mail.ResendAPIKey, cfg.Mail.From)
		if errMail != nil {
			log.Printf("Failed to initialize ResendEmailService: %v", errMail)
			os.Exit(1)
		}
		emailService = resendService
	} else {
		log.Println("Отправка почты выключена, письма логируются вместо отправки")
		emailService = &service.NoopEmailService{}
	}

	// Инициализируем сервисы
	refreshTokenLifetime := time.Duration(cfg.Auth.RefreshTokenLifetime) * time.Hour

	authService, err := service.NewAuthService(
		userRepo,
		sessionRepo,
		jwtService,
		cfg.Auth.SessionLimit,
		refreshTokenLifetime,
		cfg.App.RegistrationEnabled,
	)
	if err != nil {
		log.Printf("Failed to initialize AuthService: %v", err)
		os.Exit(1)
	}

	verificationService, err := service.NewEmailVerificationService(
		userRepo,
		tokenRepo,
		emailService,
		cfg.Mail.Enabled,
		cfg.Mail.BaseURL,
		cfg.Mail.VerificationTTL,
		cfg.Mail.ResendCooldown,
	)
	if err != nil {
		log.Printf("Failed to initialize EmailVerificationService: %v", err)
		os.Exit(1)
	}
	authService.SetEmailVerificationService(verificationService)

	totpService := service.NewTOTPService(userRepo, cfg.App.Issuer, cfg.App.DemoMode)
	userService := service.NewUserService(userRepo, sessionRepo, objectStorage)

	// Фоновая очистка истекших сессий и токенов подтверждения email
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()

		log.Println("Запуск периодической очистки истекших сессий и токенов подтверждения (каждый час)")

		for {
			select {
			case <-ticker.C:
				if n, errClean := authService.CleanupExpiredSessions(); errClean != nil {
					log.Printf("Ошибка при очистке сессий: %v", errClean)
				} else if n > 0 {
					log.Printf("Удалено истекших сессий: %d", n)
				}
				if n, errClean := verificationService.CleanupExpired(); errClean != nil {
					log.Printf("Ошибка при очистке токенов подтверждения: %v", errClean)
				} else if n > 0 {
					log.Printf("Удалено истекших токенов подтверждения: %d", n)
				}
			case <-ctx.Done():
				log.Println("Завершение работы горутины очистки")
				return
			}
		}
	}()

	isProduction := gin.Mode() == gin.ReleaseMode

	// Инициализируем обработчики
	accessTokenLifetime := jwtService.TokenLifetime()
	authHandler := handler.NewAuthHandler(authService, verificationService, accessTokenLifetime, refreshTokenLifetime, isProduction)
	totpHandler := handler.NewTOTPHandler(totpService)
	userHandler := handler.NewUserHandler(userService, totpService)

	// Инициализируем middleware
	authMiddleware := middleware.NewAuthMiddleware(jwtService)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Инициализируем роутер Gin
	router := gin.Default()

	// Настройка доверенных прокси для корректной работы c.ClientIP()
	if isProduction {
		// Production: не доверять прокси-заголовкам
		// Если используете load balancer, замените nil на []string{"IP_БАЛАНСИРОВЩИКА"}
		if err := router.SetTrustedProxies(nil); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	} else {
		if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	}

	// Настройка CORS
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173", "http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Настраиваем маршруты API
	api := router.Group("/api")
	{
		// Аутентификация
		authGroup := api.Group("/auth")
		{
			strictLimit := rateLimiter.Limit(middleware.StrictAuthRateLimitConfig())
			defaultLimit := rateLimiter.Limit(middleware.DefaultAuthRateLimitConfig())
			mailLimit := rateLimiter.LimitByIP(middleware.MailRateLimitConfig())

			authGroup.POST("/register", strictLimit, authHandler.Register)
			authGroup.POST("/login", strictLimit, authHandler.Login)
			authGroup.POST("/refresh", defaultLimit, authHandler.RefreshToken)
			authGroup.POST("/verify-email", defaultLimit, authHandler.VerifyEmail)
			authGroup.POST("/verify-email/resend", mailLimit, authHandler.ResendVerificationEmail)

			// Маршруты, требующие аутентификации
			authedAuth := authGroup.Group("/")
			authedAuth.Use(authMiddleware.RequireAuth())
			{
				authedAuth.POST("/logout", authHandler.Logout)
				authedAuth.POST("/logout-all", authHandler.LogoutAllDevices)
				authedAuth.GET("/sessions", authHandler.GetActiveSessions)
				authedAuth.POST("/revoke-session", authHandler.RevokeSession)
				authedAuth.POST("/change-password", authHandler.ChangePassword)
			}
		}

		// Пользователи
		users := api.Group("/users")
		users.Use(authMiddleware.RequireAuth())
		{
			users.GET("/me", userHandler.GetMe)
			users.PUT("/me", userHandler.UpdateProfile)
			users.POST("/me/avatar", userHandler.UploadAvatar)
			users.DELETE("/me", userHandler.DeleteAccount)

			// Двухфакторная аутентификация
			otp := users.Group("/me/otp")
			otp.Use(rateLimiter.Limit(middleware.OtpRateLimitConfig()))
			{
				otp.POST("/generate", totpHandler.GenerateSecret)
				otp.POST("/verify", totpHandler.VerifyCode)
				otp.POST("/disable", totpHandler.Deactivate)
				otp.GET("/status", totpHandler.Status)
			}
		}
	}

	// Настраиваем HTTP сервер с тайм-аутами для защиты от slow client attacks
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Запускаем сервер в горутине
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Failed to start server: %v", err)
		}
	}()

	// После получения сигнала SIGINT или SIGTERM вызываем cancel() для завершения горутин
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	cancel()

	if err := redisClient.Close(); err != nil {
		log.Printf("Error closing Redis client: %v", err)
	}

	// Контекст с таймаутом для graceful shutdown сервера
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	log.Println("Server exited properly")
}
