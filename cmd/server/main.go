package main

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Dhairya-Sondhi/CodeLab-IDE/auth"
	"github.com/Dhairya-Sondhi/CodeLab-IDE/collab"
	"github.com/Dhairya-Sondhi/CodeLab-IDE/crypto"
	"github.com/Dhairya-Sondhi/CodeLab-IDE/executor"
	"github.com/Dhairya-Sondhi/CodeLab-IDE/migrations"
	"github.com/Dhairya-Sondhi/CodeLab-IDE/shared/configs"
	"github.com/Dhairya-Sondhi/CodeLab-IDE/shared/logger"
	"github.com/Dhairya-Sondhi/CodeLab-IDE/storage"
)

const cookieMaxAge = 7 * 24 * time.Hour

// CreateServer builds the engine with the health probe and origin policy.
// The health route is registered before the origin guard so probes without
// an Origin header stay reachable.
func CreateServer(allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(ctx *gin.Context) { ctx.String(http.StatusOK, "healthy") })

	r.Use(func(ctx *gin.Context) {
		origin := ctx.Request.Header.Get("Origin")

		if origin == "" || slices.Contains(allowedOrigins, origin) {
			ctx.Next()
			return
		}
		ctx.String(http.StatusForbidden, "forbidden origin")
		ctx.Abort()
	})

	r.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowCredentials: true,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Origin",
			"Upgrade",
			"Connection",
			"Sec-WebSocket-Key",
			"Sec-WebSocket-Version",
			"Sec-WebSocket-Extensions",
			"Sec-WebSocket-Protocol",
		},
	}))

	return r
}

func main() {
	logger.Setup(configs.Envs.GIN_MODE != "release")

	if err := migrations.Migrate(configs.Envs.POSTGRES_URL); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	repo, err := storage.NewPostgresRepo(context.Background(), configs.Envs.POSTGRES_URL)
	if err != nil {
		log.Fatal().Err(err).Msg("couldn't connect to postgres")
	}
	defer repo.Close()

	tokenManager := crypto.NewJWTManager(configs.Envs.JWT_KEY, cookieMaxAge)
	passwordHasher := crypto.NewArgon2idHasher(3, 64*1024, 32, 16, 2)
	authService := auth.NewService(repo, passwordHasher, tokenManager)
	authHandler := auth.NewAuthHandler(authService, cookieMaxAge)

	registry := collab.NewRegistry(repo)
	collabService := collab.NewService(registry)

	allowedOrigins := []string{}
	if configs.Envs.GIN_MODE == "release" {
		gin.SetMode(gin.ReleaseMode)
		allowedOrigins = append(allowedOrigins, "https://"+configs.Envs.FRONTEND_ORIGIN)
		allowedOrigins = append(allowedOrigins, "https://www."+configs.Envs.FRONTEND_ORIGIN)
	} else {
		allowedOrigins = append(allowedOrigins, "http://"+configs.Envs.FRONTEND_ORIGIN)
	}

	checkOrigin := func(req *http.Request) bool {
		origin := req.Header.Get("Origin")
		return origin == "" || slices.Contains(allowedOrigins, origin)
	}

	collabHandler := collab.NewHandler(collabService, tokenManager, repo, checkOrigin)

	runner := executor.NewClient(configs.Envs.EXECUTOR_URL, configs.Envs.EXECUTOR_API_KEY)
	executorHandler := executor.NewHandler(runner)

	r := CreateServer(allowedOrigins)

	auth.RegisterRoute(r, authHandler)
	collab.RegisterRoute(r, collabHandler)
	executor.RegisterRoute(r, executorHandler)

	port := configs.Envs.PORT
	if port == "" {
		port = "3001"
	}

	log.Info().Str("port", port).Msg("api listening")
	if err := r.Run(":" + port); err != nil {
		log.Fatal().Err(err).Msg("couldn't start server")
	}
}
