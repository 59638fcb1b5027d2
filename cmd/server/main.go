package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"authsvc/internal/config"
	"authsvc/internal/controllers"
	"authsvc/internal/db"
	"authsvc/internal/middleware"
	"authsvc/internal/oauthstate"
	"authsvc/internal/redis"
	"authsvc/internal/store"
	"authsvc/internal/token"
	"authsvc/internal/utils"
)

// How long an in-flight OAuth login may sit before its state expires.
const oauthStateTTL = 15 * time.Minute

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	dbConn, err := db.Open(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal(err)
	}
	users := store.New(dbConn)

	rdb, err := redis.Connect(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Fatal(err)
	}
	states := oauthstate.New(rdb, oauthStateTTL)

	mailer := utils.NewSMTPClient(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.FromEmail)
	tokens := token.NewManager(cfg.JWTSecret, cfg.AccessTokenTTLMin)

	auth := controllers.NewAuthController(users, mailer, tokens, log, cfg)
	oauth := controllers.NewGoogleController(users, states, tokens, log, cfg)

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	usersGroup := r.Group("/users")
	{
		usersGroup.POST("/register", auth.Register)
		usersGroup.GET("/verify-email", auth.VerifyEmail)
		usersGroup.POST("/login", auth.Login)
		usersGroup.POST("/logout", auth.Logout)
	}

	protected := r.Group("/users")
	protected.Use(middleware.Auth(tokens))
	{
		protected.GET("/me", auth.Me)
	}

	google := r.Group("/auth/google")
	{
		google.GET("/login", oauth.Login)
		google.GET("/callback", oauth.Callback)
		google.GET("/logout", oauth.Logout)
	}

	log.WithField("port", cfg.Port).Info("server starting")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal(err)
	}
}
