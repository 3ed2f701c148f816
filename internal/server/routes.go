// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"log/slog"

	"codeberg.org/oliverandrich/careerhub/internal/config"
	"codeberg.org/oliverandrich/careerhub/internal/handlers"
	appmw "codeberg.org/oliverandrich/careerhub/internal/middleware"
	"codeberg.org/oliverandrich/careerhub/internal/ratelimit"
	"codeberg.org/oliverandrich/careerhub/internal/repository"
	"github.com/labstack/echo/v4"
)

func setupRoutes(e *echo.Echo, repo *repository.Repository, svc *services, cfg *config.Config, logger *slog.Logger) {
	h := handlers.New(repo)
	authH := handlers.NewAuthHandlers(svc.auth, svc.otp, svc.reset, svc.sessions, logger)

	limit := func(name string) echo.MiddlewareFunc {
		return ratelimit.Middleware(svc.limiter, ratelimit.Rule{
			Name:       name,
			Key:        ratelimit.KeyByIPAndJSONField("email"),
			FailClosed: cfg.Redis.RateFailClose,
		}, logger)
	}

	e.GET("/health", h.Health)

	api := e.Group("/api")
	api.GET("/csrf", svc.csrf.Handler)

	authGroup := api.Group("/auth")
	authGroup.POST("/register", authH.Register, limit("register"))
	authGroup.POST("/send-otp", authH.SendOTP, limit("send-otp"))
	authGroup.POST("/verify-otp", authH.VerifyOTP, limit("verify-otp"))
	authGroup.POST("/login", authH.Login, limit("login"))
	authGroup.POST("/logout", authH.Logout)
	authGroup.POST("/forgot-password", authH.ForgotPassword, limit("forgot-password"))
	authGroup.POST("/reset-password", authH.ResetPassword, limit("reset-password"))

	profile := api.Group("/profile", appmw.RequireAuth)
	profile.GET("", h.Profile)
	profile.PUT("", h.UpdateProfile)
}
