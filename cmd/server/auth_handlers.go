package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/linkvault/internal/auth"
	"github.com/linkvault/internal/middleware"
	"github.com/linkvault/internal/models"
)

func handleRegister(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.UserCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		user, err := authService.Register(c.Request.Context(), &req)
		if err != nil {
			if errors.Is(err, auth.ErrUserExists) {
				c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register user"})
			return
		}

		token, session, err := authService.Issue(c.Request.Context(), user.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
			return
		}

		c.JSON(http.StatusCreated, models.UserLoginResponse{
			Token:          token,
			TokenExpiresAt: session.ExpiresAt,
			User:           user,
		})
	}
}

func handleLogin(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.UserLoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp, err := authService.Login(c.Request.Context(), &req)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to login"})
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func handleGetMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": middleware.CurrentUser(c)})
	}
}

func handleLogout(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := authService.Revoke(c.Request.Context(), middleware.BearerToken(c)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to logout"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "logged out"})
	}
}
