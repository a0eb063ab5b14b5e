package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/linkvault/internal/config"
	"github.com/linkvault/internal/middleware"
	"github.com/linkvault/internal/models"
	"github.com/linkvault/internal/share"
)

func handleUploadText(shareService *share.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.CreateTextShareRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		created, err := shareService.CreateText(c.Request.Context(), middleware.CurrentUser(c), req.Text, share.CreateOptions{
			Password:  req.Password,
			OneShot:   req.OneTime,
			ViewLimit: req.MaxViews,
			ExpiresAt: req.ExpiresAt,
			OwnerOnly: req.OwnerOnly,
		})
		if err != nil {
			respondCreateError(c, err)
			return
		}

		c.JSON(http.StatusCreated, createResponse(created))
	}
}

func handleUploadFile(shareService *share.Service, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no file uploaded"})
			return
		}
		if fileHeader.Size > cfg.Shares.MaxUploadSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file too large"})
			return
		}

		contentType := fileHeader.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		if !mimeTypeAllowed(contentType, cfg.Shares.AllowedMimeTypes) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file type not allowed"})
			return
		}

		opts, err := formCreateOptions(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		f, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
			return
		}
		defer f.Close()

		created, err := shareService.CreateFile(c.Request.Context(), middleware.CurrentUser(c), share.FileUpload{
			Reader:      f,
			Size:        fileHeader.Size,
			FileName:    fileHeader.Filename,
			ContentType: contentType,
		}, opts)
		if err != nil {
			respondCreateError(c, err)
			return
		}

		c.JSON(http.StatusCreated, createResponse(created))
	}
}

func handleCheckShare(shareService *share.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp, err := shareService.Check(c.Request.Context(), middleware.CurrentUser(c), c.Param("shareId"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "check failed"})
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func handleAccessShare(shareService *share.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.AccessShareRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, err := shareService.Consume(c.Request.Context(), middleware.CurrentUser(c), c.Param("shareId"), req.Password)
		if err != nil {
			respondAccessError(c, err)
			return
		}

		sh := result.Share
		body := gin.H{
			"share_id":   sh.ID,
			"kind":       sh.Kind,
			"owner_only": sh.OwnerOnly,
			"one_time":   sh.OneShot,
			"views":      result.ViewCount,
			"max_views":  sh.ViewLimit,
			"expires_at": sh.ExpiresAt,
			"created_at": sh.CreatedAt,
		}
		if sh.Kind == models.ShareKindText {
			body["content"] = result.Content
		} else {
			body["file_name"] = sh.FileName
			body["file_size"] = sh.FileSize
			body["content_type"] = sh.ContentType
			body["download_url"] = result.DownloadURL
		}
		c.JSON(http.StatusOK, body)
	}
}

func handleDownloadShare(shareService *share.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		download, err := shareService.RedeemDownload(c.Request.Context(), c.Param("shareId"), c.Query("token"))
		if err != nil {
			respondDownloadError(c, err)
			return
		}
		// Close runs the deferred teardown even when the transfer errors
		// partway through.
		defer download.Close()

		headers := map[string]string{
			"Content-Disposition": fmt.Sprintf("attachment; filename=%q", download.FileName),
		}
		c.DataFromReader(http.StatusOK, download.Size, download.ContentType, download, headers)
	}
}

func handleDeleteShare(shareService *share.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		deleteToken := c.GetHeader("X-Delete-Token")
		if deleteToken == "" {
			deleteToken = c.Query("deleteToken")
		}

		err := shareService.DeleteByCapability(c.Request.Context(), middleware.CurrentUser(c), c.Param("shareId"), deleteToken)
		if err != nil {
			switch {
			case errors.Is(err, share.ErrShareNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "share not found"})
			case errors.Is(err, share.ErrOwnerRequired):
				c.JSON(http.StatusForbidden, gin.H{"error": "only the owner can delete this share"})
			case errors.Is(err, share.ErrBadDeleteToken):
				c.JSON(http.StatusForbidden, gin.H{"error": "invalid delete token"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "deleted successfully"})
	}
}

func handleMyShares(shareService *share.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		shares, err := shareService.ListByOwner(c.Request.Context(), middleware.CurrentUser(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load shares"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"shares": shares})
	}
}

// formCreateOptions parses the multipart gating fields shared with the text
// upload's JSON body.
func formCreateOptions(c *gin.Context) (share.CreateOptions, error) {
	opts := share.CreateOptions{
		Password:  c.PostForm("password"),
		OneShot:   parseFormBool(c.PostForm("one_time")),
		OwnerOnly: parseFormBool(c.PostForm("owner_only")),
	}

	if raw := c.PostForm("max_views"); raw != "" {
		maxViews, err := strconv.Atoi(raw)
		if err != nil {
			return opts, share.ErrInvalidViewLimit
		}
		opts.ViewLimit = &maxViews
	}
	if raw := c.PostForm("expires_at"); raw != "" {
		expiresAt, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return opts, share.ErrInvalidExpiry
		}
		opts.ExpiresAt = &expiresAt
	}
	return opts, nil
}

func parseFormBool(raw string) bool {
	return raw == "true" || raw == "1" || raw == "on"
}

func mimeTypeAllowed(contentType string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, mt := range allowed {
		if mt == contentType {
			return true
		}
	}
	return false
}

func createResponse(sh *models.Share) models.CreateShareResponse {
	return models.CreateShareResponse{
		ShareID:     sh.ID,
		DeleteToken: sh.DeleteToken,
		FileName:    sh.FileName,
		FileSize:    sh.FileSize,
		OwnerOnly:   sh.OwnerOnly,
		ExpiresAt:   sh.ExpiresAt,
	}
}

func respondCreateError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, share.ErrLoginRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "login required for owner-only share"})
	case errors.Is(err, share.ErrEmptyContent),
		errors.Is(err, share.ErrInvalidExpiry),
		errors.Is(err, share.ErrInvalidViewLimit):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
	}
}

func respondAccessError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, share.ErrShareNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "share not found"})
	case errors.Is(err, share.ErrOwnerRequired):
		c.JSON(http.StatusForbidden, gin.H{"error": "authentication required for this share"})
	case errors.Is(err, share.ErrExpired):
		c.JSON(http.StatusGone, gin.H{"error": "share expired"})
	case errors.Is(err, share.ErrExhausted):
		c.JSON(http.StatusGone, gin.H{"error": "max views reached"})
	case errors.Is(err, share.ErrBadSecret):
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid password"})
	case errors.Is(err, share.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "concurrent access, retry"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve share"})
	}
}

func respondDownloadError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, share.ErrShareNotFound), errors.Is(err, share.ErrBadToken):
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid download link"})
	case errors.Is(err, share.ErrExpired):
		c.JSON(http.StatusGone, gin.H{"error": "share expired"})
	case errors.Is(err, share.ErrTokenExpired):
		c.JSON(http.StatusGone, gin.H{"error": "download token expired"})
	case errors.Is(err, share.ErrUnavailable):
		c.JSON(http.StatusGone, gin.H{"error": "file unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "download failed"})
	}
}
