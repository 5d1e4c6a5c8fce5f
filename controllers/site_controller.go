package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/aiblog/config"
	"github.com/cppla/aiblog/models"
	"github.com/cppla/aiblog/utils"
)

// SiteController serves public settings the front end needs before login.
type SiteController struct {
	cfg *config.AppConfig
}

func NewSiteController(cfg *config.AppConfig) *SiteController { return &SiteController{cfg: cfg} }

// GetSite returns URLs and upload limits.
func (c *SiteController) GetSite(ctx *gin.Context) {
	providers := []string{}
	if c.cfg.GitHubClientID != "" {
		providers = append(providers, "github")
	}
	if c.cfg.GoogleClientID != "" {
		providers = append(providers, "google")
	}
	utils.Success(ctx, gin.H{
		"backUrl":         c.cfg.SiteBackURL,
		"frontUrl":        c.cfg.SiteFrontURL,
		"defaultImgUrl":   c.cfg.DefaultImgURL,
		"maxUploadSizeMb": c.cfg.MaxUploadSizeMB,
		"genFileTypes":    []string{models.GenFileTypeAttachment, models.GenFileTypeThumbnail},
		"oauthProviders":  providers,
	})
}
