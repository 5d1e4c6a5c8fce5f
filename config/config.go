package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig holds the application configuration. It is built once by Load and
// handed to every component that needs it.
// Sensitive data should never have defaults inside code and must be provided via the config file or the environment.
type AppConfig struct {
	AppPort                  string
	Env                      string
	JWTSecret                string
	AccessTokenExpireSeconds int
	RateLimitPerMinute       int
	AllowedOrigins           []string
	AdminUsernames           []string
	// Site
	SiteBackURL   string
	SiteFrontURL  string
	CookieDomain  string
	DefaultImgURL string
	// Generated files
	GenFileDir           string
	TempDir              string
	MaxUploadSizeMB      int
	StagedFileTTLMinutes int
	// Database
	DBDriver    string
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	// Redis for caching and oauth state
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// OAuth
	GitHubClientID     string
	GitHubClientSecret string
	GoogleClientID     string
	GoogleClientSecret string
	OAuthRedirectBase  string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

// EnvPrefix prefixes every environment override, e.g. BLOG_APP_JWTSECRET.
const EnvPrefix = "BLOG"

// Load reads configuration from path (JSON, grouped sections), applies defaults
// for missing values and overrides from the environment.
// A missing file is fine; an invalid one is not.
func Load(path string) (*AppConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Well known names kept for deployments that already export them.
	_ = v.BindEnv("app.JWTSecret", EnvPrefix+"_APP_JWTSECRET", "JWT_SECRET")
	_ = v.BindEnv("app.AppPort", EnvPrefix+"_APP_APPPORT", "APP_PORT")
	_ = v.BindEnv("database.DatabaseURI", EnvPrefix+"_DATABASE_DATABASEURI", "DATABASE_URI")

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &AppConfig{
		AppPort:                  v.GetString("app.AppPort"),
		Env:                      strings.ToLower(v.GetString("app.Env")),
		JWTSecret:                v.GetString("app.JWTSecret"),
		AccessTokenExpireSeconds: v.GetInt("app.AccessTokenExpireSeconds"),
		RateLimitPerMinute:       v.GetInt("app.RateLimitPerMinute"),
		AllowedOrigins:           v.GetStringSlice("app.AllowedOrigins"),
		AdminUsernames:           v.GetStringSlice("app.AdminUsernames"),

		SiteBackURL:   strings.TrimRight(v.GetString("site.BackURL"), "/"),
		SiteFrontURL:  strings.TrimRight(v.GetString("site.FrontURL"), "/"),
		CookieDomain:  v.GetString("site.CookieDomain"),
		DefaultImgURL: v.GetString("site.DefaultImgURL"),

		GenFileDir:           v.GetString("genFile.Dir"),
		TempDir:              v.GetString("genFile.TempDir"),
		MaxUploadSizeMB:      v.GetInt("genFile.MaxUploadSizeMB"),
		StagedFileTTLMinutes: v.GetInt("genFile.StagedFileTTLMinutes"),

		DBDriver:    strings.ToLower(v.GetString("database.Driver")),
		DatabaseURI: v.GetString("database.DatabaseURI"),
		DBHost:      v.GetString("database.DBHost"),
		DBPort:      v.GetString("database.DBPort"),
		DBUser:      v.GetString("database.DBUser"),
		DBPassword:  v.GetString("database.DBPassword"),
		DBName:      v.GetString("database.DBName"),

		RedisHost:     v.GetString("redis.RedisHost"),
		RedisPort:     v.GetInt("redis.RedisPort"),
		RedisDB:       v.GetInt("redis.RedisDB"),
		RedisPassword: v.GetString("redis.RedisPassword"),

		GitHubClientID:     v.GetString("oauth.GitHubClientID"),
		GitHubClientSecret: v.GetString("oauth.GitHubClientSecret"),
		GoogleClientID:     v.GetString("oauth.GoogleClientID"),
		GoogleClientSecret: v.GetString("oauth.GoogleClientSecret"),
		OAuthRedirectBase:  strings.TrimRight(v.GetString("oauth.RedirectBase"), "/"),

		GinMode: v.GetString("gin.Mode"),
		GinPath: v.GetString("gin.LogPath"),

		LogLevel:      v.GetString("log.Level"),
		LogPath:       v.GetString("log.Path"),
		LogMaxSizeMB:  v.GetInt("log.MaxSizeMB"),
		LogMaxBackups: v.GetInt("log.MaxBackups"),
		LogMaxAgeDays: v.GetInt("log.MaxAgeDays"),
		LogCompress:   v.GetBool("log.Compress"),
	}
	if cfg.OAuthRedirectBase == "" {
		cfg.OAuthRedirectBase = cfg.SiteBackURL
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("app.JWTSecret (or JWT_SECRET) must be set")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.AppPort", "8080")
	v.SetDefault("app.Env", "dev")
	v.SetDefault("app.AccessTokenExpireSeconds", 60*20)
	v.SetDefault("app.RateLimitPerMinute", 120)
	v.SetDefault("app.AllowedOrigins", []string{"http://localhost:3000"})
	v.SetDefault("app.AdminUsernames", []string{"admin"})

	v.SetDefault("site.BackURL", "http://localhost:8080")
	v.SetDefault("site.FrontURL", "http://localhost:3000")
	v.SetDefault("site.CookieDomain", "localhost")
	v.SetDefault("site.DefaultImgURL", "https://placehold.co/640x640?text=O_O")

	v.SetDefault("genFile.Dir", "./data/gen")
	v.SetDefault("genFile.TempDir", "./data/tmp")
	v.SetDefault("genFile.MaxUploadSizeMB", 50)
	v.SetDefault("genFile.StagedFileTTLMinutes", 60)

	v.SetDefault("database.Driver", "mysql")
	v.SetDefault("database.DBHost", "127.0.0.1")
	v.SetDefault("database.DBPort", "3306")
	v.SetDefault("database.DBName", "blog")

	v.SetDefault("redis.RedisPort", 6379)

	v.SetDefault("gin.Mode", "release")
	v.SetDefault("gin.LogPath", "logs/gin.log")

	v.SetDefault("log.Level", "info")
	v.SetDefault("log.Path", "logs/app.log")
	v.SetDefault("log.MaxSizeMB", 100)
	v.SetDefault("log.MaxBackups", 3)
	v.SetDefault("log.MaxAgeDays", 7)
}

// IsProd reports whether the application runs in production.
func (c *AppConfig) IsProd() bool {
	return c.Env == "prod"
}

// IsAdminUsername reports whether username is configured as an administrator.
func (c *AppConfig) IsAdminUsername(username string) bool {
	if username == "" {
		return false
	}
	for _, u := range c.AdminUsernames {
		if strings.EqualFold(strings.TrimSpace(u), username) {
			return true
		}
	}
	return false
}

// AccessTokenTTL returns the access token lifetime.
func (c *AppConfig) AccessTokenTTL() time.Duration {
	if c.AccessTokenExpireSeconds <= 0 {
		return 20 * time.Minute
	}
	return time.Duration(c.AccessTokenExpireSeconds) * time.Second
}

// MaxUploadBytes returns the upload size limit in bytes.
func (c *AppConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadSizeMB) * 1024 * 1024
}
