// Package config loads the pipeline configuration from an optional YAML file
// and environment overrides. The result is passed explicitly into every run;
// nothing reads configuration from globals after startup.
package config

import (
	"bytes"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"postcraft/internal/layout"
	"postcraft/internal/pkg/errors"
)

type Config struct {
	HTTP        HTTPConfig     `yaml:"http"`
	Canvas      CanvasConfig   `yaml:"canvas"`
	Layout      LayoutConfig   `yaml:"layout"`
	Publish     PublishConfig  `yaml:"publish"`
	Storage     StorageConfig  `yaml:"storage"`
	Manifest    ManifestConfig `yaml:"manifest"`
	Queue       QueueConfig    `yaml:"queue"`
	History     HistoryConfig  `yaml:"history"`
	DatabaseURL string         `yaml:"database_url"`
}

type HTTPConfig struct {
	Port        string   `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type CanvasConfig struct {
	Width       int `yaml:"width"`
	Height      int `yaml:"height"`
	JPEGQuality int `yaml:"jpeg_quality"`
	// FontPath overrides the bundled bold face with a TTF/OTF file.
	FontPath string `yaml:"font_path"`
}

type LayoutConfig struct {
	StartFontPx float64 `yaml:"start_font_px"`
	MinFontPx   float64 `yaml:"min_font_px"`
	StepPx      float64 `yaml:"step_px"`
	LineSpacing float64 `yaml:"line_spacing"`
	// WidthRatio and HeightRatio size the text box relative to the canvas.
	WidthRatio  float64 `yaml:"width_ratio"`
	HeightRatio float64 `yaml:"height_ratio"`
}

type PublishConfig struct {
	Folder       string        `yaml:"folder"`
	Delay        time.Duration `yaml:"delay"`
	Concurrency  int           `yaml:"concurrency"`
	Timeout      time.Duration `yaml:"timeout"`
	CacheControl string        `yaml:"cache_control"`
}

type StorageConfig struct {
	// Provider is localfs, gcs or gdrive. Empty means not configured.
	Provider string `yaml:"provider"`

	LocalRoot    string `yaml:"local_root"`
	LocalBaseURL string `yaml:"local_base_url"`

	GCSBucket            string `yaml:"gcs_bucket"`
	GCSBaseURL           string `yaml:"gcs_base_url"`
	GCSCredentialsFile   string `yaml:"gcs_credentials_file"`
	GCSCredentialsBase64 string `yaml:"-"`
	GCSPublicRead        bool   `yaml:"gcs_public_read"`

	DriveClientID     string `yaml:"drive_client_id"`
	DriveClientSecret string `yaml:"-"`
	DriveRefreshToken string `yaml:"-"`
	DriveFolderID     string `yaml:"drive_folder_id"`
	DrivePublic       bool   `yaml:"drive_public"`
}

type ManifestConfig struct {
	IncludeLink  string `yaml:"include_link"`
	PostType     string `yaml:"post_type"`
	Link         string `yaml:"link"`
	FirstComment string `yaml:"first_comment"`
}

type QueueConfig struct {
	RedisAddr string `yaml:"redis_addr"`
	Name      string `yaml:"name"`
}

type HistoryConfig struct {
	// Backend is memory, redis or postgres.
	Backend string `yaml:"backend"`
	// TTL bounds how long redis keeps run records. Zero keeps them forever.
	TTL time.Duration `yaml:"ttl"`
}

// Default returns the production defaults.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{Port: "8080", CORSOrigins: []string{"*"}},
		Canvas: CanvasConfig{
			Width:       1080,
			Height:      1350,
			JPEGQuality: 92,
		},
		Layout: LayoutConfig{
			StartFontPx: 64,
			MinFontPx:   40,
			StepPx:      layout.DefaultStepPx,
			LineSpacing: layout.DefaultLineSpacing,
			WidthRatio:  0.88,
			HeightRatio: 0.75,
		},
		Publish: PublishConfig{
			Folder:       "facebook-captions",
			Delay:        300 * time.Millisecond,
			Concurrency:  1,
			Timeout:      60 * time.Second,
			CacheControl: "public, max-age=31536000",
		},
		Storage: StorageConfig{
			LocalRoot: "./data",
		},
		Manifest: ManifestConfig{
			IncludeLink: "No",
			PostType:    "Feed",
		},
		Queue: QueueConfig{
			RedisAddr: "localhost:6379",
			Name:      "postcraft:batches",
		},
		History: HistoryConfig{Backend: "memory"},
	}
}

// Load reads path (optional), applies environment overrides and validates.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "config.load", "read config file")
		}
		if err := decode(bytes.NewReader(raw), &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return errors.WrapWithCode(err, errors.CodeValidation, "config.load", "parse config file")
	}
	return nil
}

// applyEnv overlays environment variables. Secrets are only ever read from
// the environment.
func (c *Config) applyEnv() {
	c.HTTP.Port = Env("HTTP_PORT", c.HTTP.Port)
	c.DatabaseURL = Env("DATABASE_URL", c.DatabaseURL)

	c.Canvas.FontPath = Env("CANVAS_FONT_PATH", c.Canvas.FontPath)
	c.Canvas.JPEGQuality = IntEnv("CANVAS_JPEG_QUALITY", c.Canvas.JPEGQuality)

	c.Publish.Folder = Env("PUBLISH_FOLDER", c.Publish.Folder)
	c.Publish.Delay = DurationEnv("PUBLISH_DELAY", c.Publish.Delay)
	c.Publish.Concurrency = IntEnv("PUBLISH_CONCURRENCY", c.Publish.Concurrency)
	c.Publish.Timeout = DurationEnv("PUBLISH_TIMEOUT", c.Publish.Timeout)

	s := &c.Storage
	s.Provider = Env("STORAGE_PROVIDER", s.Provider)
	s.LocalRoot = Env("STORAGE_LOCAL_ROOT", s.LocalRoot)
	s.LocalBaseURL = Env("STORAGE_LOCAL_BASE_URL", s.LocalBaseURL)
	s.GCSBucket = Env("GOOGLE_CLOUD_STORAGE_BUCKET", s.GCSBucket)
	s.GCSCredentialsFile = Env("GOOGLE_APPLICATION_CREDENTIALS", s.GCSCredentialsFile)
	s.GCSCredentialsBase64 = Env("GOOGLE_APPLICATION_CREDENTIALS_BASE64", s.GCSCredentialsBase64)
	s.GCSPublicRead = BoolEnv("GCS_PUBLIC_READ", s.GCSPublicRead)
	s.DriveClientID = Env("GDRIVE_CLIENT_ID", s.DriveClientID)
	s.DriveClientSecret = Env("GDRIVE_CLIENT_SECRET", s.DriveClientSecret)
	s.DriveRefreshToken = Env("GDRIVE_REFRESH_TOKEN", s.DriveRefreshToken)
	s.DriveFolderID = Env("GDRIVE_FOLDER_ID", s.DriveFolderID)
	s.DrivePublic = BoolEnv("GDRIVE_PUBLIC", s.DrivePublic)

	c.Queue.RedisAddr = Env("REDIS_ADDR", c.Queue.RedisAddr)
	c.Queue.Name = Env("JOB_QUEUE_NAME", c.Queue.Name)
	c.History.Backend = Env("HISTORY_BACKEND", c.History.Backend)
}

// Validate rejects configurations no run could succeed with. A missing
// storage provider is not an error here; it is reported when a batch asks
// to publish.
func (c Config) Validate() error {
	switch {
	case c.Canvas.Width <= 0 || c.Canvas.Height <= 0:
		return errors.ValidationField("canvas", "canvas size must be positive")
	case c.Canvas.JPEGQuality < 1 || c.Canvas.JPEGQuality > 100:
		return errors.ValidationField("canvas.jpeg_quality", "quality must be within 1..100")
	case c.Layout.MinFontPx <= 0 || c.Layout.MinFontPx > c.Layout.StartFontPx:
		return errors.ValidationField("layout.min_font_px", "min font must be positive and not exceed start font")
	case c.Layout.StepPx <= 0 || c.Layout.LineSpacing <= 0:
		return errors.ValidationField("layout", "step and line spacing must be positive")
	case c.Layout.WidthRatio <= 0 || c.Layout.WidthRatio > 1 || c.Layout.HeightRatio <= 0 || c.Layout.HeightRatio > 1:
		return errors.ValidationField("layout", "box ratios must be within (0,1]")
	case c.Publish.Concurrency < 1:
		return errors.ValidationField("publish.concurrency", "concurrency must be at least 1")
	case c.Publish.Delay < 0 || c.Publish.Timeout <= 0:
		return errors.ValidationField("publish", "delay must be >= 0 and timeout > 0")
	}

	switch c.History.Backend {
	case "memory", "redis", "postgres":
	default:
		return errors.ValidationField("history.backend", "unknown history backend "+c.History.Backend)
	}
	switch c.Storage.Provider {
	case "", "localfs", "gcs", "gdrive":
	default:
		return errors.ValidationField("storage.provider", "unknown storage provider "+c.Storage.Provider)
	}
	return nil
}

// LayoutOptions derives the text box from the canvas size.
func (c Config) LayoutOptions() layout.Options {
	return layout.Options{
		MaxWidthPx:      float64(c.Canvas.Width) * c.Layout.WidthRatio,
		MaxHeightPx:     float64(c.Canvas.Height) * c.Layout.HeightRatio,
		StartFontSizePx: c.Layout.StartFontPx,
		MinFontSizePx:   c.Layout.MinFontPx,
		StepPx:          c.Layout.StepPx,
		LineSpacing:     c.Layout.LineSpacing,
	}
}
