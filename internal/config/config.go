package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. WHOME_DB_HOST.
const EnvPrefix = "WHOME"

// Surface names shipped with the default configuration.
const (
	SurfaceGreet    = "greet"
	SurfaceCheckout = "checkout"
)

type Config struct {
	Server       ServerConfig       `yaml:"server" envconfig:"SERVER"`
	Database     DatabaseConfig     `yaml:"database" envconfig:"DB"`
	NATS         NATSConfig         `yaml:"nats" envconfig:"NATS"`
	MinIO        MinIOConfig        `yaml:"minio" envconfig:"MINIO"`
	Vision       VisionConfig       `yaml:"vision" envconfig:"VISION"`
	Camera       CameraConfig       `yaml:"camera" envconfig:"CAMERA"`
	Scan         ScanConfig         `yaml:"scan" envconfig:"SCAN"`
	Registration RegistrationConfig `yaml:"registration" envconfig:"REGISTRATION"`
	Logging      LoggingConfig      `yaml:"logging" envconfig:"LOG"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
	// APIKey grants full access; KioskKey only reaches the device-facing routes.
	APIKey   string `yaml:"api_key" split_words:"true"`
	KioskKey string `yaml:"kiosk_key" split_words:"true"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns" split_words:"true"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key" split_words:"true"`
	SecretKey string `yaml:"secret_key" split_words:"true"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl" envconfig:"USE_SSL"`
}

type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir" split_words:"true"`
	ONNXLibPath        string  `yaml:"onnx_lib_path" envconfig:"ONNX_LIB_PATH"`
	DetectorModel      string  `yaml:"detector_model" split_words:"true"`
	EmbedderModel      string  `yaml:"embedder_model" split_words:"true"`
	EmbedderInput      string  `yaml:"embedder_input" split_words:"true"`
	EmbedderOutput     string  `yaml:"embedder_output" split_words:"true"`
	EmbedderSize       int     `yaml:"embedder_size" split_words:"true"`
	DetectionThreshold float64 `yaml:"detection_threshold" split_words:"true"`
	// RequireModel makes the API exit when the model cannot be loaded at startup.
	RequireModel bool `yaml:"require_model" split_words:"true"`
}

type CameraConfig struct {
	// Devices maps a camera id to an ffmpeg input (device path or stream URL).
	Devices      map[string]string `yaml:"devices"`
	InputFormat  string            `yaml:"input_format" split_words:"true"`
	Width        int               `yaml:"width"`
	Height       int               `yaml:"height"`
	FPS          int               `yaml:"fps"`
	StartTimeout time.Duration     `yaml:"start_timeout" split_words:"true"`
}

// SurfaceConfig parameterizes one scan surface (greeting kiosk, checkout gate).
type SurfaceConfig struct {
	TickInterval    time.Duration `yaml:"tick_interval"`
	ForgetDelay     time.Duration `yaml:"forget_delay"`
	MaxAttempts     int           `yaml:"max_attempts"`
	StopOnRecognize bool          `yaml:"stop_on_recognize"`
}

type ScanConfig struct {
	GalleryCacheSize int                      `yaml:"gallery_cache_size" split_words:"true"`
	Surfaces         map[string]SurfaceConfig `yaml:"surfaces" ignored:"true"`
}

type RegistrationConfig struct {
	WarnDuplicates bool `yaml:"warn_duplicates" split_words:"true"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from a YAML file and applies WHOME_* environment overrides.
// An empty path skips the file and builds the config from env and defaults only.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the scan loop cannot run with.
func (c *Config) Validate() error {
	for name, s := range c.Scan.Surfaces {
		if s.TickInterval <= 0 {
			return fmt.Errorf("surface %s: tick_interval must be positive", name)
		}
		if s.ForgetDelay < 0 {
			return fmt.Errorf("surface %s: forget_delay must not be negative", name)
		}
		if s.MaxAttempts < 0 {
			return fmt.Errorf("surface %s: max_attempts must not be negative", name)
		}
	}
	if c.Vision.EmbedderSize <= 0 {
		return fmt.Errorf("vision: embedder_size must be positive")
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "whome"
	}
	if cfg.Vision.ModelsDir == "" {
		cfg.Vision.ModelsDir = "models"
	}
	if cfg.Vision.DetectorModel == "" {
		cfg.Vision.DetectorModel = "det_10g.onnx"
	}
	if cfg.Vision.EmbedderModel == "" {
		cfg.Vision.EmbedderModel = "face_recognition_sface_2021dec.onnx"
	}
	if cfg.Vision.EmbedderInput == "" {
		cfg.Vision.EmbedderInput = "data"
	}
	if cfg.Vision.EmbedderOutput == "" {
		cfg.Vision.EmbedderOutput = "fc1"
	}
	if cfg.Vision.EmbedderSize == 0 {
		cfg.Vision.EmbedderSize = 112
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if len(cfg.Camera.Devices) == 0 {
		cfg.Camera.Devices = map[string]string{"default": "/dev/video0"}
	}
	if cfg.Camera.InputFormat == "" {
		cfg.Camera.InputFormat = "v4l2"
	}
	if cfg.Camera.Width == 0 {
		cfg.Camera.Width = 640
	}
	if cfg.Camera.Height == 0 {
		cfg.Camera.Height = 480
	}
	if cfg.Camera.FPS == 0 {
		cfg.Camera.FPS = 10
	}
	if cfg.Camera.StartTimeout == 0 {
		cfg.Camera.StartTimeout = 5 * time.Second
	}
	if cfg.Scan.GalleryCacheSize == 0 {
		cfg.Scan.GalleryCacheSize = 4096
	}
	if cfg.Scan.Surfaces == nil {
		cfg.Scan.Surfaces = make(map[string]SurfaceConfig)
	}
	if _, ok := cfg.Scan.Surfaces[SurfaceGreet]; !ok {
		cfg.Scan.Surfaces[SurfaceGreet] = SurfaceConfig{
			TickInterval: 2 * time.Second,
			ForgetDelay:  3 * time.Second,
			MaxAttempts:  10,
		}
	}
	if _, ok := cfg.Scan.Surfaces[SurfaceCheckout]; !ok {
		cfg.Scan.Surfaces[SurfaceCheckout] = SurfaceConfig{
			TickInterval:    1500 * time.Millisecond,
			ForgetDelay:     3 * time.Second,
			MaxAttempts:     5,
			StopOnRecognize: true,
		}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}
