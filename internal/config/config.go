package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Server
	Port        int    `envconfig:"PORT" default:"3000"`
	Environment string `envconfig:"ENV" default:"development"`

	// Database
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Provider
	ProviderType    string        `envconfig:"PROVIDER_TYPE" default:"deepface"`
	DeepFaceURL     string        `envconfig:"DEEPFACE_URL" default:"http://localhost:5000"`
	DeepFaceModel   string        `envconfig:"DEEPFACE_MODEL" default:"ArcFace"`
	DeepFaceTimeout time.Duration `envconfig:"DEEPFACE_TIMEOUT" default:"30s"`
	DeepFaceRetries int           `envconfig:"DEEPFACE_RETRY_COUNT" default:"1"`
	DetectorBackend string        `envconfig:"DETECTOR_BACKEND" default:"opencv"`

	// Recognition
	KnownFacesDir       string  `envconfig:"KNOWN_FACES_DIR" default:"known_faces"`
	RegistryWorkers     int     `envconfig:"REGISTRY_WORKERS" default:"4"`
	MatchThreshold      float64 `envconfig:"MATCH_THRESHOLD" default:"0.42"`
	DistanceMetric      string  `envconfig:"DISTANCE_METRIC" default:"cosine"`
	MinAcceptConfidence float64 `envconfig:"MIN_ACCEPT_CONFIDENCE" default:"55"`
	DownsampleFactor    float64 `envconfig:"DOWNSAMPLE_FACTOR" default:"0.5"`

	// Camera / stream
	CameraBackend     string        `envconfig:"CAMERA_BACKEND" default:"ffmpeg"`
	CameraDevice      string        `envconfig:"CAMERA_DEVICE" default:"/dev/video0"`
	CameraFormat      string        `envconfig:"CAMERA_FORMAT" default:"v4l2"`
	CameraReadTimeout time.Duration `envconfig:"CAMERA_READ_TIMEOUT" default:"5s"`
	StreamMaxFPS      int           `envconfig:"STREAM_MAX_FPS" default:"10"`
	StreamJPEGQuality int           `envconfig:"STREAM_JPEG_QUALITY" default:"80"`

	// Attendance
	RecentIdentificationTTL time.Duration `envconfig:"RECENT_IDENTIFICATION_TTL" default:"15s"`
	AttendanceTimezone      string        `envconfig:"ATTENDANCE_TIMEZONE" default:"Local"`

	// Notifications
	MQTTBroker   string `envconfig:"MQTT_BROKER"`
	MQTTTopic    string `envconfig:"MQTT_TOPIC" default:"rollcall/attendance"`
	MQTTClientID string `envconfig:"MQTT_CLIENT_ID" default:"rollcall"`
	MQTTUsername string `envconfig:"MQTT_USERNAME"`
	MQTTPassword string `envconfig:"MQTT_PASSWORD"`

	WebhookURL    string `envconfig:"WEBHOOK_URL"`
	WebhookSecret string `envconfig:"WEBHOOK_SECRET"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the recognition settings that envconfig cannot express.
func (c *Config) Validate() error {
	var errs []error

	switch c.DistanceMetric {
	case "cosine", "euclidean":
	default:
		errs = append(errs, fmt.Errorf("DISTANCE_METRIC must be cosine or euclidean, got %q", c.DistanceMetric))
	}
	if c.MatchThreshold <= 0 {
		errs = append(errs, fmt.Errorf("MATCH_THRESHOLD must be positive, got %v", c.MatchThreshold))
	}
	if c.DownsampleFactor <= 0 || c.DownsampleFactor > 1 {
		errs = append(errs, fmt.Errorf("DOWNSAMPLE_FACTOR must be in (0, 1], got %v", c.DownsampleFactor))
	}
	if c.MinAcceptConfidence < 0 || c.MinAcceptConfidence > 100 {
		errs = append(errs, fmt.Errorf("MIN_ACCEPT_CONFIDENCE must be in [0, 100], got %v", c.MinAcceptConfidence))
	}
	if c.WebhookURL != "" && c.WebhookSecret == "" {
		errs = append(errs, errors.New("WEBHOOK_SECRET is required when WEBHOOK_URL is set"))
	}
	if _, err := time.LoadLocation(c.AttendanceTimezone); err != nil {
		errs = append(errs, fmt.Errorf("ATTENDANCE_TIMEZONE: %w", err))
	}

	return errors.Join(errs...)
}

// Location returns the timezone used to compute the attendance day.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.AttendanceTimezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
