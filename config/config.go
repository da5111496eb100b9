package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by all validation errors.
var ErrInvalid = errors.New("config: invalid")

// Config is the editor configuration.
type Config struct {
	// BrushRadius scales the pick radius of the brush, in world units.
	BrushRadius float32 `yaml:"brushRadius" validate:"gte=0.1,lte=5"`
	// PointSize is the rendered point size.
	PointSize float32 `yaml:"pointSize" validate:"gte=0.01,lte=5"`
	// PixelStep thins rendering to every n-th point.
	PixelStep int `yaml:"pixelStep" validate:"gte=1,lte=16"`
	// CameraFarMultiplier scales the far clipping plane of the framed camera.
	CameraFarMultiplier float32 `yaml:"cameraFarMultiplier" validate:"gte=0.5,lte=10"`

	// CameraThreshold is the loaded point count that triggers framing.
	CameraThreshold int `yaml:"cameraThreshold" validate:"gte=1"`

	API    APIConfig    `yaml:"api"`
	Stream StreamConfig `yaml:"stream"`
	Commit CommitConfig `yaml:"commit"`
	Cache  CacheConfig  `yaml:"cache"`
	Log    LogConfig    `yaml:"log"`
}

// APIConfig locates the dataset and ML services.
type APIConfig struct {
	BaseURL   string        `yaml:"baseURL" validate:"omitempty,url"`
	MLBaseURL string        `yaml:"mlBaseURL" validate:"omitempty,url"`
	Timeout   time.Duration `yaml:"timeout" validate:"gte=0"`
}

// StreamConfig tunes tile streaming.
type StreamConfig struct {
	// Workers is the number of concurrent fetches; 0 picks a default.
	Workers        int           `yaml:"workers" validate:"gte=0,lte=64"`
	MaxAttempts    int           `yaml:"maxAttempts" validate:"gte=1,lte=10"`
	InitialBackoff time.Duration `yaml:"initialBackoff" validate:"gte=0"`
	MaxBackoff     time.Duration `yaml:"maxBackoff" validate:"gte=0"`
	// RequestsPerSecond paces tile requests; 0 disables pacing.
	RequestsPerSecond float64 `yaml:"requestsPerSecond" validate:"gte=0"`
}

// CommitConfig tunes operation submission.
type CommitConfig struct {
	ChunkSize int `yaml:"chunkSize" validate:"gte=1,lte=1000000"`
}

// CacheConfig configures the local tile cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	// Path is the cache directory; empty keeps the cache in memory.
	Path string `yaml:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		BrushRadius:         0.5,
		PointSize:           0.05,
		PixelStep:           1,
		CameraFarMultiplier: 1,
		CameraThreshold:     20000,
		API: APIConfig{
			Timeout: 30 * time.Second,
		},
		Stream: StreamConfig{
			MaxAttempts:    3,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
		},
		Commit: CommitConfig{
			ChunkSize: 20000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every field against its allowed range.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		msgs = append(msgs, fmt.Sprintf("%s=%v fails %s", field, fe.Value(), constraint(fe)))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

func constraint(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (Config, error) {
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Load reads and parses a YAML file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}
