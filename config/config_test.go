package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestParse_OverridesDefaults(t *testing.T) {
	c, err := Parse([]byte(`
brushRadius: 1.5
pixelStep: 4
stream:
  workers: 2
  initialBackoff: 50ms
log:
  format: json
`))
	require.NoError(t, err)

	assert.Equal(t, float32(1.5), c.BrushRadius)
	assert.Equal(t, 4, c.PixelStep)
	assert.Equal(t, 2, c.Stream.Workers)
	assert.Equal(t, 50*time.Millisecond, c.Stream.InitialBackoff)
	assert.Equal(t, "json", c.Log.Format)

	// untouched fields keep their defaults
	assert.Equal(t, float32(0.05), c.PointSize)
	assert.Equal(t, 3, c.Stream.MaxAttempts)
	assert.Equal(t, 20000, c.Commit.ChunkSize)
}

func TestParse_Empty(t *testing.T) {
	c, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestValidate_Ranges(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*Config)
		field string
	}{
		{"brush too small", func(c *Config) { c.BrushRadius = 0.05 }, "brushRadius"},
		{"brush too large", func(c *Config) { c.BrushRadius = 5.5 }, "brushRadius"},
		{"point size", func(c *Config) { c.PointSize = 0 }, "pointSize"},
		{"pixel step zero", func(c *Config) { c.PixelStep = 0 }, "pixelStep"},
		{"pixel step large", func(c *Config) { c.PixelStep = 17 }, "pixelStep"},
		{"far multiplier", func(c *Config) { c.CameraFarMultiplier = 0.25 }, "cameraFarMultiplier"},
		{"log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"base url", func(c *Config) { c.API.BaseURL = "not a url" }, "api.baseURL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.edit(&c)
			err := c.Validate()
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidate_Bounds(t *testing.T) {
	c := Default()
	c.BrushRadius = 0.1
	c.PointSize = 5
	c.PixelStep = 16
	c.CameraFarMultiplier = 10
	assert.NoError(t, c.Validate())
}

func TestParse_UnknownKey(t *testing.T) {
	_, err := Parse([]byte("brushRadios: 1\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pcedit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pointSize: 0.2\n"), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, float32(0.2), c.PointSize)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
