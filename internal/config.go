package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/kenaz-canvas/internal/canvas"
	"github.com/starford/kenaz-canvas/internal/geometry"
	"github.com/starford/kenaz-canvas/internal/interaction"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App         ApplicationConfig `yaml:"app"`
	Vault       VaultConfig       `yaml:"vault"`
	SQLite      SQLiteConfig      `yaml:"sqlite"`
	Auth        AuthConfig        `yaml:"auth"`
	Canvas      CanvasConfig      `yaml:"canvas"`
	Persistence PersistenceConfig `yaml:"persistence"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Canvas.Validate(); err != nil {
		return err
	}
	return c.Persistence.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the path to the Markdown vault directory.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// CanvasConfig holds the canvas gesture and layout settings.
type CanvasConfig struct {
	MinZoom          float64 `yaml:"min_zoom"`
	MaxZoom          float64 `yaml:"max_zoom"`
	WheelSensitivity float64 `yaml:"wheel_sensitivity"`
	ClickTolerance   float64 `yaml:"click_tolerance"`
	MinNodeWidth     float64 `yaml:"min_node_width"`
	MinNodeHeight    float64 `yaml:"min_node_height"`
	// ScreenWidth and ScreenHeight are the assumed visible area used to
	// centre nodes when a client does not report its own.
	ScreenWidth  float64 `yaml:"screen_width"`
	ScreenHeight float64 `yaml:"screen_height"`
}

// Validate validates the canvas configuration.
func (c *CanvasConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MinZoom, validation.Required, validation.Min(0.01)),
		validation.Field(&c.MaxZoom, validation.Required, validation.Min(c.MinZoom)),
		validation.Field(&c.WheelSensitivity, validation.Required, validation.Min(0.0)),
		validation.Field(&c.ClickTolerance, validation.Min(0.0)),
		validation.Field(&c.MinNodeWidth, validation.Required, validation.Min(1.0)),
		validation.Field(&c.MinNodeHeight, validation.Required, validation.Min(1.0)),
		validation.Field(&c.ScreenWidth, validation.Required, validation.Min(1.0)),
		validation.Field(&c.ScreenHeight, validation.Required, validation.Min(1.0)),
	)
}

// Interaction returns the gesture machine settings.
func (c *CanvasConfig) Interaction() interaction.Config {
	return interaction.Config{
		Zoom:             geometry.ZoomLimits{Min: c.MinZoom, Max: c.MaxZoom},
		WheelSensitivity: c.WheelSensitivity,
		ClickTolerance:   c.ClickTolerance,
	}
}

// Limits returns the minimum node size.
func (c *CanvasConfig) Limits() canvas.Limits {
	return canvas.Limits{MinWidth: c.MinNodeWidth, MinHeight: c.MinNodeHeight}
}

// Screen returns the default visible area.
func (c *CanvasConfig) Screen() geometry.Size {
	return geometry.Size{Width: c.ScreenWidth, Height: c.ScreenHeight}
}

// PersistenceConfig controls the canvas autosave.
type PersistenceConfig struct {
	// Debounce is the quiet period after the last edit before a canvas is written.
	Debounce     time.Duration `yaml:"debounce"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Validate validates the persistence configuration.
func (c *PersistenceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Required, validation.Min(10*time.Millisecond)),
		validation.Field(&c.WriteTimeout, validation.Required, validation.Min(time.Second)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path: "./vault",
		},
		SQLite: SQLiteConfig{
			Path: "./kenaz-canvas.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Canvas: CanvasConfig{
			MinZoom:          geometry.DefaultZoomLimits.Min,
			MaxZoom:          geometry.DefaultZoomLimits.Max,
			WheelSensitivity: 0.001,
			ClickTolerance:   3,
			MinNodeWidth:     canvas.DefaultLimits.MinWidth,
			MinNodeHeight:    canvas.DefaultLimits.MinHeight,
			ScreenWidth:      1280,
			ScreenHeight:     800,
		},
		Persistence: PersistenceConfig{
			Debounce:     time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}
