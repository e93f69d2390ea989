// Package config loads the daemon configuration through viper.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"timebased_cover/internal/actuator"
	"timebased_cover/internal/cover"

	"github.com/spf13/viper"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Travel time limits in seconds.
const (
	MinTravelTime     = 2
	MaxTravelTime     = 120
	DefaultTravelTime = 25
)

// Actuator backends.
const (
	BackendMemory        = "memory"
	BackendGPIO          = "gpio"
	BackendHomeAssistant = "homeassistant"
)

const uniqueIDPrefix = "cover_time_based_"

var (
	ErrNoCovers        = errors.New("no covers configured")
	ErrInvalidCover    = errors.New("invalid cover configuration")
	ErrUnknownBackend  = errors.New("unknown actuator backend")
	ErrDuplicateCover  = errors.New("duplicate cover id")
	ErrMissingBackend  = errors.New("incomplete actuator backend configuration")
	nonAlphanumericRun = regexp.MustCompile(`[^a-z0-9]+`)
)

type Config struct {
	Port      string          `mapstructure:"port" yaml:"port"`
	LogLevel  string          `mapstructure:"log_level" yaml:"log_level"`
	DB        DBConfig        `mapstructure:"db" yaml:"db"`
	Auth      AuthConfig      `mapstructure:"auth" yaml:"auth"`
	Actuators ActuatorsConfig `mapstructure:"actuators" yaml:"actuators"`
	Covers    []CoverConfig   `mapstructure:"covers" yaml:"covers"`
}

type DBConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type AuthConfig struct {
	SigningKey string        `mapstructure:"signing_key" yaml:"-"`
	TokenTTL   time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

type ActuatorsConfig struct {
	Backend       string              `mapstructure:"backend" yaml:"backend"`
	PollInterval  time.Duration       `mapstructure:"poll_interval" yaml:"poll_interval"`
	CommandSettle time.Duration       `mapstructure:"command_settle" yaml:"command_settle"`
	GPIO          GPIOConfig          `mapstructure:"gpio" yaml:"gpio"`
	HomeAssistant HomeAssistantConfig `mapstructure:"homeassistant" yaml:"homeassistant"`
}

type GPIOConfig struct {
	Mock      bool          `mapstructure:"mock" yaml:"mock"`
	ActiveLow bool          `mapstructure:"active_low" yaml:"active_low"`
	Settle    time.Duration `mapstructure:"settle" yaml:"settle"`
}

type HomeAssistantConfig struct {
	URL   string `mapstructure:"url" yaml:"url"`
	Token string `mapstructure:"token" yaml:"-"`
}

// CoverConfig describes one cover. Travel times are seconds.
type CoverConfig struct {
	Name      string  `mapstructure:"name" yaml:"name"`
	Up        string  `mapstructure:"up" yaml:"up"`
	Down      string  `mapstructure:"down" yaml:"down"`
	Stop      string  `mapstructure:"stop" yaml:"stop,omitempty"`
	TimeOpen  float64 `mapstructure:"time_open" yaml:"time_open"`
	TimeClose float64 `mapstructure:"time_close" yaml:"time_close,omitempty"`
}

// Load reads config.yml from the given paths, applies COVER_* environment
// overrides and validates the result.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"configs"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	setDefaults(v)
	v.SetEnvPrefix("COVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("db.path", "app.db")
	v.SetDefault("auth.token_ttl", 12*time.Hour)
	v.SetDefault("actuators.backend", BackendMemory)
	v.SetDefault("actuators.poll_interval", time.Second)
	v.SetDefault("actuators.command_settle", actuator.DefaultCommandSettle)
	v.SetDefault("actuators.gpio.mock", true)
}

func fromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate applies defaults and checks ranges in place.
func (c *Config) Validate() error {
	switch c.Actuators.Backend {
	case BackendMemory, BackendGPIO:
	case BackendHomeAssistant:
		if c.Actuators.HomeAssistant.URL == "" || c.Actuators.HomeAssistant.Token == "" {
			return fmt.Errorf("%w: homeassistant needs url and token", ErrMissingBackend)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Actuators.Backend)
	}
	if len(c.Covers) == 0 {
		return ErrNoCovers
	}

	seen := make(map[string]struct{}, len(c.Covers))
	for i := range c.Covers {
		cv := &c.Covers[i]
		if err := cv.validate(); err != nil {
			return fmt.Errorf("cover %d (%q): %w", i, cv.Name, err)
		}
		if c.Actuators.Backend == BackendGPIO {
			for _, id := range cv.switches() {
				if _, err := parsePin(id); err != nil {
					return fmt.Errorf("cover %q: %w", cv.Name, err)
				}
			}
		}
		id := cv.UniqueID()
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateCover, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func (cv *CoverConfig) validate() error {
	if strings.TrimSpace(cv.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidCover)
	}
	if cv.Up == "" || cv.Down == "" {
		return fmt.Errorf("%w: up and down actuators are required", ErrInvalidCover)
	}
	if cv.Up == cv.Down || (cv.Stop != "" && (cv.Stop == cv.Up || cv.Stop == cv.Down)) {
		return fmt.Errorf("%w: actuators must be distinct", ErrInvalidCover)
	}
	if cv.TimeOpen == 0 {
		cv.TimeOpen = DefaultTravelTime
	}
	if cv.TimeOpen < MinTravelTime || cv.TimeOpen > MaxTravelTime {
		return fmt.Errorf("%w: time_open %.1fs outside %d..%d", ErrInvalidCover, cv.TimeOpen, MinTravelTime, MaxTravelTime)
	}
	if cv.TimeClose == 0 {
		cv.TimeClose = cv.TimeOpen
	}
	if cv.TimeClose < 0 || cv.TimeClose > MaxTravelTime {
		return fmt.Errorf("%w: time_close %.1fs outside 0..%d", ErrInvalidCover, cv.TimeClose, MaxTravelTime)
	}
	return nil
}

func (cv *CoverConfig) switches() []string {
	ids := []string{cv.Up, cv.Down}
	if cv.Stop != "" {
		ids = append(ids, cv.Stop)
	}
	return ids
}

// UniqueID is "cover_time_based_" followed by the slugified name.
func (cv CoverConfig) UniqueID() string {
	return uniqueIDPrefix + Slugify(cv.Name)
}

// Slugify lowercases s, transliterates accented Latin letters to ASCII and
// collapses every run of remaining non-alphanumerics to "_". "Küche" becomes "kuche".
func Slugify(s string) string {
	ascii := transliterate(latinLigatures.Replace(strings.ToLower(s)))
	slug := nonAlphanumericRun.ReplaceAllString(ascii, "_")
	return strings.Trim(slug, "_")
}

// letters that do not decompose into a base letter plus marks
var latinLigatures = strings.NewReplacer("ß", "ss", "æ", "ae", "œ", "oe", "ø", "o", "ł", "l", "đ", "d", "þ", "th")

func transliterate(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Controller converts the entry into a cover.Config.
func (cv CoverConfig) Controller() cover.Config {
	return cover.Config{
		ID:            cv.UniqueID(),
		Name:          cv.Name,
		OpenDuration:  seconds(cv.TimeOpen),
		CloseDuration: seconds(cv.TimeClose),
		OpenSwitch:    cv.Up,
		CloseSwitch:   cv.Down,
		StopSwitch:    cv.Stop,
	}
}

// Pins lists every GPIO pin referenced by the covers.
func (c *Config) Pins() []int {
	var pins []int
	seen := make(map[int]struct{})
	for _, cv := range c.Covers {
		for _, id := range cv.switches() {
			n, err := parsePin(id)
			if err != nil {
				continue
			}
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			pins = append(pins, n)
		}
	}
	return pins
}

// SwitchIDs lists every actuator id referenced by the covers.
func (c *Config) SwitchIDs() []string {
	var ids []string
	seen := make(map[string]struct{})
	for _, cv := range c.Covers {
		for _, id := range cv.switches() {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

// Dump renders the effective configuration as YAML. Secrets are omitted.
func (c *Config) Dump() ([]byte, error) {
	return yaml.Marshal(c)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func parsePin(id string) (int, error) {
	n, err := strconv.Atoi(id)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: gpio actuator %q must be a BCM pin number", ErrInvalidCover, id)
	}
	return n, nil
}
