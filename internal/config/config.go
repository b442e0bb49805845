// Package config loads the sync configuration from an ini, toml or yaml file plus the environment.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Another0Noob/mangadex-sync/internal/apperr"
	"github.com/Another0Noob/mangadex-sync/internal/mangadexapi"
	"github.com/Another0Noob/mangadex-sync/internal/models"
	"github.com/Another0Noob/mangadex-sync/internal/reconcile"
	"github.com/BurntSushi/toml"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

//go:embed config.example.ini
var exampleConf []byte

// Config is the whole configuration of a run.
type Config struct {
	MangaDex  MangaDexConfig    `toml:"mangadex" yaml:"mangadex"`
	AniList   AniListConfig     `toml:"anilist" yaml:"anilist"`
	Sync      SyncConfig        `toml:"sync" yaml:"sync"`
	StatusMap map[string]string `toml:"status_map" yaml:"status_map"`
}

// MangaDexConfig holds the personal client credentials for the password grant. An access token
// obtained elsewhere replaces the login; it is renewed only with a refresh token or credentials.
type MangaDexConfig struct {
	Username          string `toml:"username" yaml:"username"`
	Password          string `toml:"password" yaml:"password"`
	ClientID          string `toml:"client_id" yaml:"client_id"`
	ClientSecret      string `toml:"client_secret" yaml:"client_secret"`
	AccessToken       string `toml:"access_token" yaml:"access_token"`
	RefreshToken      string `toml:"refresh_token" yaml:"refresh_token"`
	RequestsPerSecond int    `toml:"requests_per_second" yaml:"requests_per_second"`
}

func (c MangaDexConfig) AuthForm() mangadexapi.AuthForm {
	return mangadexapi.AuthForm{
		Username:     c.Username,
		Password:     c.Password,
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
	}
}

// Session is the injected token, or nil when the client must log in.
func (c MangaDexConfig) Session() *mangadexapi.Token {
	if c.AccessToken == "" {
		return nil
	}
	return &mangadexapi.Token{AccessToken: c.AccessToken, RefreshToken: c.RefreshToken}
}

type AniListConfig struct {
	Username          string `toml:"username" yaml:"username"`
	Token             string `toml:"token" yaml:"token"`
	RequestsPerSecond int    `toml:"requests_per_second" yaml:"requests_per_second"`
}

// SyncConfig tunes matching and execution.
type SyncConfig struct {
	Workers        int           `toml:"workers" yaml:"workers"`
	MaxAttempts    int           `toml:"max_attempts" yaml:"max_attempts"`
	BaseBackoff    time.Duration `toml:"base_backoff" yaml:"base_backoff"`
	MaxBackoff     time.Duration `toml:"max_backoff" yaml:"max_backoff"`
	FuzzyThreshold float64       `toml:"fuzzy_threshold" yaml:"fuzzy_threshold"`
	Timeout        time.Duration `toml:"timeout" yaml:"timeout"`
	RequestTimeout time.Duration `toml:"request_timeout" yaml:"request_timeout"`
	RequestSpacing time.Duration `toml:"request_spacing" yaml:"request_spacing"`
	SearchCatalog  bool          `toml:"search_catalog" yaml:"search_catalog"`
}

func (c SyncConfig) RetryPolicy() reconcile.RetryPolicy {
	return reconcile.RetryPolicy{MaxAttempts: c.MaxAttempts, BaseDelay: c.BaseBackoff, MaxDelay: c.MaxBackoff}
}

// Default returns the configuration used for everything a file and the environment leave unset.
func Default() *Config {
	return &Config{
		MangaDex: MangaDexConfig{RequestsPerSecond: 5},
		AniList:  AniListConfig{RequestsPerSecond: 1},
		Sync: SyncConfig{
			Workers:        4,
			MaxAttempts:    3,
			BaseBackoff:    time.Second,
			MaxBackoff:     30 * time.Second,
			FuzzyThreshold: 0.85,
			Timeout:        30 * time.Minute,
			RequestTimeout: time.Minute,
			RequestSpacing: 250 * time.Millisecond,
			SearchCatalog:  true,
		},
		StatusMap: reconcile.DefaultStatusTable(),
	}
}

// LoadEnv loads KEY=value pairs from path into the environment without overriding variables
// already set. An empty path tries ./.env and ignores its absence.
func LoadEnv(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return apperr.Configf("load env file %s: %v", path, err)
	}
	return nil
}

// Load reads path over the defaults, picking the format by extension, then applies the
// environment overrides. An empty path yields defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperr.Configf("read config file %s: %v", path, err)
		}
		expanded := []byte(os.ExpandEnv(string(data)))

		// A status map given in the file replaces the default one instead of merging into it.
		cfg.StatusMap = nil
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".ini":
			err = decodeINI(expanded, cfg)
		case ".toml":
			err = toml.Unmarshal(expanded, cfg)
		case ".yaml", ".yml":
			err = yaml.Unmarshal(expanded, cfg)
		default:
			return nil, apperr.Configf("unknown config format %q (must be .ini, .toml, .yaml or .yml)", ext)
		}
		if err != nil {
			return nil, apperr.Configf("parse config file %s: %v", path, err)
		}
		if cfg.StatusMap == nil {
			cfg.StatusMap = reconcile.DefaultStatusTable()
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func decodeINI(data []byte, cfg *Config) error {
	f, err := ini.Load(data)
	if err != nil {
		return err
	}

	md := f.Section("mangadex")
	iniString(md, "username", &cfg.MangaDex.Username)
	iniString(md, "password", &cfg.MangaDex.Password)
	iniString(md, "client_id", &cfg.MangaDex.ClientID)
	iniString(md, "client_secret", &cfg.MangaDex.ClientSecret)
	iniString(md, "access_token", &cfg.MangaDex.AccessToken)
	iniString(md, "refresh_token", &cfg.MangaDex.RefreshToken)

	al := f.Section("anilist")
	iniString(al, "username", &cfg.AniList.Username)
	iniString(al, "token", &cfg.AniList.Token)

	sy := f.Section("sync")
	errs := []error{
		iniInt(md, "requests_per_second", &cfg.MangaDex.RequestsPerSecond),
		iniInt(al, "requests_per_second", &cfg.AniList.RequestsPerSecond),
		iniInt(sy, "workers", &cfg.Sync.Workers),
		iniInt(sy, "max_attempts", &cfg.Sync.MaxAttempts),
		iniDuration(sy, "base_backoff", &cfg.Sync.BaseBackoff),
		iniDuration(sy, "max_backoff", &cfg.Sync.MaxBackoff),
		iniDuration(sy, "timeout", &cfg.Sync.Timeout),
		iniDuration(sy, "request_timeout", &cfg.Sync.RequestTimeout),
		iniDuration(sy, "request_spacing", &cfg.Sync.RequestSpacing),
	}
	if sy.HasKey("fuzzy_threshold") {
		v, err := sy.Key("fuzzy_threshold").Float64()
		if err != nil {
			errs = append(errs, fmt.Errorf("sync.fuzzy_threshold: %w", err))
		}
		cfg.Sync.FuzzyThreshold = v
	}
	if sy.HasKey("search_catalog") {
		v, err := sy.Key("search_catalog").Bool()
		if err != nil {
			errs = append(errs, fmt.Errorf("sync.search_catalog: %w", err))
		}
		cfg.Sync.SearchCatalog = v
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	if sm, err := f.GetSection("status_map"); err == nil && len(sm.Keys()) > 0 {
		cfg.StatusMap = sm.KeysHash()
	}
	return nil
}

func iniString(sec *ini.Section, key string, dst *string) {
	if sec.HasKey(key) {
		*dst = strings.TrimSpace(sec.Key(key).String())
	}
}

func iniInt(sec *ini.Section, key string, dst *int) error {
	if !sec.HasKey(key) {
		return nil
	}
	v, err := sec.Key(key).Int()
	if err != nil {
		return fmt.Errorf("%s.%s: %w", sec.Name(), key, err)
	}
	*dst = v
	return nil
}

func iniDuration(sec *ini.Section, key string, dst *time.Duration) error {
	if !sec.HasKey(key) {
		return nil
	}
	v, err := sec.Key(key).Duration()
	if err != nil {
		return fmt.Errorf("%s.%s: %w", sec.Name(), key, err)
	}
	*dst = v
	return nil
}

func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	set(&c.MangaDex.Username, "MANGADEX_USERNAME")
	set(&c.MangaDex.Password, "MANGADEX_PASSWORD")
	set(&c.MangaDex.ClientID, "MANGADEX_CLIENT_ID")
	set(&c.MangaDex.ClientSecret, "MANGADEX_CLIENT_SECRET")
	set(&c.MangaDex.AccessToken, "MANGADEX_ACCESS_TOKEN")
	set(&c.MangaDex.RefreshToken, "MANGADEX_REFRESH_TOKEN")
	set(&c.AniList.Username, "ANILIST_USERNAME")
	set(&c.AniList.Token, "ANILIST_TOKEN")
}

// Validate checks every section and that the status map is total over the MangaDex vocabulary.
func (c *Config) Validate() error {
	login := c.MangaDex.AccessToken == ""
	if err := validation.ValidateStruct(&c.MangaDex,
		validation.Field(&c.MangaDex.Username, validation.When(login, validation.Required)),
		validation.Field(&c.MangaDex.Password, validation.When(login, validation.Required)),
		validation.Field(&c.MangaDex.ClientID, validation.When(login, validation.Required)),
		validation.Field(&c.MangaDex.ClientSecret, validation.When(login, validation.Required)),
		validation.Field(&c.MangaDex.RequestsPerSecond, validation.Required, validation.Min(1), validation.Max(5)),
	); err != nil {
		return apperr.Configf("mangadex: %v", err)
	}
	if err := validation.ValidateStruct(&c.AniList,
		validation.Field(&c.AniList.RequestsPerSecond, validation.Required, validation.Min(1), validation.Max(2)),
	); err != nil {
		return apperr.Configf("anilist: %v", err)
	}
	if err := validation.ValidateStruct(&c.Sync,
		validation.Field(&c.Sync.Workers, validation.Required, validation.Min(1), validation.Max(32)),
		validation.Field(&c.Sync.MaxAttempts, validation.Required, validation.Min(1), validation.Max(10)),
		validation.Field(&c.Sync.BaseBackoff, validation.Required),
		validation.Field(&c.Sync.MaxBackoff, validation.Required, validation.Min(c.Sync.BaseBackoff)),
		validation.Field(&c.Sync.FuzzyThreshold, validation.Required, validation.Min(0.5), validation.Max(1.0)),
		validation.Field(&c.Sync.Timeout, validation.Required),
		validation.Field(&c.Sync.RequestTimeout, validation.Required),
	); err != nil {
		return apperr.Configf("sync: %v", err)
	}
	_, err := c.Statuses()
	return err
}

// Statuses builds the status map against the MangaDex reading statuses.
func (c *Config) Statuses() (reconcile.StatusMap, error) {
	rs := mangadexapi.ReadingStatuses()
	vocabulary := make([]models.TargetStatus, len(rs))
	for i, s := range rs {
		vocabulary[i] = models.TargetStatus(s)
	}
	return reconcile.NewStatusMap(c.StatusMap, vocabulary)
}

// RequireAniList reports a configuration error when no AniList user is set.
func (c *Config) RequireAniList() error {
	if strings.TrimSpace(c.AniList.Username) == "" {
		return apperr.Configf("anilist: username is required without an input file")
	}
	return nil
}

// WriteExample writes the annotated example configuration to path. It refuses to overwrite.
func WriteExample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.WriteFile(path, exampleConf, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
