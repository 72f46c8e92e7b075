// Package config loads service settings from the environment (and an optional
// .env file) plus the game variant list.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"wingo/models"
	"wingo/window"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfiguration wraps every startup validation failure.
var ErrInvalidConfiguration = fmt.Errorf("config: %w", window.ErrInvalidConfiguration)

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

type Config struct {
	MongoURI      string
	MongoDatabase string
	Store         string
	Port          string
	LogLevel      string
	// CORSOrigins are the browser origins allowed to call the API.
	CORSOrigins []string

	TickInterval  time.Duration
	StaleAfter    time.Duration
	BackfillGrace time.Duration
	BackfillLimit int
	BetCutoff     time.Duration

	ServiceFeeRate         decimal.Decimal
	AllowMultiCategoryBets bool

	GamesFile string
	Games     []models.Game
}

// DefaultGames are the variants used when no GAMES_FILE is configured.
func DefaultGames() []models.Game {
	return []models.Game{
		{Name: "WinGo 30 sec", GameCode: "10005", DurationSeconds: 30, IsActive: true},
		{Name: "WinGo 1 min", GameCode: "10001", DurationSeconds: 60, IsActive: true},
		{Name: "WinGo 3 min", GameCode: "10003", DurationSeconds: 180, IsActive: true},
		{Name: "WinGo 5 min", GameCode: "10004", DurationSeconds: 300, IsActive: true},
	}
}

// Load reads .env if present, then the process environment.
func Load() (*Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function and validates it.
func FromEnv(getenv func(string) string) (*Config, error) {
	e := envReader{getenv: getenv}

	cfg := &Config{
		MongoURI:               e.str("MONGODB_URI", ""),
		MongoDatabase:          e.str("MONGODB_DATABASE", "wingo"),
		Store:                  strings.ToLower(e.str("STORE", StoreMongo)),
		Port:                   e.str("PORT", "5000"),
		LogLevel:               e.str("LOG_LEVEL", "info"),
		CORSOrigins:            splitList(e.str("CORS_ORIGINS", "*")),
		TickInterval:           e.duration("TICK_INTERVAL", time.Second),
		StaleAfter:             e.duration("STALE_AFTER", 30*time.Second),
		BackfillGrace:          e.duration("BACKFILL_GRACE", 10*time.Second),
		BackfillLimit:          e.int("BACKFILL_LIMIT", 500),
		BetCutoff:              e.duration("BET_CUTOFF", 15*time.Second),
		ServiceFeeRate:         e.decimal("SERVICE_FEE_RATE", decimal.RequireFromString("0.02")),
		AllowMultiCategoryBets: e.bool("ALLOW_MULTI_CATEGORY_BETS", true),
		GamesFile:              e.str("GAMES_FILE", ""),
	}
	if e.err != nil {
		return nil, e.err
	}

	if cfg.GamesFile != "" {
		games, err := LoadGames(cfg.GamesFile)
		if err != nil {
			return nil, err
		}
		cfg.Games = games
	} else {
		cfg.Games = DefaultGames()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Store {
	case StoreMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGODB_URI is required for the mongo store"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE must be %q or %q, got %q", StoreMongo, StoreMemory, c.Store))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, errors.New("TICK_INTERVAL must be positive"))
	}
	if c.StaleAfter <= 0 {
		errs = append(errs, errors.New("STALE_AFTER must be positive"))
	}
	if c.BackfillGrace < 0 {
		errs = append(errs, errors.New("BACKFILL_GRACE must not be negative"))
	}
	if c.BackfillLimit <= 0 {
		errs = append(errs, errors.New("BACKFILL_LIMIT must be positive"))
	}
	if c.BetCutoff < 0 {
		errs = append(errs, errors.New("BET_CUTOFF must not be negative"))
	}
	if c.ServiceFeeRate.IsNegative() || c.ServiceFeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Errorf("SERVICE_FEE_RATE must be in [0, 1), got %s", c.ServiceFeeRate))
	}
	if err := ValidateGames(c.Games); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, errors.Join(errs...))
	}
	return nil
}

var gameCodePattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// ValidateGames checks every variant can be scheduled, that codes are unique
// and that at least one variant is active.
func ValidateGames(games []models.Game) error {
	if len(games) == 0 {
		return fmt.Errorf("%w: no game variants configured", ErrInvalidConfiguration)
	}
	seen := make(map[string]bool, len(games))
	active := 0
	for _, g := range games {
		if !gameCodePattern.MatchString(g.GameCode) {
			return fmt.Errorf("%w: game %q: code %q must be letters or digits", ErrInvalidConfiguration, g.Name, g.GameCode)
		}
		if seen[g.GameCode] {
			return fmt.Errorf("%w: duplicate game code %q", ErrInvalidConfiguration, g.GameCode)
		}
		seen[g.GameCode] = true
		if err := window.Validate(g.DurationSeconds); err != nil {
			return fmt.Errorf("game %s: %w", g.GameCode, err)
		}
		if g.IsActive {
			active++
		}
	}
	if active == 0 {
		return fmt.Errorf("%w: no active game variants", ErrInvalidConfiguration)
	}
	return nil
}

type gamesFile struct {
	Games []gameEntry `yaml:"games"`
}

// gameEntry is one variant in the games file. A missing active key means active.
type gameEntry struct {
	Name            string `yaml:"name"`
	GameCode        string `yaml:"gameCode"`
	DurationSeconds int    `yaml:"durationSeconds"`
	Active          *bool  `yaml:"active"`
}

func (e gameEntry) game() models.Game {
	return models.Game{
		Name:            e.Name,
		GameCode:        e.GameCode,
		DurationSeconds: e.DurationSeconds,
		IsActive:        e.Active == nil || *e.Active,
	}
}

// LoadGames reads a YAML variant list. Unknown keys are rejected so typos
// surface at startup.
func LoadGames(path string) ([]models.Game, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read games file: %w", err)
	}
	return ParseGames(data)
}

func ParseGames(data []byte) ([]models.Game, error) {
	var file gamesFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: failed to parse games YAML: %v", ErrInvalidConfiguration, err)
	}
	games := make([]models.Game, 0, len(file.Games))
	for _, e := range file.Games {
		games = append(games, e.game())
	}
	if err := ValidateGames(games); err != nil {
		return nil, err
	}
	return games, nil
}

// envReader collects the first parse error so Load can report it once.
type envReader struct {
	getenv func(string) string
	err    error
}

func (e *envReader) raw(key string) string {
	return strings.TrimSpace(e.getenv(key))
}

func (e *envReader) fail(key, v string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfiguration, key, v, err)
	}
}

func (e *envReader) str(key, def string) string {
	if v := e.raw(key); v != "" {
		return v
	}
	return def
}

func (e *envReader) int(key string, def int) int {
	v := e.raw(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return i
}

func (e *envReader) bool(key string, def bool) bool {
	v := strings.ToLower(e.raw(key))
	switch v {
	case "":
		return def
	case "1", "true", "y", "yes":
		return true
	case "0", "false", "n", "no":
		return false
	default:
		e.fail(key, v, errors.New("not a boolean"))
		return def
	}
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := e.raw(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return d
}

func (e *envReader) decimal(key string, def decimal.Decimal) decimal.Decimal {
	v := e.raw(key)
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return d
}
