package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	OddsFeed  OddsFeedConfig  `mapstructure:"oddsfeed"`
	Collector CollectorConfig `mapstructure:"collector"`
	Detector  DetectorConfig  `mapstructure:"detector"`
	Analyzer  AnalyzerConfig  `mapstructure:"analyzer"`
	Cleanup   CleanupConfig   `mapstructure:"cleanup"`
	Cron      CronConfig      `mapstructure:"cron"`
	Stake     StakeConfig     `mapstructure:"stake"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	APIKey    string        `mapstructure:"api_key"`
	APISecret string        `mapstructure:"api_secret"`
}

type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type OddsFeedConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
	Regions string        `mapstructure:"regions"`
	Markets string        `mapstructure:"markets"`
	RPS     float64       `mapstructure:"rps"`
	Burst   int           `mapstructure:"burst"`
}

type CollectorConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	Backoff     time.Duration `mapstructure:"backoff"`
	Sports      []string      `mapstructure:"sports"`
	Bookmakers  []string      `mapstructure:"bookmakers"`
	SportPause  time.Duration `mapstructure:"sport_pause"`
	MinCooldown time.Duration `mapstructure:"min_cooldown"`
}

type DetectorConfig struct {
	Interval             time.Duration `mapstructure:"interval"`
	Backoff              time.Duration `mapstructure:"backoff"`
	MinProfitPct         float64       `mapstructure:"min_profit_pct"`
	TotalStake           float64       `mapstructure:"total_stake"`
	OpportunityTTL       time.Duration `mapstructure:"opportunity_ttl"`
	FreshnessWindow      time.Duration `mapstructure:"freshness_window"`
	SuppressionWindow    time.Duration `mapstructure:"suppression_window"`
	RefreshOnBetterPrice bool          `mapstructure:"refresh_on_better_price"`
	EventHorizon         time.Duration `mapstructure:"event_horizon"`
	MaxEvents            int           `mapstructure:"max_events"`
	VolatileSports       []string      `mapstructure:"volatile_sports"`
}

type AnalyzerConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	Backoff   time.Duration `mapstructure:"backoff"`
	BatchSize int           `mapstructure:"batch_size"`
	Model     string        `mapstructure:"model"`
	APIKey    string        `mapstructure:"api_key"`
}

type CleanupConfig struct {
	Interval          time.Duration `mapstructure:"interval"`
	Backoff           time.Duration `mapstructure:"backoff"`
	SnapshotRetention time.Duration `mapstructure:"snapshot_retention"`
}

type CronConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ExpirySweep string `mapstructure:"expiry_sweep"`
}

type StakeConfig struct {
	KellyFraction   float64 `mapstructure:"kelly_fraction"`
	MaxStakePct     float64 `mapstructure:"max_stake_pct"`
	DefaultBankroll float64 `mapstructure:"default_bankroll"`
	EdgeFactor      float64 `mapstructure:"edge_factor"`
	MinStake        float64 `mapstructure:"min_stake"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("auth.token_ttl", "30m")
	v.SetDefault("rate_limit.requests", 100)
	v.SetDefault("rate_limit.window", "60s")
	v.SetDefault("oddsfeed.base_url", "https://api.the-odds-api.com/v4")
	v.SetDefault("oddsfeed.timeout", "30s")
	v.SetDefault("oddsfeed.regions", "us,uk,eu")
	v.SetDefault("oddsfeed.markets", "h2h,spreads,totals")
	v.SetDefault("oddsfeed.rps", 1)
	v.SetDefault("oddsfeed.burst", 2)
	v.SetDefault("collector.interval", "30s")
	v.SetDefault("collector.backoff", "60s")
	v.SetDefault("collector.sports", []string{"soccer", "americanfootball_nfl", "basketball_nba", "tennis"})
	v.SetDefault("collector.bookmakers", []string{"bet365", "pinnacle", "betfair", "draftkings", "fanduel"})
	v.SetDefault("collector.sport_pause", "1s")
	v.SetDefault("collector.min_cooldown", "60s")
	v.SetDefault("detector.interval", "10s")
	v.SetDefault("detector.backoff", "30s")
	v.SetDefault("detector.min_profit_pct", 2.0)
	v.SetDefault("detector.total_stake", 1000)
	v.SetDefault("detector.opportunity_ttl", "15m")
	v.SetDefault("detector.freshness_window", "30m")
	v.SetDefault("detector.suppression_window", "1h")
	v.SetDefault("detector.refresh_on_better_price", false)
	v.SetDefault("detector.event_horizon", "168h")
	v.SetDefault("detector.max_events", 100)
	v.SetDefault("detector.volatile_sports", []string{"tennis", "basketball_nba"})
	v.SetDefault("analyzer.enabled", true)
	v.SetDefault("analyzer.interval", "60s")
	v.SetDefault("analyzer.backoff", "120s")
	v.SetDefault("analyzer.batch_size", 5)
	v.SetDefault("analyzer.model", "gpt-4")
	v.SetDefault("cleanup.interval", "1h")
	v.SetDefault("cleanup.backoff", "30m")
	v.SetDefault("cleanup.snapshot_retention", "168h")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.expiry_sweep", "@every 10m")
	v.SetDefault("stake.kelly_fraction", 0.25)
	v.SetDefault("stake.max_stake_pct", 10)
	v.SetDefault("stake.default_bankroll", 10000)
	v.SetDefault("stake.edge_factor", 0.05)
	v.SetDefault("stake.min_stake", 10)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
