package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultInstanceID      = "lotteryd-1"
	DefaultEntropyURL      = "https://blockstream.info/api/blocks/tip/hash"
	DefaultEntropyTimeout  = 10 * time.Second
	DefaultEntropyRetries  = 3
	DefaultFallbackSeed    = "00000000000000000000a882324aa7cdadd0e1af62fa7cbd894e49d76ae5fb7d"
	DefaultEpochDuration   = 5 * time.Minute
	DefaultMinStake        = 100
	DefaultSeasonDuration  = 30 * 24 * time.Hour
	DefaultValidatorStake  = 10000
	DefaultReferralBonus   = 0.10
	DefaultDBPort          = 5432
	DefaultDBSSLMode       = "prefer"
	DefaultMaxConns        = 10
	DefaultMinConns        = 2
	DefaultBatchSize       = 100
	DefaultFlushInterval   = 1 * time.Second
	DefaultBufferSize      = 1000
	DefaultDialTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 5 * time.Second
	DefaultRelayBufferSize = 256
	DefaultServerPort      = 8080
)

// DefaultLevels returns the stock leveling table.
func DefaultLevels() []LevelRow {
	return []LevelRow{
		{Level: 1, XP: 0, WeightMultiplier: 1.0, FeeDiscount: 0, Features: []string{"basic"}},
		{Level: 5, XP: 500, WeightMultiplier: 1.2, FeeDiscount: 0.02, Features: []string{"delegate"}},
		{Level: 10, XP: 2000, WeightMultiplier: 1.5, FeeDiscount: 0.05, Features: []string{"high_confidence"}},
		{Level: 20, XP: 10000, WeightMultiplier: 2.0, FeeDiscount: 0.08, Features: []string{"validator"}},
		{Level: 30, XP: 50000, WeightMultiplier: 2.5, FeeDiscount: 0.10, Features: []string{"create_market"}},
		{Level: 50, XP: 200000, WeightMultiplier: 3.0, FeeDiscount: 0.15, Features: []string{"master"}},
	}
}

// DefaultTiers returns the stock prize tier table.
func DefaultTiers() []TierRow {
	return []TierRow{
		{Threshold: 0xc000, Share: 0.60},
		{Threshold: 0xe000, Share: 0.25},
		{Threshold: 0xf000, Share: 0.10},
		{Threshold: 0xffff, Share: 0.05},
	}
}

// DefaultTopics returns the stock topic pool.
func DefaultTopics() []TopicRow {
	return []TopicRow{
		{Question: "Will BTC close above $70,000 this week?", Category: "crypto"},
		{Question: "Will ETH reach $3,000 by month end?", Category: "crypto"},
		{Question: "Will AI token market cap exceed $50B?", Category: "ai"},
		{Question: "Will Fed cut rates in next meeting?", Category: "macro"},
		{Question: "Will this epoch hash start with '0x0'?", Category: "lottery"},
	}
}

func (c *Config) applyDefaults() {
	// Instance defaults
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}

	// Engine defaults
	if len(c.Engine.Levels) == 0 {
		c.Engine.Levels = DefaultLevels()
	}
	if c.Engine.XP == (XPConfig{}) {
		c.Engine.XP = XPConfig{
			Participate:       5,
			Win:               20,
			HighConfidenceWin: 30,
			StreakStep:        10,
			Delegated:         15,
			Validated:         10,
			SeasonParticipate: 50,
			SeasonWin:         200,
		}
	}
	if len(c.Engine.Tiers) == 0 {
		c.Engine.Tiers = DefaultTiers()
	}
	if c.Engine.Fees == (FeesConfig{}) {
		c.Engine.Fees = FeesConfig{Platform: 0.05, Validator: 0.02, Season: 0.03}
	}
	if c.Engine.Weights == (WeightsConfig{}) {
		c.Engine.Weights = WeightsConfig{
			Verified:      1.5,
			CorrectAnswer: 3.0,
			Low:           1.0,
			Medium:        1.5,
			High:          2.0,
		}
	}
	if c.Engine.Epoch.Duration == 0 {
		c.Engine.Epoch.Duration = DefaultEpochDuration
	}
	if c.Engine.Epoch.MinStake == 0 {
		c.Engine.Epoch.MinStake = DefaultMinStake
	}
	if c.Engine.Season.Duration == 0 {
		c.Engine.Season.Duration = DefaultSeasonDuration
	}
	if len(c.Engine.Season.TopShares) == 0 {
		c.Engine.Season.TopShares = []float64{0.20, 0.10, 0.05}
	}
	if c.Engine.Validator.MinStake == 0 {
		c.Engine.Validator.MinStake = DefaultValidatorStake
	}
	if c.Engine.ReferralBonus == 0 {
		c.Engine.ReferralBonus = DefaultReferralBonus
	}
	if len(c.Engine.Topics) == 0 {
		c.Engine.Topics = DefaultTopics()
	}

	// Entropy defaults
	if c.Entropy.URL == "" {
		c.Entropy.URL = DefaultEntropyURL
	}
	if c.Entropy.Timeout == 0 {
		c.Entropy.Timeout = DefaultEntropyTimeout
	}
	if c.Entropy.MaxRetries == 0 {
		c.Entropy.MaxRetries = DefaultEntropyRetries
	}
	if c.Entropy.FallbackSeed == "" {
		c.Entropy.FallbackSeed = DefaultFallbackSeed
	}

	// Archive defaults (only meaningful when enabled)
	applyDBDefaults(&c.Archive.DB)
	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = DefaultBatchSize
	}
	if c.Archive.FlushInterval == 0 {
		c.Archive.FlushInterval = DefaultFlushInterval
	}
	if c.Archive.BufferSize == 0 {
		c.Archive.BufferSize = DefaultBufferSize
	}

	// Relay defaults
	if c.Relays.DialTimeout == 0 {
		c.Relays.DialTimeout = DefaultDialTimeout
	}
	if c.Relays.WriteTimeout == 0 {
		c.Relays.WriteTimeout = DefaultWriteTimeout
	}
	if c.Relays.BufferSize == 0 {
		c.Relays.BufferSize = DefaultRelayBufferSize
	}

	// Scheduler defaults
	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = c.Engine.Epoch.Duration
	}

	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
