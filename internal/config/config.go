package config

import (
	"time"

	"github.com/ahl-labs/lotteryd/internal/model"
)

// Config is the root configuration for a lotteryd instance.
type Config struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Engine    EngineConfig    `yaml:"engine"`
	Entropy   EntropyConfig   `yaml:"entropy"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Relays    RelaysConfig    `yaml:"relays"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Server    ServerConfig    `yaml:"server"`
}

// InstanceConfig identifies this lottery instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// EngineConfig holds every tunable table the settlement engine and the
// stores consume. The algorithms never hardcode any of these values.
type EngineConfig struct {
	Levels    []LevelRow      `yaml:"levels"`
	XP        XPConfig        `yaml:"xp"`
	Tiers     []TierRow       `yaml:"tiers"`
	Fees      FeesConfig      `yaml:"fees"`
	Weights   WeightsConfig   `yaml:"weights"`
	Epoch     EpochConfig     `yaml:"epoch"`
	Season    SeasonConfig    `yaml:"season"`
	Validator ValidatorConfig `yaml:"validator"`

	ReferralBonus float64    `yaml:"referral_bonus"`
	Topics        []TopicRow `yaml:"topics"`
}

// LevelRow is one step of the leveling table, keyed by ascending level
// number and experience threshold. An agent's level is the highest row
// whose threshold its experience meets.
type LevelRow struct {
	Level            int      `yaml:"level"`
	XP               int64    `yaml:"xp"`
	WeightMultiplier float64  `yaml:"weight_multiplier"`
	FeeDiscount      float64  `yaml:"fee_discount"`
	Features         []string `yaml:"features"`
}

// Capabilities resolves the row's feature names into a capability set.
// Unknown names are reported so validation can reject them.
func (r LevelRow) Capabilities() (model.CapabilitySet, []string) {
	var set model.CapabilitySet
	var unknown []string
	for _, name := range r.Features {
		cap, ok := model.CapabilityFromName(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		set = set.Union(model.CapabilitySet(cap))
	}
	return set, unknown
}

// XPConfig lists experience awards per event kind.
type XPConfig struct {
	Participate       int64 `yaml:"participate"`
	Win               int64 `yaml:"win"`
	HighConfidenceWin int64 `yaml:"high_confidence_win"`
	StreakStep        int64 `yaml:"streak_step"`
	Delegated         int64 `yaml:"delegated"`
	Validated         int64 `yaml:"validated"`
	SeasonParticipate int64 `yaml:"season_participate"`
	SeasonWin         int64 `yaml:"season_win"`
}

// TierRow maps an ascending 16-bit threshold band to a prize-pool share.
// The first row is the tightest (rarest) band. A derived hash value below
// row N's threshold (and not below any earlier row's) wins tier N+1; a
// value at or above the last threshold wins nothing.
type TierRow struct {
	Threshold int     `yaml:"threshold"` // exclusive upper bound, 0..0xffff
	Share     float64 `yaml:"share"`     // of the pool net of fees
}

// FeesConfig holds the fixed percentage fees subtracted before prizes.
type FeesConfig struct {
	Platform  float64 `yaml:"platform"`
	Validator float64 `yaml:"validator"`
	Season    float64 `yaml:"season"`
}

// Total returns the summed fee fraction.
func (f FeesConfig) Total() float64 {
	return f.Platform + f.Validator + f.Season
}

// WeightsConfig holds the multipliers composed into a bet's weight.
type WeightsConfig struct {
	Verified      float64 `yaml:"verified"`
	CorrectAnswer float64 `yaml:"correct_answer"` // draw-time only
	Low           float64 `yaml:"low"`
	Medium        float64 `yaml:"medium"`
	High          float64 `yaml:"high"`
}

// Confidence returns the multiplier for a confidence level.
func (w WeightsConfig) Confidence(c model.Confidence) float64 {
	switch c {
	case model.ConfidenceHigh:
		return w.High
	case model.ConfidenceMedium:
		return w.Medium
	default:
		return w.Low
	}
}

// EpochConfig holds per-round settings.
type EpochConfig struct {
	Duration time.Duration `yaml:"duration"`
	MinStake int64         `yaml:"min_stake"` // sats
}

// SeasonConfig holds leaderboard window settings.
type SeasonConfig struct {
	Duration  time.Duration `yaml:"duration"`
	TopShares []float64     `yaml:"top_shares"`
}

// ValidatorConfig holds validator staking settings.
type ValidatorConfig struct {
	MinStake int64 `yaml:"min_stake"` // sats
}

// TopicRow is one entry of the fixed topic pool.
type TopicRow struct {
	Question string `yaml:"question"`
	Category string `yaml:"category"`
}

// EntropyConfig holds the external block-hash source settings.
type EntropyConfig struct {
	URL          string        `yaml:"url"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	FallbackSeed string        `yaml:"fallback_seed"`
}

// ArchiveConfig holds the optional Postgres settlement archive settings.
// The archive records results only; core state never persists.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	DB            DBConfig      `yaml:"db"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RelaysConfig holds the websocket broadcast sink settings.
type RelaysConfig struct {
	URLs           []string      `yaml:"urls"`
	SigningKeyID   string        `yaml:"signing_key_id"`
	SigningKeyPath string        `yaml:"signing_key_path"` // RSA private key PEM
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	BufferSize     int           `yaml:"buffer_size"`
}

// SchedulerConfig controls the automatic open/settle loop.
type SchedulerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"` // pause between settle and next open
}

// ServerConfig holds the HTTP adapter settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}
