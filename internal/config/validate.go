package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
// A failure here is a fatal misconfiguration: the process must not start,
// because the settlement path assumes these tables are complete.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if err := c.Engine.validate(); err != nil {
		return err
	}

	if c.Entropy.URL == "" {
		return errors.New("entropy.url is required")
	}
	if c.Entropy.FallbackSeed == "" {
		return errors.New("entropy.fallback_seed is required")
	}

	if c.Archive.Enabled {
		if err := c.Archive.DB.validate("archive.db"); err != nil {
			return err
		}
		if c.Archive.BatchSize < 1 {
			return errors.New("archive.batch_size must be >= 1")
		}
		if c.Archive.BufferSize < 1 {
			return errors.New("archive.buffer_size must be >= 1")
		}
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	return nil
}

func (e *EngineConfig) validate() error {
	if len(e.Levels) == 0 {
		return errors.New("engine.levels must not be empty")
	}
	if e.Levels[0].XP != 0 {
		return errors.New("engine.levels: first row must have xp 0")
	}
	for i, row := range e.Levels {
		if row.Level < 1 {
			return fmt.Errorf("engine.levels[%d]: level must be >= 1", i)
		}
		if row.WeightMultiplier <= 0 {
			return fmt.Errorf("engine.levels[%d]: weight_multiplier must be > 0", i)
		}
		if row.FeeDiscount < 0 || row.FeeDiscount >= 1 {
			return fmt.Errorf("engine.levels[%d]: fee_discount must be in [0, 1)", i)
		}
		if i > 0 {
			if row.Level <= e.Levels[i-1].Level {
				return fmt.Errorf("engine.levels[%d]: level numbers must be ascending", i)
			}
			if row.XP <= e.Levels[i-1].XP {
				return fmt.Errorf("engine.levels[%d]: xp thresholds must be ascending", i)
			}
		}
		if _, unknown := row.Capabilities(); len(unknown) > 0 {
			return fmt.Errorf("engine.levels[%d]: unknown features %v", i, unknown)
		}
	}

	if len(e.Tiers) == 0 {
		return errors.New("engine.tiers must not be empty")
	}
	shareSum := 0.0
	for i, tier := range e.Tiers {
		if tier.Threshold < 1 || tier.Threshold > 0xffff {
			return fmt.Errorf("engine.tiers[%d]: threshold must be in [1, 0xffff]", i)
		}
		if i > 0 && tier.Threshold <= e.Tiers[i-1].Threshold {
			return fmt.Errorf("engine.tiers[%d]: thresholds must be ascending", i)
		}
		if tier.Share <= 0 {
			return fmt.Errorf("engine.tiers[%d]: share must be > 0", i)
		}
		shareSum += tier.Share
	}
	if shareSum > 1.0 {
		return fmt.Errorf("engine.tiers: shares sum to %.3f, must be <= 1.0", shareSum)
	}

	if e.Fees.Platform < 0 || e.Fees.Validator < 0 || e.Fees.Season < 0 {
		return errors.New("engine.fees: fees must be >= 0")
	}
	if e.Fees.Total() >= 1 {
		return fmt.Errorf("engine.fees: fees sum to %.3f, must be < 1.0", e.Fees.Total())
	}

	if e.Weights.Verified <= 0 || e.Weights.CorrectAnswer <= 0 ||
		e.Weights.Low <= 0 || e.Weights.Medium <= 0 || e.Weights.High <= 0 {
		return errors.New("engine.weights: all multipliers must be > 0")
	}

	if e.Epoch.Duration <= 0 {
		return errors.New("engine.epoch.duration must be > 0")
	}
	if e.Epoch.MinStake < 1 {
		return errors.New("engine.epoch.min_stake must be >= 1")
	}

	if e.Season.Duration <= 0 {
		return errors.New("engine.season.duration must be > 0")
	}
	topSum := 0.0
	for i, s := range e.Season.TopShares {
		if s <= 0 {
			return fmt.Errorf("engine.season.top_shares[%d] must be > 0", i)
		}
		topSum += s
	}
	if topSum > 1.0 {
		return fmt.Errorf("engine.season.top_shares sum to %.3f, must be <= 1.0", topSum)
	}

	if e.Validator.MinStake < 1 {
		return errors.New("engine.validator.min_stake must be >= 1")
	}
	if e.ReferralBonus < 0 {
		return errors.New("engine.referral_bonus must be >= 0")
	}

	if len(e.Topics) == 0 {
		return errors.New("engine.topics must not be empty")
	}
	for i, topic := range e.Topics {
		if topic.Question == "" {
			return fmt.Errorf("engine.topics[%d]: question is required", i)
		}
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
