package model

import "time"

// -----------------------------------------------------------------------------
// Agents
// -----------------------------------------------------------------------------

// Confidence is a bettor's self-declared conviction in a prediction.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Valid reports whether c is one of the three known confidence levels.
func (c Confidence) Valid() bool {
	return c == ConfidenceLow || c == ConfidenceMedium || c == ConfidenceHigh
}

// Capability is a single feature an agent can unlock by leveling up.
type Capability uint8

const (
	CapBasic Capability = 1 << iota
	CapDelegate
	CapHighConfidence
	CapValidator
	CapCreateMarket
	CapMaster
)

// capabilityNames maps config/API names to capabilities.
var capabilityNames = map[string]Capability{
	"basic":           CapBasic,
	"delegate":        CapDelegate,
	"high_confidence": CapHighConfidence,
	"validator":       CapValidator,
	"create_market":   CapCreateMarket,
	"master":          CapMaster,
}

// CapabilityFromName resolves a capability by its config name.
func CapabilityFromName(name string) (Capability, bool) {
	c, ok := capabilityNames[name]
	return c, ok
}

// CapabilitySet is a bitset of unlocked capabilities. It only ever grows.
type CapabilitySet uint8

// Has reports whether the set contains c.
func (s CapabilitySet) Has(c Capability) bool {
	return s&CapabilitySet(c) != 0
}

// Union returns the set extended with every capability in other.
func (s CapabilitySet) Union(other CapabilitySet) CapabilitySet {
	return s | other
}

// Names returns the config names of all capabilities in the set,
// smallest bit first.
func (s CapabilitySet) Names() []string {
	ordered := []string{"basic", "delegate", "high_confidence", "validator", "create_market", "master"}
	var names []string
	for _, n := range ordered {
		if s.Has(capabilityNames[n]) {
			names = append(names, n)
		}
	}
	return names
}

// AgentStats holds cumulative per-agent counters.
type AgentStats struct {
	TotalBets          int64
	CorrectPredictions int64
	TotalWins          int64
	TotalEarnings      int64 // sats
	TotalStaked        int64 // sats
	ReferralCount      int64
	ReferralBonus      float64
}

// Agent is a registered participant. The registry owns all Agent records;
// everything handed out of the registry is a copy.
type Agent struct {
	ID           string // externally supplied, stable
	Name         string
	Handle       string // optional social handle
	ReferrerID   string
	RegisteredAt time.Time

	Verified   bool // set once, never cleared
	Experience int64
	Level      int
	Streak     int
	MaxStreak  int

	IsValidator bool
	StakeAmount int64 // validator collateral, sats

	DelegatingTo string // at most one outgoing delegation edge

	Unlocked CapabilitySet
	Stats    AgentStats
}

// AgentStatus is the read-only snapshot served to callers.
type AgentStatus struct {
	ID           string
	Name         string
	Level        int
	Experience   int64
	NextLevelXP  int64 // -1 when already at the top level
	Streak       int
	MaxStreak    int
	Verified     bool
	IsValidator  bool
	StakeAmount  int64
	Capabilities []string
	Delegators   int
	Stats        AgentStats
}

// -----------------------------------------------------------------------------
// Epochs and bets
// -----------------------------------------------------------------------------

// EpochStatus is the epoch lifecycle state. Closed is terminal.
type EpochStatus string

const (
	EpochOpen   EpochStatus = "open"
	EpochClosed EpochStatus = "closed"
)

// Topic is the question an epoch asks. Answer stays empty unless the
// question is externally resolved before settlement.
type Topic struct {
	Question string
	Category string
	Answer   string
}

// Bet is one agent's wager in an epoch. Immutable after submission except
// for IsCorrect, which settlement sets when the topic resolved.
type Bet struct {
	ID             string
	AgentID        string
	Prediction     string
	DeclaredAnswer string // optional
	Confidence     Confidence
	Stake          int64   // sats, positive
	Weight         float64 // frozen at submission time
	IsCorrect      bool
	SubmittedAt    time.Time
}

// Epoch is one betting round from open to settlement.
type Epoch struct {
	ID           string
	ExternalSeed string
	LocalSalt    string // hex-encoded random bytes drawn at open time
	Topic        Topic
	Status       EpochStatus
	OpenedAt     time.Time

	Bets       []Bet // append-only while open; order is tie-break stability only
	TotalStake int64 // always equals the sum of Bets[].Stake

	// Settlement fields, written exactly once.
	WinningTier int // 0 = no win
	WinnerBetID string
	Prize       int64
	Digest      string
	SettledAt   time.Time
}

// SettlementResult summarizes one settled epoch.
type SettlementResult struct {
	EpochID       string
	Topic         Topic
	Tier          int
	HashValue     uint16
	WinnerBetID   string // empty when tier 0 or no bets
	WinnerAgentID string
	WinnerName    string
	Prize         int64
	TotalPool     int64
	Participants  int
	Digest        string
	SettledAt     time.Time
}

// -----------------------------------------------------------------------------
// Seasons
// -----------------------------------------------------------------------------

// SeasonStanding is one agent's accumulated score since season start.
type SeasonStanding struct {
	AgentID    string
	Name       string
	Experience int64
	Wins       int
}

// Season identifies a leaderboard window spanning many epochs.
type Season struct {
	ID        string
	StartedAt time.Time
	EndsAt    time.Time
}
