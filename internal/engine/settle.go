package engine

import (
	"crypto/sha256"
	"encoding/binary"
	"strconv"
	"strings"
	"time"

	"github.com/ahl-labs/lotteryd/internal/config"
	"github.com/ahl-labs/lotteryd/internal/model"
)

// digestOf folds the epoch's seed material, every bet in submission
// order, and the settlement timestamp into one SHA-256 digest. The same
// snapshot and timestamp always reproduce the same digest, so any
// observer holding the epoch record can verify the outcome.
func digestOf(e model.Epoch, settledAt time.Time) [sha256.Size]byte {
	var fold strings.Builder
	for _, b := range e.Bets {
		fold.WriteString(b.ID)
		fold.WriteString(b.Prediction)
		fold.WriteString(strconv.FormatInt(b.Stake, 10))
		fold.WriteString(strconv.FormatFloat(b.Weight, 'f', -1, 64))
	}

	input := strings.Join([]string{
		e.ExternalSeed,
		e.LocalSalt,
		fold.String(),
		strconv.FormatInt(settledAt.UnixMilli(), 10),
	}, "|")

	return sha256.Sum256([]byte(input))
}

// hashValueOf is the digest's leading 16 bits, the value the tier table
// classifies.
func hashValueOf(digest [sha256.Size]byte) uint16 {
	return binary.BigEndian.Uint16(digest[:2])
}

// drawFraction derives a uniform value in [0,1) from digest bytes 2..9,
// past the bits that picked the tier. Truncating to 53 bits keeps the
// conversion exact in a float64.
func drawFraction(digest [sha256.Size]byte) float64 {
	u := binary.BigEndian.Uint64(digest[2:10])
	return float64(u>>11) / (1 << 53)
}

// tierTable classifies a 16-bit hash value against ascending thresholds.
type tierTable struct {
	rows []config.TierRow
}

// classify returns the 1-based tier of the first band containing the
// value and that band's pool share. A value at or past the last
// threshold wins nothing (tier 0).
func (t tierTable) classify(hv uint16) (int, float64) {
	for i, row := range t.rows {
		if int(hv) < row.Threshold {
			return i + 1, row.Share
		}
	}
	return 0, 0
}

// correctBets returns the ids of bets whose declared answer matches the
// resolved topic answer. Empty when the topic never resolved.
func correctBets(e model.Epoch) map[string]bool {
	out := make(map[string]bool)
	if e.Topic.Answer == "" {
		return out
	}
	for _, b := range e.Bets {
		if b.DeclaredAnswer != "" && b.DeclaredAnswer == e.Topic.Answer {
			out[b.ID] = true
		}
	}
	return out
}

// drawWeights returns each bet's share of the draw: weight times stake,
// boosted for bets that called the resolved answer.
func drawWeights(bets []model.Bet, correct map[string]bool, boost float64) []float64 {
	weights := make([]float64, len(bets))
	for i, b := range bets {
		w := b.Weight * float64(b.Stake)
		if correct[b.ID] {
			w *= boost
		}
		weights[i] = w
	}
	return weights
}

// pickIndex walks the weights subtracting each from the draw value and
// selects the bet where the remainder first drops to zero or below. The
// draw value must lie in [0, sum(weights)); the last bet absorbs any
// float rounding shortfall.
func pickIndex(weights []float64, draw float64) int {
	v := draw
	for i, w := range weights {
		v -= w
		if v <= 0 {
			return i
		}
	}
	return len(weights) - 1
}
