package notify

import (
	"log/slog"

	"github.com/ahl-labs/lotteryd/internal/model"
)

// LogSink records epoch lifecycle events in the process log. It is the
// always-on sink; relays and the archive are optional on top of it.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) EmitEpochOpened(e model.Epoch) {
	s.logger.Info("epoch open for bets",
		"epoch_id", e.ID,
		"question", e.Topic.Question,
		"category", e.Topic.Category,
	)
}

func (s *LogSink) EmitSettlement(res model.SettlementResult) {
	s.logger.Info("settlement result",
		"epoch_id", res.EpochID,
		"question", res.Topic.Question,
		"tier", res.Tier,
		"winner", res.WinnerName,
		"prize_sats", res.Prize,
		"pool_sats", res.TotalPool,
		"participants", res.Participants,
		"digest", res.Digest,
	)
}
