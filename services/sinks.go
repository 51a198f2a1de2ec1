package services

import (
	"context"
	"log/slog"
)

// RewardSink получает начисления очков победителям. С точки зрения
// оркестратора — fire-and-forget: идемпотентность обеспечивается журналом
// начислений (point_awards), а не самим приёмником.
type RewardSink interface {
	AwardPoints(ctx context.Context, participantID, amount int, reason string)
}

// Notifier рассылает события турнира заинтересованным клиентам.
// Реализация по умолчанию — websocket-хаб (пакет realtime).
type Notifier interface {
	TournamentUpdated(tournamentID int, event string, payload interface{})
}

// logRewardSink — приёмник начислений по умолчанию: экономика/магазин живут
// во внешней подсистеме, здесь начисление только логируется.
type logRewardSink struct {
	logger *slog.Logger
}

func NewLogRewardSink(logger *slog.Logger) RewardSink {
	return &logRewardSink{logger: logger}
}

func (s *logRewardSink) AwardPoints(ctx context.Context, participantID, amount int, reason string) {
	s.logger.InfoContext(ctx, "points awarded",
		slog.Int("participant_id", participantID),
		slog.Int("amount", amount),
		slog.String("reason", reason),
	)
}

type noopNotifier struct{}

// NewNoopNotifier используется там, где realtime-хаб не поднят (тесты, CLI).
func NewNoopNotifier() Notifier { return noopNotifier{} }

func (noopNotifier) TournamentUpdated(int, string, interface{}) {}
