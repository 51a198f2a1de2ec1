package models

import "time"

// PointAward — запись о начислении очков победителю матча. Уникальность по
// match_id делает повторное начисление (дубликат триггера завершения,
// replay при восстановлении) идемпотентным.
type PointAward struct {
	ID            int       `json:"id" db:"id"`
	TournamentID  int       `json:"tournament_id" db:"tournament_id"`
	MatchID       int       `json:"match_id" db:"match_id"`
	ParticipantID int       `json:"participant_id" db:"participant_id"`
	Points        int       `json:"points" db:"points"`
	Reason        string    `json:"reason" db:"reason"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
