package models

import "time"

type MatchStatus string

const (
	MatchPending             MatchStatus = "pending"
	MatchWaitingParticipants MatchStatus = "waiting_participants"
	MatchInProgress          MatchStatus = "in_progress"
	MatchCompleted           MatchStatus = "completed"
)

// Слоты матча, на которые ссылается next_slot связанного фидера.
const (
	SlotA = 1
	SlotB = 2
)

// Match — один матч сетки. ParticipantBID == nil означает bye: матч
// создаётся сразу завершённым с победителем ParticipantAID и никогда
// не переходит в in_progress.
type Match struct {
	ID             int  `json:"id" db:"id"`
	TournamentID   int  `json:"tournament_id" db:"tournament_id"`
	Round          int  `json:"round" db:"round"`
	Slot           int  `json:"slot" db:"slot"`
	ParticipantAID *int `json:"participant_a_id,omitempty" db:"participant_a_id"`
	ParticipantBID *int `json:"participant_b_id,omitempty" db:"participant_b_id"`

	Status          MatchStatus `json:"status" db:"status"`
	CurrentQuestion int         `json:"current_question" db:"current_question"`

	WinnerParticipantID *int `json:"winner_participant_id,omitempty" db:"winner_participant_id"`

	// NextMatchID/NextSlot — явная ссылка на матч-преемник, задаётся при
	// построении сетки (nil для финала и для round robin).
	NextMatchID *int `json:"next_match_id,omitempty" db:"next_match_id"`
	NextSlot    *int `json:"next_slot,omitempty" db:"next_slot"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// HasParticipant проверяет, играет ли участник в этом матче.
func (m *Match) HasParticipant(participantID int) bool {
	if m.ParticipantAID != nil && *m.ParticipantAID == participantID {
		return true
	}
	if m.ParticipantBID != nil && *m.ParticipantBID == participantID {
		return true
	}
	return false
}

// Terminal сообщает, достиг ли матч конечного состояния.
func (m *Match) Terminal() bool {
	return m.Status == MatchCompleted
}

// Bye — матч без второго участника.
func (m *Match) Bye() bool {
	return m.ParticipantAID != nil && m.ParticipantBID == nil
}
