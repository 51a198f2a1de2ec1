package models

import "time"

// TournamentType соответствует ENUM tournament_type в БД.
type TournamentType string

const (
	TypeSingleElimination TournamentType = "SINGLE_ELIMINATION"
	TypeDoubleElimination TournamentType = "DOUBLE_ELIMINATION"
	TypeRoundRobin        TournamentType = "ROUND_ROBIN"
)

func (t TournamentType) Valid() bool {
	switch t {
	case TypeSingleElimination, TypeDoubleElimination, TypeRoundRobin:
		return true
	}
	return false
}

// TournamentStatus представляет статусы турнира, соответствующие ENUM в БД.
type TournamentStatus string

const (
	TournamentDraft      TournamentStatus = "draft"
	TournamentInProgress TournamentStatus = "in_progress"
	TournamentCompleted  TournamentStatus = "completed"
	TournamentCancelled  TournamentStatus = "cancelled"
)

// ParticipantKind определяет, кто соревнуется: отдельные ученики или команды.
type ParticipantKind string

const (
	KindIndividual ParticipantKind = "INDIVIDUAL"
	KindTeam       ParticipantKind = "TEAM"
)

func (k ParticipantKind) Valid() bool {
	return k == KindIndividual || k == KindTeam
}

// Tournament представляет турнир знаний внутри класса.
// Мутируется только через операции оркестратора.
type Tournament struct {
	ID               int              `json:"id" db:"id"`
	ClassroomID      int              `json:"classroom_id" db:"classroom_id"`
	Name             string           `json:"name" db:"name"`
	Type             TournamentType   `json:"type" db:"type"`
	Status           TournamentStatus `json:"status" db:"status"`
	ParticipantKind  ParticipantKind  `json:"participant_kind" db:"participant_kind"`
	QuestionBankID   int              `json:"question_bank_id" db:"question_bank_id"`
	QuestionCount    int              `json:"question_count" db:"question_count"`
	AnswerTimeLimit  int              `json:"answer_time_limit_ms" db:"answer_time_limit_ms"`
	PointsPerWin     int              `json:"points_per_win" db:"points_per_win"`
	CoinFlipTieBreak bool             `json:"coin_flip_tie_break" db:"coin_flip_tie_break"`
	// QuestionSeed фиксирует порядок вопросов: банк перемешивается один раз
	// при создании турнира, дальше порядок для всех матчей одинаков.
	QuestionSeed        int64      `json:"-" db:"question_seed"`
	WinnerParticipantID *int       `json:"winner_participant_id,omitempty" db:"winner_participant_id"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	StartedAt           *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty" db:"completed_at"`

	// Опциональные связанные сущности (не мапятся напрямую)
	Participants []Participant `json:"participants,omitempty" db:"-"`
	Matches      []Match       `json:"matches,omitempty" db:"-"`
}

// Closed сообщает, принимает ли турнир операции над матчами.
func (t *Tournament) Closed() bool {
	return t.Status == TournamentCompleted || t.Status == TournamentCancelled
}

// ValidTournamentTransition проверяет допустимость перехода статуса турнира.
func ValidTournamentTransition(current, next TournamentStatus) bool {
	if current == next {
		return true
	}
	allowed := map[TournamentStatus][]TournamentStatus{
		TournamentDraft:      {TournamentInProgress, TournamentCancelled},
		TournamentInProgress: {TournamentCompleted, TournamentCancelled},
		TournamentCompleted:  {},
		TournamentCancelled:  {},
	}
	for _, s := range allowed[current] {
		if next == s {
			return true
		}
	}
	return false
}
