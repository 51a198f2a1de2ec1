package models

import "time"

// Participant — запись участника турнира. Ровно одно из полей StudentID /
// TeamID заполнено, в зависимости от ParticipantKind турнира.
// После построения сетки идентичность участника неизменна; единственная
// допустимая поздняя мутация — seed во время shuffle в статусе draft.
type Participant struct {
	ID           int       `json:"id" db:"id"`
	TournamentID int       `json:"tournament_id" db:"tournament_id"`
	StudentID    *int      `json:"student_id,omitempty" db:"student_id"`
	TeamID       *int      `json:"team_id,omitempty" db:"team_id"`
	Seed         *int      `json:"seed,omitempty" db:"seed"`
	Active       bool      `json:"active" db:"active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Kind возвращает тип участника по заполненной ссылке.
func (p *Participant) Kind() ParticipantKind {
	if p.TeamID != nil {
		return KindTeam
	}
	return KindIndividual
}
