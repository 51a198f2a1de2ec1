package models

import "time"

// TimedOutOption записывается как выбранный вариант, когда участник не
// ответил до истечения лимита и был засчитан как ответивший неверно.
const TimedOutOption = -1

// Answer — ответ участника на вопрос матча. Append-only: повторная отправка
// для той же тройки (match, participant, question_index) отклоняется,
// а не перезаписывается.
type Answer struct {
	ID             int       `json:"id" db:"id"`
	MatchID        int       `json:"match_id" db:"match_id"`
	ParticipantID  int       `json:"participant_id" db:"participant_id"`
	QuestionIndex  int       `json:"question_index" db:"question_index"`
	SelectedOption int       `json:"selected_option" db:"selected_option"`
	Correct        bool      `json:"correct" db:"correct"`
	ElapsedMs      int64     `json:"elapsed_ms" db:"elapsed_ms"`
	SubmittedAt    time.Time `json:"submitted_at" db:"submitted_at"`
}
