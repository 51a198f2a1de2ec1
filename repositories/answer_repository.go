package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/classarena/classarena/models"
	"github.com/lib/pq"
)

var (
	ErrAnswerDuplicate = errors.New("answer already recorded for this question")
	ErrAnswerInvalid   = errors.New("answer references conflict or invalid")
)

type AnswerRepository interface {
	Create(ctx context.Context, exec SQLExecutor, answer *models.Answer) error
	ListByMatch(ctx context.Context, exec SQLExecutor, matchID int) ([]*models.Answer, error)
}

type postgresAnswerRepository struct {
	db *sql.DB
}

func NewPostgresAnswerRepository(db *sql.DB) AnswerRepository {
	return &postgresAnswerRepository{db: db}
}

func (r *postgresAnswerRepository) Create(ctx context.Context, exec SQLExecutor, a *models.Answer) error {
	if exec == nil {
		exec = r.db
	}
	query := `
		INSERT INTO answers (match_id, participant_id, question_index, selected_option, correct, elapsed_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, submitted_at`

	err := exec.QueryRowContext(ctx, query,
		a.MatchID,
		a.ParticipantID,
		a.QuestionIndex,
		a.SelectedOption,
		a.Correct,
		a.ElapsedMs,
	).Scan(&a.ID, &a.SubmittedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Constraint {
			// Уникальность (match, participant, question_index): повторная
			// отправка отклоняется, первый ответ не перезаписывается.
			case "answers_match_participant_question_key":
				return ErrAnswerDuplicate
			case "answers_match_id_fkey", "answers_participant_id_fkey":
				return ErrAnswerInvalid
			}
		}
		return fmt.Errorf("failed to insert answer: %w", err)
	}
	return nil
}

func (r *postgresAnswerRepository) ListByMatch(ctx context.Context, exec SQLExecutor, matchID int) ([]*models.Answer, error) {
	if exec == nil {
		exec = r.db
	}
	query := `
		SELECT id, match_id, participant_id, question_index, selected_option, correct, elapsed_ms, submitted_at
		FROM answers
		WHERE match_id = $1
		ORDER BY question_index ASC, submitted_at ASC`

	rows, err := exec.QueryContext(ctx, query, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query answers for match %d: %w", matchID, err)
	}
	defer rows.Close()

	answers := make([]*models.Answer, 0)
	for rows.Next() {
		a := &models.Answer{}
		if scanErr := rows.Scan(
			&a.ID,
			&a.MatchID,
			&a.ParticipantID,
			&a.QuestionIndex,
			&a.SelectedOption,
			&a.Correct,
			&a.ElapsedMs,
			&a.SubmittedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan answer row: %w", scanErr)
		}
		answers = append(answers, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during answer rows iteration: %w", err)
	}
	return answers, nil
}
