package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/classarena/classarena/models"
)

// QuestionRepository — читатель банка вопросов. Банк принадлежит внешней
// подсистеме, ядро турниров его не изменяет.
type QuestionRepository interface {
	ListByBank(ctx context.Context, bankID int) ([]*models.Question, error)
}

type postgresQuestionRepository struct {
	db *sql.DB
}

func NewPostgresQuestionRepository(db *sql.DB) QuestionRepository {
	return &postgresQuestionRepository{db: db}
}

func (r *postgresQuestionRepository) ListByBank(ctx context.Context, bankID int) ([]*models.Question, error) {
	query := `
		SELECT id, bank_id, text, options, correct_option, created_at
		FROM questions
		WHERE bank_id = $1
		ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, bankID)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions for bank %d: %w", bankID, err)
	}
	defer rows.Close()

	questions := make([]*models.Question, 0)
	for rows.Next() {
		q := &models.Question{}
		if scanErr := rows.Scan(
			&q.ID,
			&q.BankID,
			&q.Text,
			&q.Options,
			&q.CorrectOption,
			&q.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan question row: %w", scanErr)
		}
		questions = append(questions, q)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during question rows iteration: %w", err)
	}
	return questions, nil
}
