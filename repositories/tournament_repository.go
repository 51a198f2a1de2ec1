package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/classarena/classarena/models"
)

var ErrTournamentNotFound = errors.New("tournament not found")

type TournamentRepository interface {
	Create(ctx context.Context, tournament *models.Tournament) error
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	GetForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	ListByClassroom(ctx context.Context, classroomID int) ([]*models.Tournament, error)
	MarkInProgress(ctx context.Context, exec SQLExecutor, id int) error
	MarkCompleted(ctx context.Context, exec SQLExecutor, id int, winnerParticipantID *int) error
	MarkCancelled(ctx context.Context, exec SQLExecutor, id int) error
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

const tournamentColumns = `
	id, classroom_id, name, type, status, participant_kind, question_bank_id,
	question_count, answer_time_limit_ms, points_per_win, coin_flip_tie_break,
	question_seed, winner_participant_id, created_at, started_at, completed_at`

func (r *postgresTournamentRepository) Create(ctx context.Context, t *models.Tournament) error {
	query := `
		INSERT INTO tournaments
			(classroom_id, name, type, status, participant_kind, question_bank_id,
			 question_count, answer_time_limit_ms, points_per_win, coin_flip_tie_break, question_seed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		t.ClassroomID,
		t.Name,
		t.Type,
		t.Status,
		t.ParticipantKind,
		t.QuestionBankID,
		t.QuestionCount,
		t.AnswerTimeLimit,
		t.PointsPerWin,
		t.CoinFlipTieBreak,
		t.QuestionSeed,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert tournament: %w", err)
	}
	return nil
}

func scanTournament(row interface{ Scan(...interface{}) error }) (*models.Tournament, error) {
	t := &models.Tournament{}
	err := row.Scan(
		&t.ID,
		&t.ClassroomID,
		&t.Name,
		&t.Type,
		&t.Status,
		&t.ParticipantKind,
		&t.QuestionBankID,
		&t.QuestionCount,
		&t.AnswerTimeLimit,
		&t.PointsPerWin,
		&t.CoinFlipTieBreak,
		&t.QuestionSeed,
		&t.WinnerParticipantID,
		&t.CreatedAt,
		&t.StartedAt,
		&t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1`

	t, err := scanTournament(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to scan tournament by id %d: %w", id, err)
	}
	return t, nil
}

// GetForUpdate читает турнир с блокировкой строки. Используется внутри
// транзакций, чтобы повторная проверка статуса перед фиксацией держалась
// до Commit (кооперативная отмена).
func (r *postgresTournamentRepository) GetForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1 FOR UPDATE`

	t, err := scanTournament(exec.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to lock tournament %d: %w", id, err)
	}
	return t, nil
}

func (r *postgresTournamentRepository) ListByClassroom(ctx context.Context, classroomID int) ([]*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE classroom_id = $1 ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, classroomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tournaments for classroom %d: %w", classroomID, err)
	}
	defer rows.Close()

	tournaments := make([]*models.Tournament, 0)
	for rows.Next() {
		t, scanErr := scanTournament(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan tournament row: %w", scanErr)
		}
		tournaments = append(tournaments, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during tournament rows iteration: %w", err)
	}
	return tournaments, nil
}

func (r *postgresTournamentRepository) MarkInProgress(ctx context.Context, exec SQLExecutor, id int) error {
	query := `UPDATE tournaments SET status = $1, started_at = now() WHERE id = $2`
	result, err := exec.ExecContext(ctx, query, models.TournamentInProgress, id)
	if err != nil {
		return fmt.Errorf("failed to mark tournament %d in progress: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) MarkCompleted(ctx context.Context, exec SQLExecutor, id int, winnerParticipantID *int) error {
	query := `UPDATE tournaments SET status = $1, winner_participant_id = $2, completed_at = now() WHERE id = $3`
	result, err := exec.ExecContext(ctx, query, models.TournamentCompleted, winnerParticipantID, id)
	if err != nil {
		return fmt.Errorf("failed to mark tournament %d completed: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) MarkCancelled(ctx context.Context, exec SQLExecutor, id int) error {
	query := `UPDATE tournaments SET status = $1, completed_at = now() WHERE id = $2`
	result, err := exec.ExecContext(ctx, query, models.TournamentCancelled, id)
	if err != nil {
		return fmt.Errorf("failed to mark tournament %d cancelled: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}
