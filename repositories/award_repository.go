package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/classarena/classarena/models"
)

type AwardRepository interface {
	// Create записывает начисление очков. Возвращает false, если начисление
	// за этот матч уже существует (ON CONFLICT DO NOTHING) — так повторное
	// завершение матча не приводит к двойному начислению.
	Create(ctx context.Context, exec SQLExecutor, award *models.PointAward) (bool, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.PointAward, error)
}

type postgresAwardRepository struct {
	db *sql.DB
}

func NewPostgresAwardRepository(db *sql.DB) AwardRepository {
	return &postgresAwardRepository{db: db}
}

func (r *postgresAwardRepository) Create(ctx context.Context, exec SQLExecutor, a *models.PointAward) (bool, error) {
	if exec == nil {
		exec = r.db
	}
	query := `
		INSERT INTO point_awards (tournament_id, match_id, participant_id, points, reason)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (match_id) DO NOTHING`

	result, err := exec.ExecContext(ctx, query,
		a.TournamentID,
		a.MatchID,
		a.ParticipantID,
		a.Points,
		a.Reason,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert point award for match %d: %w", a.MatchID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check affected rows: %w", err)
	}
	return rowsAffected > 0, nil
}

func (r *postgresAwardRepository) ListByTournament(ctx context.Context, tournamentID int) ([]*models.PointAward, error) {
	query := `
		SELECT id, tournament_id, match_id, participant_id, points, reason, created_at
		FROM point_awards
		WHERE tournament_id = $1
		ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query point awards for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	awards := make([]*models.PointAward, 0)
	for rows.Next() {
		a := &models.PointAward{}
		if scanErr := rows.Scan(
			&a.ID,
			&a.TournamentID,
			&a.MatchID,
			&a.ParticipantID,
			&a.Points,
			&a.Reason,
			&a.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan point award row: %w", scanErr)
		}
		awards = append(awards, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during point award rows iteration: %w", err)
	}
	return awards, nil
}
