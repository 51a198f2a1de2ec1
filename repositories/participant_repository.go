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
	ErrParticipantNotFound  = errors.New("participant not found")
	ErrParticipantDuplicate = errors.New("participant is already entered in this tournament")
	ErrParticipantInvalid   = errors.New("participant references conflict or invalid")
)

type ParticipantRepository interface {
	Create(ctx context.Context, exec SQLExecutor, participant *models.Participant) error
	GetByID(ctx context.Context, id int) (*models.Participant, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Participant, error)
	Delete(ctx context.Context, exec SQLExecutor, id int) error
	UpdateSeed(ctx context.Context, exec SQLExecutor, id int, seed int) error
	Deactivate(ctx context.Context, exec SQLExecutor, id int) error
}

type postgresParticipantRepository struct {
	db *sql.DB
}

func NewPostgresParticipantRepository(db *sql.DB) ParticipantRepository {
	return &postgresParticipantRepository{db: db}
}

const participantColumns = `id, tournament_id, student_id, team_id, seed, active, created_at`

func (r *postgresParticipantRepository) Create(ctx context.Context, exec SQLExecutor, p *models.Participant) error {
	if exec == nil {
		exec = r.db
	}
	query := `
		INSERT INTO participants (tournament_id, student_id, team_id, seed, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := exec.QueryRowContext(ctx, query,
		p.TournamentID,
		p.StudentID,
		p.TeamID,
		p.Seed,
		p.Active,
	).Scan(&p.ID, &p.CreatedAt)

	return r.handleParticipantError(err)
}

func scanParticipant(row interface{ Scan(...interface{}) error }) (*models.Participant, error) {
	p := &models.Participant{}
	err := row.Scan(
		&p.ID,
		&p.TournamentID,
		&p.StudentID,
		&p.TeamID,
		&p.Seed,
		&p.Active,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *postgresParticipantRepository) GetByID(ctx context.Context, id int) (*models.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE id = $1`

	p, err := scanParticipant(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to scan participant by id %d: %w", id, err)
	}
	return p, nil
}

// ListByTournament возвращает участников в порядке посева (несеяные — в конце,
// в порядке регистрации).
func (r *postgresParticipantRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Participant, error) {
	if exec == nil {
		exec = r.db
	}
	query := `
		SELECT ` + participantColumns + `
		FROM participants
		WHERE tournament_id = $1
		ORDER BY seed ASC NULLS LAST, id ASC`

	rows, err := exec.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	participants := make([]*models.Participant, 0)
	for rows.Next() {
		p, scanErr := scanParticipant(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan participant row: %w", scanErr)
		}
		participants = append(participants, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during participant rows iteration: %w", err)
	}
	return participants, nil
}

func (r *postgresParticipantRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	if exec == nil {
		exec = r.db
	}
	result, err := exec.ExecContext(ctx, `DELETE FROM participants WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresParticipantRepository) UpdateSeed(ctx context.Context, exec SQLExecutor, id int, seed int) error {
	result, err := exec.ExecContext(ctx, `UPDATE participants SET seed = $1 WHERE id = $2`, seed, id)
	if err != nil {
		return fmt.Errorf("failed to update seed for participant %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresParticipantRepository) Deactivate(ctx context.Context, exec SQLExecutor, id int) error {
	result, err := exec.ExecContext(ctx, `UPDATE participants SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate participant %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresParticipantRepository) handleParticipantError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Constraint {
		case "participants_tournament_student_key", "participants_tournament_team_key":
			return ErrParticipantDuplicate
		case "participants_tournament_id_fkey":
			return ErrParticipantInvalid
		}
	}
	return err
}
