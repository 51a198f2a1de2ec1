package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/classarena/classarena/models"
)

var (
	ErrMatchNotFound    = errors.New("match not found")
	ErrMatchInvalidSlot = errors.New("match slot must be A (1) or B (2)")
)

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	GetByID(ctx context.Context, id int) (*models.Match, error)
	GetForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, round *int, status *models.MatchStatus) ([]*models.Match, error)
	SetNextMatch(ctx context.Context, exec SQLExecutor, id int, nextMatchID int, nextSlot int) error
	SetParticipant(ctx context.Context, exec SQLExecutor, id int, slot int, participantID int) error
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.MatchStatus) error
	SetCurrentQuestion(ctx context.Context, exec SQLExecutor, id int, index int) error
	Complete(ctx context.Context, exec SQLExecutor, id int, winnerParticipantID *int) error
	CancelLive(ctx context.Context, exec SQLExecutor, tournamentID int) error
	ListUnpropagated(ctx context.Context) ([]*models.Match, error)
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

const matchColumns = `
	id, tournament_id, round, slot, participant_a_id, participant_b_id, status,
	current_question, winner_participant_id, next_match_id, next_slot, created_at, completed_at`

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, m *models.Match) error {
	if exec == nil {
		exec = r.db
	}
	query := `
		INSERT INTO matches
			(tournament_id, round, slot, participant_a_id, participant_b_id, status,
			 current_question, winner_participant_id, next_match_id, next_slot, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		        CASE WHEN $6 = 'completed' THEN now() END)
		RETURNING id, created_at`

	err := exec.QueryRowContext(ctx, query,
		m.TournamentID,
		m.Round,
		m.Slot,
		m.ParticipantAID,
		m.ParticipantBID,
		m.Status,
		m.CurrentQuestion,
		m.WinnerParticipantID,
		m.NextMatchID,
		m.NextSlot,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert match: %w", err)
	}
	return nil
}

func scanMatch(row interface{ Scan(...interface{}) error }) (*models.Match, error) {
	m := &models.Match{}
	err := row.Scan(
		&m.ID,
		&m.TournamentID,
		&m.Round,
		&m.Slot,
		&m.ParticipantAID,
		&m.ParticipantBID,
		&m.Status,
		&m.CurrentQuestion,
		&m.WinnerParticipantID,
		&m.NextMatchID,
		&m.NextSlot,
		&m.CreatedAt,
		&m.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id int) (*models.Match, error) {
	query := `SELECT` + matchColumns + ` FROM matches WHERE id = $1`

	m, err := scanMatch(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match by id %d: %w", id, err)
	}
	return m, nil
}

func (r *postgresMatchRepository) GetForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error) {
	query := `SELECT` + matchColumns + ` FROM matches WHERE id = $1 FOR UPDATE`

	m, err := scanMatch(exec.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to lock match %d: %w", id, err)
	}
	return m, nil
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, roundFilter *int, statusFilter *models.MatchStatus) ([]*models.Match, error) {
	if exec == nil {
		exec = r.db
	}
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT` + matchColumns + ` FROM matches WHERE tournament_id = $1`)

	args := []interface{}{tournamentID}
	placeholderIndex := 2

	if roundFilter != nil {
		queryBuilder.WriteString(" AND round = $")
		queryBuilder.WriteString(strconv.Itoa(placeholderIndex))
		args = append(args, *roundFilter)
		placeholderIndex++
	}
	if statusFilter != nil {
		queryBuilder.WriteString(" AND status = $")
		queryBuilder.WriteString(strconv.Itoa(placeholderIndex))
		args = append(args, *statusFilter)
	}

	queryBuilder.WriteString(" ORDER BY round ASC, slot ASC")

	rows, err := exec.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		m, scanErr := scanMatch(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", scanErr)
		}
		matches = append(matches, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during match rows iteration: %w", err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) SetNextMatch(ctx context.Context, exec SQLExecutor, id int, nextMatchID int, nextSlot int) error {
	query := `UPDATE matches SET next_match_id = $1, next_slot = $2 WHERE id = $3`
	result, err := exec.ExecContext(ctx, query, nextMatchID, nextSlot, id)
	if err != nil {
		return fmt.Errorf("failed to link match %d to successor %d: %w", id, nextMatchID, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) SetParticipant(ctx context.Context, exec SQLExecutor, id int, slot int, participantID int) error {
	var column string
	switch slot {
	case models.SlotA:
		column = "participant_a_id"
	case models.SlotB:
		column = "participant_b_id"
	default:
		return ErrMatchInvalidSlot
	}
	query := `UPDATE matches SET ` + column + ` = $1 WHERE id = $2`
	result, err := exec.ExecContext(ctx, query, participantID, id)
	if err != nil {
		return fmt.Errorf("failed to set participant for match %d slot %d: %w", id, slot, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.MatchStatus) error {
	result, err := exec.ExecContext(ctx, `UPDATE matches SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update status for match %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) SetCurrentQuestion(ctx context.Context, exec SQLExecutor, id int, index int) error {
	result, err := exec.ExecContext(ctx, `UPDATE matches SET current_question = $1 WHERE id = $2`, index, id)
	if err != nil {
		return fmt.Errorf("failed to advance question for match %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) Complete(ctx context.Context, exec SQLExecutor, id int, winnerParticipantID *int) error {
	query := `UPDATE matches SET status = $1, winner_participant_id = $2, completed_at = now() WHERE id = $3`
	result, err := exec.ExecContext(ctx, query, models.MatchCompleted, winnerParticipantID, id)
	if err != nil {
		return fmt.Errorf("failed to complete match %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

// CancelLive завершает все нетерминальные матчи турнира без победителя
// (сентинел отмены). Продвижения по ним не происходит.
func (r *postgresMatchRepository) CancelLive(ctx context.Context, exec SQLExecutor, tournamentID int) error {
	query := `
		UPDATE matches
		SET status = $1, completed_at = now()
		WHERE tournament_id = $2 AND status <> $1`
	if _, err := exec.ExecContext(ctx, query, models.MatchCompleted, tournamentID); err != nil {
		return fmt.Errorf("failed to cancel live matches for tournament %d: %w", tournamentID, err)
	}
	return nil
}

// ListUnpropagated находит завершённые матчи, чей победитель ещё не попал
// в слот преемника. Используется при старте процесса для replay продвижения
// после падения между завершением матча и линковкой.
func (r *postgresMatchRepository) ListUnpropagated(ctx context.Context) ([]*models.Match, error) {
	query := `
		SELECT ` + qualifiedMatchColumns("m") + `
		FROM matches m
		JOIN matches n ON n.id = m.next_match_id
		WHERE m.status = 'completed'
		  AND m.winner_participant_id IS NOT NULL
		  AND ((m.next_slot = 1 AND n.participant_a_id IS NULL)
		    OR (m.next_slot = 2 AND n.participant_b_id IS NULL))
		ORDER BY m.tournament_id, m.round, m.slot`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query unpropagated matches: %w", err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		m, scanErr := scanMatch(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan unpropagated match row: %w", scanErr)
		}
		matches = append(matches, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during unpropagated match rows iteration: %w", err)
	}
	return matches, nil
}

func qualifiedMatchColumns(alias string) string {
	cols := strings.Split(strings.ReplaceAll(matchColumns, "\n", " "), ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
