package services

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/classarena/classarena/models"
	"github.com/classarena/classarena/repositories"
)

// EntryInput — заявка на участие: ровно одно из полей должно быть заполнено.
type EntryInput struct {
	StudentID *int `json:"student_id,omitempty"`
	TeamID    *int `json:"team_id,omitempty"`
}

// RegistryService управляет составом участников турнира до построения сетки.
type RegistryService interface {
	Add(ctx context.Context, caller models.Caller, tournamentID int, entry EntryInput) (*models.Participant, error)
	// AddMany применяет Add атомарно: либо сохраняются все заявки, либо ни одной.
	AddMany(ctx context.Context, caller models.Caller, tournamentID int, entries []EntryInput) ([]*models.Participant, error)
	Remove(ctx context.Context, caller models.Caller, tournamentID, participantID int) error
	// Shuffle случайно переставляет порядок посева. Допустим только в draft.
	Shuffle(ctx context.Context, caller models.Caller, tournamentID int) ([]*models.Participant, error)
}

type registryService struct {
	tx              repositories.TxManager
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	rng             *rand.Rand
}

func NewRegistryService(
	tx repositories.TxManager,
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	rng *rand.Rand,
) RegistryService {
	return &registryService{
		tx:              tx,
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		rng:             rng,
	}
}

func (s *registryService) Add(ctx context.Context, caller models.Caller, tournamentID int, entry EntryInput) (*models.Participant, error) {
	var created *models.Participant
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		tournament, err := s.tournamentRepo.GetForUpdate(ctx, exec, tournamentID)
		if err != nil {
			return mapRepoError(err)
		}
		participant, err := s.buildEntry(tournament, entry)
		if err != nil {
			return err
		}
		if err := s.participantRepo.Create(ctx, exec, participant); err != nil {
			return mapRepoError(err)
		}
		created = participant
		return nil
	})
	if err != nil {
		return nil, mapRepoError(err)
	}
	return created, nil
}

func (s *registryService) AddMany(ctx context.Context, caller models.Caller, tournamentID int, entries []EntryInput) ([]*models.Participant, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: entries list is empty", ErrValidation)
	}
	var created []*models.Participant
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		created = created[:0]
		tournament, err := s.tournamentRepo.GetForUpdate(ctx, exec, tournamentID)
		if err != nil {
			return mapRepoError(err)
		}
		for _, entry := range entries {
			participant, err := s.buildEntry(tournament, entry)
			if err != nil {
				return err
			}
			if err := s.participantRepo.Create(ctx, exec, participant); err != nil {
				return mapRepoError(err)
			}
			created = append(created, participant)
		}
		return nil
	})
	if err != nil {
		return nil, mapRepoError(err)
	}
	return created, nil
}

// buildEntry валидирует заявку против конфигурации турнира.
func (s *registryService) buildEntry(tournament *models.Tournament, entry EntryInput) (*models.Participant, error) {
	if tournament.Status != models.TournamentDraft {
		return nil, fmt.Errorf("%w: participants can only be added while the tournament is a draft", ErrInvalidState)
	}
	if (entry.StudentID == nil) == (entry.TeamID == nil) {
		return nil, fmt.Errorf("%w: exactly one of student_id or team_id must be set", ErrValidation)
	}
	if entry.StudentID != nil && tournament.ParticipantKind != models.KindIndividual {
		return nil, fmt.Errorf("%w: tournament accepts teams, got a student entry", ErrTypeMismatch)
	}
	if entry.TeamID != nil && tournament.ParticipantKind != models.KindTeam {
		return nil, fmt.Errorf("%w: tournament accepts individual students, got a team entry", ErrTypeMismatch)
	}
	return &models.Participant{
		TournamentID: tournament.ID,
		StudentID:    entry.StudentID,
		TeamID:       entry.TeamID,
		Active:       true,
	}, nil
}

func (s *registryService) Remove(ctx context.Context, caller models.Caller, tournamentID, participantID int) error {
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		tournament, err := s.tournamentRepo.GetForUpdate(ctx, exec, tournamentID)
		if err != nil {
			return mapRepoError(err)
		}
		if tournament.Status != models.TournamentDraft {
			return fmt.Errorf("%w: participants can only be removed while the tournament is a draft", ErrInvalidState)
		}
		participant, err := s.participantRepo.GetByID(ctx, participantID)
		if err != nil {
			return mapRepoError(err)
		}
		if participant.TournamentID != tournamentID {
			return fmt.Errorf("%w: participant %d does not belong to tournament %d", ErrNotFound, participantID, tournamentID)
		}
		return mapRepoError(s.participantRepo.Delete(ctx, exec, participantID))
	})
	return mapRepoError(err)
}

func (s *registryService) Shuffle(ctx context.Context, caller models.Caller, tournamentID int) ([]*models.Participant, error) {
	var shuffled []*models.Participant
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		tournament, err := s.tournamentRepo.GetForUpdate(ctx, exec, tournamentID)
		if err != nil {
			return mapRepoError(err)
		}
		if tournament.Status != models.TournamentDraft {
			return fmt.Errorf("%w: shuffle is only allowed while the tournament is a draft", ErrInvalidState)
		}

		participants, err := s.participantRepo.ListByTournament(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		s.rng.Shuffle(len(participants), func(i, j int) {
			participants[i], participants[j] = participants[j], participants[i]
		})
		for i, p := range participants {
			seed := i + 1
			if err := s.participantRepo.UpdateSeed(ctx, exec, p.ID, seed); err != nil {
				return mapRepoError(err)
			}
			p.Seed = &seed
		}
		shuffled = participants
		return nil
	})
	if err != nil {
		return nil, mapRepoError(err)
	}
	return shuffled, nil
}
