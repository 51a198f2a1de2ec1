package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/classarena/classarena/brackets"
	"github.com/classarena/classarena/models"
	"github.com/classarena/classarena/repositories"
	"golang.org/x/sync/errgroup"
)

// TournamentDefaults — значения конфигурации, применяемые, когда создатель
// турнира их не указал.
type TournamentDefaults struct {
	AnswerTimeLimitMs int
	PointsPerWin      int
	CoinFlipTieBreak  bool
}

type CreateTournamentInput struct {
	ClassroomID      int                    `json:"classroom_id"`
	Name             string                 `json:"name"`
	Type             models.TournamentType  `json:"type"`
	ParticipantKind  models.ParticipantKind `json:"participant_kind"`
	QuestionBankID   int                    `json:"question_bank_id"`
	QuestionCount    int                    `json:"question_count"`
	AnswerTimeLimit  *int                   `json:"answer_time_limit_ms,omitempty"`
	PointsPerWin     *int                   `json:"points_per_win,omitempty"`
	CoinFlipTieBreak *bool                  `json:"coin_flip_tie_break,omitempty"`
}

// TournamentService — оркестратор: владеет жизненным циклом турнира,
// строит сетку через генераторы, продвигает победителей между раундами и
// финализирует турнир.
type TournamentService interface {
	Create(ctx context.Context, caller models.Caller, input CreateTournamentInput) (*models.Tournament, error)
	Get(ctx context.Context, tournamentID int) (*models.Tournament, error)
	ListByClassroom(ctx context.Context, classroomID int) ([]*models.Tournament, error)
	BuildAndStart(ctx context.Context, caller models.Caller, tournamentID int) (*models.Tournament, error)
	Cancel(ctx context.Context, caller models.Caller, tournamentID int) error
	// RecoverPropagation перечитывает завершённые матчи, чьи победители не
	// дошли до преемника (падение между завершением и линковкой), и
	// повторяет продвижение. Идемпотентно по построению.
	RecoverPropagation(ctx context.Context) error

	MatchObserver
}

type tournamentService struct {
	tx              repositories.TxManager
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	matchRepo       repositories.MatchRepository
	awardRepo       repositories.AwardRepository
	questionRepo    repositories.QuestionRepository
	rewardSink      RewardSink
	notifier        Notifier
	defaults        TournamentDefaults
	rng             *rand.Rand
	logger          *slog.Logger
}

func NewTournamentService(
	tx repositories.TxManager,
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	matchRepo repositories.MatchRepository,
	awardRepo repositories.AwardRepository,
	questionRepo repositories.QuestionRepository,
	rewardSink RewardSink,
	notifier Notifier,
	defaults TournamentDefaults,
	rng *rand.Rand,
	logger *slog.Logger,
) TournamentService {
	return &tournamentService{
		tx:              tx,
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		matchRepo:       matchRepo,
		awardRepo:       awardRepo,
		questionRepo:    questionRepo,
		rewardSink:      rewardSink,
		notifier:        notifier,
		defaults:        defaults,
		rng:             rng,
		logger:          logger,
	}
}

func (s *tournamentService) Create(ctx context.Context, caller models.Caller, input CreateTournamentInput) (*models.Tournament, error) {
	if !input.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown tournament type %q", ErrValidation, input.Type)
	}
	if !input.ParticipantKind.Valid() {
		return nil, fmt.Errorf("%w: unknown participant kind %q", ErrValidation, input.ParticipantKind)
	}
	if input.Name == "" {
		return nil, fmt.Errorf("%w: tournament name is required", ErrValidation)
	}
	if input.QuestionCount <= 0 {
		return nil, fmt.Errorf("%w: question count must be positive", ErrValidation)
	}

	// Совместимость с банком вопросов проверяется при создании, а не при
	// первом матче.
	bank, err := s.questionRepo.ListByBank(ctx, input.QuestionBankID)
	if err != nil {
		return nil, err
	}
	if len(bank) < input.QuestionCount {
		return nil, fmt.Errorf("%w: question bank %d has %d questions, %d requested",
			ErrValidation, input.QuestionBankID, len(bank), input.QuestionCount)
	}

	tournament := &models.Tournament{
		ClassroomID:      input.ClassroomID,
		Name:             input.Name,
		Type:             input.Type,
		Status:           models.TournamentDraft,
		ParticipantKind:  input.ParticipantKind,
		QuestionBankID:   input.QuestionBankID,
		QuestionCount:    input.QuestionCount,
		AnswerTimeLimit:  s.defaults.AnswerTimeLimitMs,
		PointsPerWin:     s.defaults.PointsPerWin,
		CoinFlipTieBreak: s.defaults.CoinFlipTieBreak,
		QuestionSeed:     s.rng.Int63(),
	}
	if input.AnswerTimeLimit != nil {
		tournament.AnswerTimeLimit = *input.AnswerTimeLimit
	}
	if input.PointsPerWin != nil {
		tournament.PointsPerWin = *input.PointsPerWin
	}
	if input.CoinFlipTieBreak != nil {
		tournament.CoinFlipTieBreak = *input.CoinFlipTieBreak
	}

	if err := s.tournamentRepo.Create(ctx, tournament); err != nil {
		return nil, err
	}
	return tournament, nil
}

// Get собирает полный вид турнира: сам турнир, участники и матчи грузятся
// параллельно.
func (s *tournamentService) Get(ctx context.Context, tournamentID int) (*models.Tournament, error) {
	var tournament *models.Tournament
	var participants []*models.Participant
	var matches []*models.Match

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := s.tournamentRepo.GetByID(gCtx, tournamentID)
		if err != nil {
			return mapRepoError(err)
		}
		tournament = t
		return nil
	})
	g.Go(func() error {
		list, err := s.participantRepo.ListByTournament(gCtx, nil, tournamentID)
		if err != nil {
			return err
		}
		participants = list
		return nil
	})
	g.Go(func() error {
		list, err := s.matchRepo.ListByTournament(gCtx, nil, tournamentID, nil, nil)
		if err != nil {
			return err
		}
		matches = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tournament.Participants = derefParticipants(participants)
	tournament.Matches = derefMatches(matches)
	return tournament, nil
}

func (s *tournamentService) ListByClassroom(ctx context.Context, classroomID int) ([]*models.Tournament, error) {
	return s.tournamentRepo.ListByClassroom(ctx, classroomID)
}

func (s *tournamentService) BuildAndStart(ctx context.Context, caller models.Caller, tournamentID int) (*models.Tournament, error) {
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		tournament, err := s.tournamentRepo.GetForUpdate(ctx, exec, tournamentID)
		if err != nil {
			return mapRepoError(err)
		}
		if tournament.Status != models.TournamentDraft {
			return fmt.Errorf("%w: bracket can only be built from a draft, tournament is %s", ErrInvalidState, tournament.Status)
		}

		participants, err := s.participantRepo.ListByTournament(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if len(participants) < 2 {
			return fmt.Errorf("%w: found %d", ErrInsufficientParticipants, len(participants))
		}

		// Несеяные получают места после сеяных в порядке регистрации, чтобы
		// сетка была детерминированной и без shuffle.
		nextSeed := 0
		for _, p := range participants {
			if p.Seed != nil && *p.Seed > nextSeed {
				nextSeed = *p.Seed
			}
		}
		for _, p := range participants {
			if p.Seed != nil {
				continue
			}
			nextSeed++
			seed := nextSeed
			if err := s.participantRepo.UpdateSeed(ctx, exec, p.ID, seed); err != nil {
				return mapRepoError(err)
			}
			p.Seed = &seed
		}

		generator, err := brackets.ForType(tournament.Type)
		if err != nil {
			if errors.Is(err, brackets.ErrUnsupportedType) {
				return fmt.Errorf("%w: %s", ErrUnsupportedBracketType, tournament.Type)
			}
			return err
		}

		plan, err := generator.Generate(ctx, brackets.GenerateParams{
			Tournament:   tournament,
			Participants: participants,
		})
		if err != nil {
			return err
		}

		// Первый проход: сохранить матчи, запомнив соответствие UID -> id.
		idByUID := make(map[string]int, len(plan))
		for _, pm := range plan {
			match := &models.Match{
				TournamentID:        tournamentID,
				Round:               pm.Round,
				Slot:                pm.Slot,
				ParticipantAID:      pm.ParticipantAID,
				ParticipantBID:      pm.ParticipantBID,
				Status:              pm.Status,
				WinnerParticipantID: pm.WinnerParticipantID,
			}
			if err := s.matchRepo.Create(ctx, exec, match); err != nil {
				return err
			}
			idByUID[pm.UID] = match.ID
		}

		// Второй проход: превратить UID-ссылки в FK на преемника.
		for _, pm := range plan {
			if pm.NextUID == nil {
				continue
			}
			nextID, ok := idByUID[*pm.NextUID]
			if !ok {
				return fmt.Errorf("bracket plan references unknown match UID %s", *pm.NextUID)
			}
			if err := s.matchRepo.SetNextMatch(ctx, exec, idByUID[pm.UID], nextID, *pm.NextSlot); err != nil {
				return mapRepoError(err)
			}
		}

		return mapRepoError(s.tournamentRepo.MarkInProgress(ctx, exec, tournamentID))
	})
	if err != nil {
		return nil, mapRepoError(err)
	}

	s.notifier.TournamentUpdated(tournamentID, "bracket_built", nil)
	return s.Get(ctx, tournamentID)
}

// MatchCompleted — реакция оркестратора на завершение матча. Выполняется в
// транзакции завершившего матч вызова: продвижение победителя атомарно с
// завершением. Возвращённый hook шлёт уведомления после Commit.
func (s *tournamentService) MatchCompleted(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, match *models.Match) (func(), error) {
	if tournament.Closed() {
		return nil, fmt.Errorf("%w: tournament %d is %s", ErrTournamentClosed, tournament.ID, tournament.Status)
	}

	var afterHooks []func()
	winner := match.WinnerParticipantID

	// Проигравший выбывает (в round robin выбывания нет).
	if winner != nil && tournament.Type != models.TypeRoundRobin && match.ParticipantAID != nil && match.ParticipantBID != nil {
		loser := *match.ParticipantAID
		if loser == *winner {
			loser = *match.ParticipantBID
		}
		if err := s.participantRepo.Deactivate(ctx, exec, loser); err != nil {
			return nil, mapRepoError(err)
		}
	}

	// Очки начисляются только за сыгранные матчи; bye ничего не выигрывает.
	// Журнал начислений делает повтор (дубликат complete, replay
	// восстановления) no-op-ом.
	if winner != nil && !match.Bye() && tournament.PointsPerWin > 0 {
		award := &models.PointAward{
			TournamentID:  tournament.ID,
			MatchID:       match.ID,
			ParticipantID: *winner,
			Points:        tournament.PointsPerWin,
			Reason:        fmt.Sprintf("tournament %d: round %d match win", tournament.ID, match.Round),
		}
		inserted, err := s.awardRepo.Create(ctx, exec, award)
		if err != nil {
			return nil, err
		}
		if inserted {
			w, points, reason := *winner, award.Points, award.Reason
			afterHooks = append(afterHooks, func() {
				s.rewardSink.AwardPoints(ctx, w, points, reason)
			})
		}
	}

	if match.NextMatchID != nil {
		if err := s.propagateWinner(ctx, exec, match); err != nil {
			return nil, err
		}
	} else if err := s.maybeFinalize(ctx, exec, tournament, match, &afterHooks); err != nil {
		return nil, err
	}

	tID, mID := tournament.ID, match.ID
	afterHooks = append(afterHooks, func() {
		s.notifier.TournamentUpdated(tID, "match_completed", map[string]interface{}{
			"match_id":              mID,
			"winner_participant_id": winner,
		})
	})

	return func() {
		for _, hook := range afterHooks {
			hook()
		}
	}, nil
}

// propagateWinner вносит победителя в свободный слот преемника и открывает
// преемника, когда оба слота заполнены. Трогает ровно один матч: соседей
// блокировать не нужно.
func (s *tournamentService) propagateWinner(ctx context.Context, exec repositories.SQLExecutor, match *models.Match) error {
	if match.WinnerParticipantID == nil || match.NextMatchID == nil || match.NextSlot == nil {
		return nil
	}
	if err := s.matchRepo.SetParticipant(ctx, exec, *match.NextMatchID, *match.NextSlot, *match.WinnerParticipantID); err != nil {
		return mapRepoError(err)
	}
	next, err := s.matchRepo.GetForUpdate(ctx, exec, *match.NextMatchID)
	if err != nil {
		return mapRepoError(err)
	}
	if next.Status == models.MatchPending && next.ParticipantAID != nil && next.ParticipantBID != nil {
		if err := s.matchRepo.UpdateStatus(ctx, exec, next.ID, models.MatchWaitingParticipants); err != nil {
			return mapRepoError(err)
		}
	}
	return nil
}

// maybeFinalize завершает турнир, когда матчей без преемника больше не
// осталось: финал single elimination или последний матч round robin.
func (s *tournamentService) maybeFinalize(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, match *models.Match, afterHooks *[]func()) error {
	var champion *int

	switch tournament.Type {
	case models.TypeRoundRobin:
		matches, err := s.matchRepo.ListByTournament(ctx, exec, tournament.ID, nil, nil)
		if err != nil {
			return err
		}
		for _, m := range matches {
			if m.ID != match.ID && m.Status != models.MatchCompleted {
				return nil // расписание ещё не доиграно
			}
		}
		participants, err := s.participantRepo.ListByTournament(ctx, exec, tournament.ID)
		if err != nil {
			return err
		}
		champion = roundRobinChampion(matches, participants)
	default:
		// Матч без преемника в сетке на выбывание — финал.
		champion = match.WinnerParticipantID
	}

	if err := s.tournamentRepo.MarkCompleted(ctx, exec, tournament.ID, champion); err != nil {
		return mapRepoError(err)
	}
	tournament.Status = models.TournamentCompleted
	tournament.WinnerParticipantID = champion

	tID := tournament.ID
	*afterHooks = append(*afterHooks, func() {
		s.notifier.TournamentUpdated(tID, "tournament_completed", map[string]interface{}{
			"winner_participant_id": champion,
		})
	})
	if s.logger != nil {
		s.logger.Info("tournament completed", slog.Int("tournament_id", tID))
	}
	return nil
}

// roundRobinChampion: больше побед — выше; при равенстве побеждает меньший
// seed (детерминированный разрешитель для кругового формата).
func roundRobinChampion(matches []*models.Match, participants []*models.Participant) *int {
	wins := make(map[int]int)
	for _, m := range matches {
		if m.WinnerParticipantID != nil {
			wins[*m.WinnerParticipantID]++
		}
	}

	var best *models.Participant
	for _, p := range participants {
		if best == nil {
			best = p
			continue
		}
		pw, bw := wins[p.ID], wins[best.ID]
		if pw > bw {
			best = p
			continue
		}
		if pw == bw && p.Seed != nil && best.Seed != nil && *p.Seed < *best.Seed {
			best = p
		}
	}
	if best == nil {
		return nil
	}
	id := best.ID
	return &id
}

func (s *tournamentService) Cancel(ctx context.Context, caller models.Caller, tournamentID int) error {
	var cancelled bool
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		cancelled = false
		tournament, err := s.tournamentRepo.GetForUpdate(ctx, exec, tournamentID)
		if err != nil {
			return mapRepoError(err)
		}
		if tournament.Status == models.TournamentCancelled {
			return nil // повторная отмена — no-op
		}
		if tournament.Status == models.TournamentCompleted {
			return fmt.Errorf("%w: completed tournament cannot be cancelled", ErrInvalidState)
		}
		if err := s.matchRepo.CancelLive(ctx, exec, tournamentID); err != nil {
			return err
		}
		if err := s.tournamentRepo.MarkCancelled(ctx, exec, tournamentID); err != nil {
			return mapRepoError(err)
		}
		cancelled = true
		return nil
	})
	if err != nil {
		return mapRepoError(err)
	}
	if cancelled {
		s.notifier.TournamentUpdated(tournamentID, "tournament_cancelled", nil)
	}
	return nil
}

func (s *tournamentService) RecoverPropagation(ctx context.Context) error {
	pending, err := s.matchRepo.ListUnpropagated(ctx)
	if err != nil {
		return err
	}
	for _, stale := range pending {
		matchID := stale.ID
		var after func()
		err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
			after = nil
			tournament, err := s.tournamentRepo.GetForUpdate(ctx, exec, stale.TournamentID)
			if err != nil {
				return mapRepoError(err)
			}
			if tournament.Closed() {
				return nil
			}
			match, err := s.matchRepo.GetForUpdate(ctx, exec, matchID)
			if err != nil {
				return mapRepoError(err)
			}
			if match.Status != models.MatchCompleted || match.WinnerParticipantID == nil {
				return nil
			}
			hook, err := s.MatchCompleted(ctx, exec, tournament, match)
			if err != nil {
				return err
			}
			after = hook
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to replay propagation for match %d: %w", matchID, err)
		}
		if after != nil {
			after()
		}
		if s.logger != nil {
			s.logger.Info("replayed winner propagation", slog.Int("match_id", matchID))
		}
	}
	return nil
}
