package services

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/classarena/classarena/models"
	"github.com/classarena/classarena/repositories"
)

// MatchObserver уведомляется о завершении матча в той же транзакции, в
// которой матч завершён: продвижение победителя атомарно с завершением.
// Возвращённый hook выполняется после Commit (уведомления, внешние sink-и).
type MatchObserver interface {
	MatchCompleted(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, match *models.Match) (func(), error)
}

// QuestionView — вопрос без ключа ответа, как его видит клиент.
type QuestionView struct {
	Index   int               `json:"index"`
	Text    string            `json:"text"`
	Options models.OptionList `json:"options"`
}

// MatchState — состояние матча для клиента: сам матч плюс текущий вопрос.
type MatchState struct {
	Match          *models.Match `json:"match"`
	Question       *QuestionView `json:"question,omitempty"`
	TotalQuestions int           `json:"total_questions"`
}

type SubmitAnswerInput struct {
	ParticipantID  int   `json:"participant_id"`
	QuestionIndex  int   `json:"question_index"`
	SelectedOption int   `json:"selected_option"`
	ElapsedMs      int64 `json:"elapsed_ms"`
}

// SubmitAnswerResult — исход отправки ответа.
type SubmitAnswerResult struct {
	Answer         *models.Answer     `json:"answer"`
	MatchStatus    models.MatchStatus `json:"match_status"`
	QuestionClosed bool               `json:"question_closed"`
}

// MatchService — движок матча: очерёдность вопросов, приём ответов, подсчёт,
// завершение. Все мутации одного матча сериализованы.
type MatchService interface {
	Get(ctx context.Context, matchID int) (*MatchState, error)
	Start(ctx context.Context, caller models.Caller, matchID int) (*MatchState, error)
	SubmitAnswer(ctx context.Context, caller models.Caller, matchID int, input SubmitAnswerInput) (*SubmitAnswerResult, error)
	// AdvanceQuestion — явный перевод на следующий вопрос по истечении лимита
	// времени: не ответивший участник получает неверный ответ за вопрос.
	AdvanceQuestion(ctx context.Context, caller models.Caller, matchID int) (*MatchState, error)
	// Complete идемпотентен: повторный вызов для завершённого матча
	// возвращает того же победителя без ошибки. winnerOverride — ручное
	// разрешение ничьей учителем.
	Complete(ctx context.Context, caller models.Caller, matchID int, winnerOverride *int) (*models.Match, error)
	SetObserver(observer MatchObserver)
}

type matchService struct {
	tx              repositories.TxManager
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	matchRepo       repositories.MatchRepository
	answerRepo      repositories.AnswerRepository
	questionRepo    repositories.QuestionRepository
	locks           *matchLocks
	observer        MatchObserver
	rng             *rand.Rand
	logger          *slog.Logger
}

func NewMatchService(
	tx repositories.TxManager,
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	matchRepo repositories.MatchRepository,
	answerRepo repositories.AnswerRepository,
	questionRepo repositories.QuestionRepository,
	rng *rand.Rand,
	logger *slog.Logger,
) MatchService {
	return &matchService{
		tx:              tx,
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		matchRepo:       matchRepo,
		answerRepo:      answerRepo,
		questionRepo:    questionRepo,
		locks:           newMatchLocks(),
		rng:             rng,
		logger:          logger,
	}
}

// SetObserver подключает оркестратор после конструирования обоих сервисов.
func (s *matchService) SetObserver(observer MatchObserver) {
	s.observer = observer
}

func (s *matchService) Get(ctx context.Context, matchID int) (*MatchState, error) {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	tournament, err := s.tournamentRepo.GetByID(ctx, match.TournamentID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	questions, err := s.matchQuestions(ctx, tournament)
	if err != nil {
		return nil, err
	}
	state := &MatchState{Match: match, TotalQuestions: len(questions)}
	if match.Status == models.MatchInProgress && match.CurrentQuestion < len(questions) {
		state.Question = questionView(match.CurrentQuestion, questions[match.CurrentQuestion])
	}
	return state, nil
}

func (s *matchService) Start(ctx context.Context, caller models.Caller, matchID int) (*MatchState, error) {
	unlock := s.locks.lock(matchID)
	defer unlock()

	tournamentID, err := s.tournamentIDOf(ctx, matchID)
	if err != nil {
		return nil, err
	}

	var state *MatchState
	err = s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		tournament, match, err := s.loadForUpdate(ctx, exec, tournamentID, matchID)
		if err != nil {
			return err
		}
		if match.Status != models.MatchWaitingParticipants {
			return fmt.Errorf("%w: match %d is %s, expected %s", ErrInvalidState, matchID, match.Status, models.MatchWaitingParticipants)
		}

		questions, err := s.matchQuestions(ctx, tournament)
		if err != nil {
			return err
		}
		if len(questions) == 0 {
			return fmt.Errorf("%w: question bank %d is empty", ErrValidation, tournament.QuestionBankID)
		}
		if err := s.matchRepo.UpdateStatus(ctx, exec, matchID, models.MatchInProgress); err != nil {
			return mapRepoError(err)
		}
		match.Status = models.MatchInProgress
		state = &MatchState{
			Match:          match,
			Question:       questionView(0, questions[0]),
			TotalQuestions: len(questions),
		}
		return nil
	})
	if err != nil {
		return nil, mapRepoError(err)
	}
	return state, nil
}

func (s *matchService) SubmitAnswer(ctx context.Context, caller models.Caller, matchID int, input SubmitAnswerInput) (*SubmitAnswerResult, error) {
	unlock := s.locks.lock(matchID)
	defer unlock()

	tournamentID, err := s.tournamentIDOf(ctx, matchID)
	if err != nil {
		return nil, err
	}

	var result *SubmitAnswerResult
	var after func()
	err = s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		after = nil
		tournament, match, err := s.loadForUpdate(ctx, exec, tournamentID, matchID)
		if err != nil {
			return err
		}
		if match.Status != models.MatchInProgress {
			return fmt.Errorf("%w: match %d is %s, answers are only accepted in progress", ErrInvalidState, matchID, match.Status)
		}
		if !match.HasParticipant(input.ParticipantID) {
			return fmt.Errorf("%w: participant %d does not play in match %d", ErrNotParticipant, input.ParticipantID, matchID)
		}
		if err := s.checkOwnership(ctx, caller, tournament, input.ParticipantID); err != nil {
			return err
		}
		if input.QuestionIndex != match.CurrentQuestion {
			return fmt.Errorf("%w: submitted index %d, current is %d", ErrStaleQuestion, input.QuestionIndex, match.CurrentQuestion)
		}

		questions, err := s.matchQuestions(ctx, tournament)
		if err != nil {
			return err
		}
		question := questions[match.CurrentQuestion]

		answer := &models.Answer{
			MatchID:        matchID,
			ParticipantID:  input.ParticipantID,
			QuestionIndex:  input.QuestionIndex,
			SelectedOption: input.SelectedOption,
			Correct:        question.IsCorrect(input.SelectedOption),
			ElapsedMs:      input.ElapsedMs,
		}
		if err := s.answerRepo.Create(ctx, exec, answer); err != nil {
			return mapRepoError(err)
		}

		answers, err := s.answerRepo.ListByMatch(ctx, exec, matchID)
		if err != nil {
			return err
		}
		result = &SubmitAnswerResult{Answer: answer, MatchStatus: match.Status}

		// Второй ответ закрывает вопрос: дальше либо следующий индекс,
		// либо завершение матча.
		if bothAnswered(match, answers, match.CurrentQuestion) {
			result.QuestionClosed = true
			hook, err := s.advanceLocked(ctx, exec, tournament, match, len(questions), answers)
			if err != nil {
				return err
			}
			after = hook
			result.MatchStatus = match.Status
		}
		return nil
	})
	if err != nil {
		return nil, mapRepoError(err)
	}
	if after != nil {
		after()
	}
	return result, nil
}

func (s *matchService) AdvanceQuestion(ctx context.Context, caller models.Caller, matchID int) (*MatchState, error) {
	unlock := s.locks.lock(matchID)
	defer unlock()

	tournamentID, err := s.tournamentIDOf(ctx, matchID)
	if err != nil {
		return nil, err
	}

	var state *MatchState
	var after func()
	err = s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		after = nil
		tournament, match, err := s.loadForUpdate(ctx, exec, tournamentID, matchID)
		if err != nil {
			return err
		}
		if match.Status != models.MatchInProgress {
			return fmt.Errorf("%w: match %d is %s, cannot advance question", ErrInvalidState, matchID, match.Status)
		}

		questions, err := s.matchQuestions(ctx, tournament)
		if err != nil {
			return err
		}
		answers, err := s.answerRepo.ListByMatch(ctx, exec, matchID)
		if err != nil {
			return err
		}

		// Истёкший лимит: не ответившие получают неверный ответ на текущий
		// вопрос, чтобы счёт обеих сторон оставался сравнимым.
		answers, err = s.fillTimeouts(ctx, exec, tournament, match, answers)
		if err != nil {
			return err
		}

		hook, err := s.advanceLocked(ctx, exec, tournament, match, len(questions), answers)
		if err != nil {
			return err
		}
		after = hook

		state = &MatchState{Match: match, TotalQuestions: len(questions)}
		if match.Status == models.MatchInProgress && match.CurrentQuestion < len(questions) {
			state.Question = questionView(match.CurrentQuestion, questions[match.CurrentQuestion])
		}
		return nil
	})
	if err != nil {
		return nil, mapRepoError(err)
	}
	if after != nil {
		after()
	}
	return state, nil
}

func (s *matchService) Complete(ctx context.Context, caller models.Caller, matchID int, winnerOverride *int) (*models.Match, error) {
	unlock := s.locks.lock(matchID)
	defer unlock()

	tournamentID, err := s.tournamentIDOf(ctx, matchID)
	if err != nil {
		return nil, err
	}

	var completed *models.Match
	var after func()
	err = s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		after = nil
		// Порядок блокировок как в loadForUpdate: турнир -> матч.
		tournament, err := s.tournamentRepo.GetForUpdate(ctx, exec, tournamentID)
		if err != nil {
			return mapRepoError(err)
		}
		match, err := s.matchRepo.GetForUpdate(ctx, exec, matchID)
		if err != nil {
			return mapRepoError(err)
		}
		// Идемпотентность: дублирующий триггер завершения — no-op.
		if match.Status == models.MatchCompleted {
			completed = match
			return nil
		}
		if tournament.Closed() {
			return fmt.Errorf("%w: tournament %d is %s", ErrTournamentClosed, tournament.ID, tournament.Status)
		}
		if match.Status != models.MatchInProgress {
			return fmt.Errorf("%w: match %d is %s, cannot complete", ErrInvalidState, matchID, match.Status)
		}

		if winnerOverride != nil && !match.HasParticipant(*winnerOverride) {
			return fmt.Errorf("%w: override winner %d does not play in match %d", ErrValidation, *winnerOverride, matchID)
		}

		answers, err := s.answerRepo.ListByMatch(ctx, exec, matchID)
		if err != nil {
			return err
		}
		hook, err := s.completeLocked(ctx, exec, tournament, match, answers, winnerOverride)
		if err != nil {
			return err
		}
		after = hook
		completed = match
		return nil
	})
	if err != nil {
		return nil, mapRepoError(err)
	}
	if after != nil {
		after()
	}
	return completed, nil
}

// advanceLocked двигает матч на следующий вопрос или завершает его, когда
// вопросы исчерпаны. Вызывается под мьютексом матча внутри транзакции.
func (s *matchService) advanceLocked(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, match *models.Match, totalQuestions int, answers []*models.Answer) (func(), error) {
	next := match.CurrentQuestion + 1
	if next < totalQuestions {
		if err := s.matchRepo.SetCurrentQuestion(ctx, exec, match.ID, next); err != nil {
			return nil, mapRepoError(err)
		}
		match.CurrentQuestion = next
		return nil, nil
	}
	return s.completeLocked(ctx, exec, tournament, match, answers, nil)
}

func (s *matchService) completeLocked(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, match *models.Match, answers []*models.Answer, winnerOverride *int) (func(), error) {
	winner := winnerOverride
	if winner == nil {
		decided, err := decideWinner(tournament, match, answers, s.rng, s.logger)
		if err != nil {
			return nil, err
		}
		winner = decided
	}

	if err := s.matchRepo.Complete(ctx, exec, match.ID, winner); err != nil {
		return nil, mapRepoError(err)
	}
	match.Status = models.MatchCompleted
	match.WinnerParticipantID = winner

	if s.observer == nil {
		return nil, nil
	}
	return s.observer.MatchCompleted(ctx, exec, tournament, match)
}

// fillTimeouts дозаписывает неверные ответы за не успевших участников.
func (s *matchService) fillTimeouts(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, match *models.Match, answers []*models.Answer) ([]*models.Answer, error) {
	for _, pid := range []*int{match.ParticipantAID, match.ParticipantBID} {
		if pid == nil {
			continue
		}
		answered := false
		for _, ans := range answers {
			if ans.QuestionIndex == match.CurrentQuestion && ans.ParticipantID == *pid {
				answered = true
				break
			}
		}
		if answered {
			continue
		}
		timeoutAnswer := &models.Answer{
			MatchID:        match.ID,
			ParticipantID:  *pid,
			QuestionIndex:  match.CurrentQuestion,
			SelectedOption: models.TimedOutOption,
			Correct:        false,
			ElapsedMs:      int64(tournament.AnswerTimeLimit),
		}
		if err := s.answerRepo.Create(ctx, exec, timeoutAnswer); err != nil {
			return nil, mapRepoError(err)
		}
		answers = append(answers, timeoutAnswer)
	}
	return answers, nil
}

// checkOwnership: в индивидуальных турнирах ученик отвечает только за себя.
// Командное членство проверяется ростером на границе, ядро ему доверяет.
func (s *matchService) checkOwnership(ctx context.Context, caller models.Caller, tournament *models.Tournament, participantID int) error {
	if caller.CanManage() || tournament.ParticipantKind != models.KindIndividual {
		return nil
	}
	participant, err := s.participantRepo.GetByID(ctx, participantID)
	if err != nil {
		return mapRepoError(err)
	}
	if participant.StudentID == nil || *participant.StudentID != caller.UserID {
		return fmt.Errorf("%w: caller %d cannot answer for participant %d", ErrNotParticipant, caller.UserID, participantID)
	}
	return nil
}

func (s *matchService) tournamentIDOf(ctx context.Context, matchID int) (int, error) {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		return 0, mapRepoError(err)
	}
	return match.TournamentID, nil
}

// loadForUpdate блокирует турнир и матч в фиксированном порядке
// (турнир -> матч), чтобы завершение и отмена не взаимоблокировались.
// Статус турнира перепроверяется здесь уже под блокировкой: отмена,
// произошедшая между чтениями, прерывает операцию до фиксации.
func (s *matchService) loadForUpdate(ctx context.Context, exec repositories.SQLExecutor, tournamentID, matchID int) (*models.Tournament, *models.Match, error) {
	tournament, err := s.tournamentRepo.GetForUpdate(ctx, exec, tournamentID)
	if err != nil {
		return nil, nil, mapRepoError(err)
	}
	if tournament.Closed() {
		return nil, nil, fmt.Errorf("%w: tournament %d is %s", ErrTournamentClosed, tournament.ID, tournament.Status)
	}
	if tournament.Status != models.TournamentInProgress {
		return nil, nil, fmt.Errorf("%w: tournament %d is %s, matches are not playable", ErrInvalidState, tournament.ID, tournament.Status)
	}
	match, err := s.matchRepo.GetForUpdate(ctx, exec, matchID)
	if err != nil {
		return nil, nil, mapRepoError(err)
	}
	return tournament, match, nil
}

func (s *matchService) matchQuestions(ctx context.Context, tournament *models.Tournament) ([]*models.Question, error) {
	bank, err := s.questionRepo.ListByBank(ctx, tournament.QuestionBankID)
	if err != nil {
		return nil, err
	}
	return questionOrder(tournament, bank), nil
}

func questionView(index int, q *models.Question) *QuestionView {
	return &QuestionView{Index: index, Text: q.Text, Options: q.Options}
}
