package services

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/classarena/classarena/models"
	"github.com/classarena/classarena/repositories"
)

// questionOrder возвращает вопросы матча в порядке турнира: банк
// перемешивается генератором с зерном турнира, поэтому порядок одинаков для
// всех матчей и обеих сторон и не пересчитывается между запросами.
func questionOrder(t *models.Tournament, bank []*models.Question) []*models.Question {
	ordered := make([]*models.Question, len(bank))
	copy(ordered, bank)

	rng := rand.New(rand.NewSource(t.QuestionSeed))
	rng.Shuffle(len(ordered), func(i, j int) {
		ordered[i], ordered[j] = ordered[j], ordered[i]
	})

	if t.QuestionCount > 0 && len(ordered) > t.QuestionCount {
		ordered = ordered[:t.QuestionCount]
	}
	return ordered
}

// decideWinner вычисляет победителя завершающегося матча: число верных
// ответов, при равенстве — меньшее суммарное время, при равенстве времени —
// coin flip, если он включён конфигурацией турнира. Если и это недоступно,
// матч требует ручного разрешения.
func decideWinner(t *models.Tournament, m *models.Match, answers []*models.Answer, rng *rand.Rand, logger *slog.Logger) (*int, error) {
	if m.ParticipantAID == nil || m.ParticipantBID == nil {
		return m.ParticipantAID, nil // bye
	}
	aID, bID := *m.ParticipantAID, *m.ParticipantBID

	var scoreA, scoreB int
	var elapsedA, elapsedB int64
	for _, ans := range answers {
		switch ans.ParticipantID {
		case aID:
			if ans.Correct {
				scoreA++
			}
			elapsedA += ans.ElapsedMs
		case bID:
			if ans.Correct {
				scoreB++
			}
			elapsedB += ans.ElapsedMs
		}
	}

	switch {
	case scoreA > scoreB:
		return &aID, nil
	case scoreB > scoreA:
		return &bID, nil
	case elapsedA < elapsedB:
		return &aID, nil
	case elapsedB < elapsedA:
		return &bID, nil
	}

	if !t.CoinFlipTieBreak {
		return nil, fmt.Errorf("%w: match %d tied on score %d and elapsed %dms", ErrAmbiguousResult, m.ID, scoreA, elapsedA)
	}

	winner := aID
	if rng.Intn(2) == 1 {
		winner = bID
	}
	if logger != nil {
		logger.Warn("match tied on score and elapsed time, resolved by coin flip",
			slog.Int("match_id", m.ID),
			slog.Int("winner_participant_id", winner),
		)
	}
	return &winner, nil
}

// bothAnswered — оба участника ответили на вопрос с индексом index.
func bothAnswered(m *models.Match, answers []*models.Answer, index int) bool {
	if m.ParticipantAID == nil || m.ParticipantBID == nil {
		return false
	}
	var a, b bool
	for _, ans := range answers {
		if ans.QuestionIndex != index {
			continue
		}
		if ans.ParticipantID == *m.ParticipantAID {
			a = true
		}
		if ans.ParticipantID == *m.ParticipantBID {
			b = true
		}
	}
	return a && b
}

// mapRepoError переводит ошибки репозиториев в сервисную таксономию.
func mapRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrTournamentNotFound),
		errors.Is(err, repositories.ErrParticipantNotFound),
		errors.Is(err, repositories.ErrMatchNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, repositories.ErrParticipantDuplicate):
		return fmt.Errorf("%w: %v", ErrDuplicateParticipant, err)
	case errors.Is(err, repositories.ErrAnswerDuplicate):
		return fmt.Errorf("%w: %v", ErrDuplicateAnswer, err)
	case errors.Is(err, repositories.ErrTxContention):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return err
	}
}

func derefParticipants(slice []*models.Participant) []models.Participant {
	result := make([]models.Participant, 0, len(slice))
	for _, ptr := range slice {
		if ptr != nil {
			result = append(result, *ptr)
		}
	}
	return result
}

func derefMatches(slice []*models.Match) []models.Match {
	result := make([]models.Match, 0, len(slice))
	for _, ptr := range slice {
		if ptr != nil {
			result = append(result, *ptr)
		}
	}
	return result
}
