package brackets

import (
	"context"
	"errors"

	"github.com/classarena/classarena/models"
)

// ErrUnsupportedType возвращается для типов турнира, для которых топология
// сетки не определена (например, DOUBLE_ELIMINATION).
var ErrUnsupportedType = errors.New("bracket type is not supported")

// GenerateParams — вход генератора: турнир и участники, упорядоченные по seed.
type GenerateParams struct {
	Tournament   *models.Tournament
	Participants []*models.Participant
}

// PlannedMatch — матч будущей сетки до сохранения в БД. Связи между матчами
// выражены через UID, оркестратор превращает их в FK при сохранении.
type PlannedMatch struct {
	UID   string
	Round int
	Slot  int

	ParticipantAID *int
	ParticipantBID *int

	Status              models.MatchStatus
	WinnerParticipantID *int

	// NextUID/NextSlot — преемник, который получит победителя этого матча.
	// nil для финала и для round robin.
	NextUID  *string
	NextSlot *int
}

// Generator детерминированно строит дерево матчей из упорядоченного
// списка участников. Чистая функция: БД не трогает.
type Generator interface {
	Generate(ctx context.Context, params GenerateParams) ([]*PlannedMatch, error)

	Name() string
}

// ForType возвращает генератор для типа турнира.
func ForType(t models.TournamentType) (Generator, error) {
	switch t {
	case models.TypeSingleElimination:
		return NewSingleEliminationGenerator(), nil
	case models.TypeRoundRobin:
		return NewRoundRobinGenerator(), nil
	default:
		// Раутинг нижней сетки double elimination не специфицирован,
		// не угадываем его по одному значению enum.
		return nil, ErrUnsupportedType
	}
}
