package brackets

import (
	"context"
	"fmt"

	"github.com/classarena/classarena/models"
)

type RoundRobinGenerator struct{}

func NewRoundRobinGenerator() Generator {
	return &RoundRobinGenerator{}
}

func (g *RoundRobinGenerator) Name() string {
	return "RoundRobin"
}

// Generate строит расписание round robin методом круга: каждый участник
// играет с каждым ровно один раз. При нечётном числе участников добавляется
// фиктивный соперник — матч против него не создаётся, участник в этом туре
// отдыхает.
//
// Матчей-преемников нет: победитель турнира определяется оркестратором по
// числу побед после завершения всех матчей.
func (g *RoundRobinGenerator) Generate(ctx context.Context, params GenerateParams) ([]*PlannedMatch, error) {
	participants := params.Participants
	n := len(participants)

	if n < 2 {
		return nil, fmt.Errorf("not enough participants for a round robin schedule (found %d, min 2 required)", n)
	}

	// Кольцо ID участников; nil — фиктивный соперник при нечётном n.
	ring := make([]*int, 0, n+1)
	for _, p := range participants {
		id := p.ID
		ring = append(ring, &id)
	}
	if len(ring)%2 != 0 {
		ring = append(ring, nil)
	}

	m := len(ring)
	rounds := m - 1

	matches := make([]*PlannedMatch, 0, n*(n-1)/2)
	for r := 1; r <= rounds; r++ {
		slot := 0
		for i := 0; i < m/2; i++ {
			pa := ring[i]
			pb := ring[m-1-i]
			if pa == nil || pb == nil {
				continue
			}
			matches = append(matches, &PlannedMatch{
				UID:            matchUID(r, slot),
				Round:          r,
				Slot:           slot,
				ParticipantAID: pa,
				ParticipantBID: pb,
				// Оба участника известны сразу.
				Status: models.MatchWaitingParticipants,
			})
			slot++
		}
		// Поворот кольца: первый элемент зафиксирован.
		last := ring[m-1]
		copy(ring[2:], ring[1:m-1])
		ring[1] = last
	}

	return matches, nil
}
