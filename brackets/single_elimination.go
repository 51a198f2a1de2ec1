package brackets

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/classarena/classarena/models"
)

type SingleEliminationGenerator struct {
}

func NewSingleEliminationGenerator() Generator {
	return &SingleEliminationGenerator{}
}

func (g *SingleEliminationGenerator) Name() string {
	return "SingleElimination"
}

// Generate строит полное дерево single elimination.
//   - Размер сетки — ближайшая степень двойки >= числа участников,
//     недостающие слоты — byes.
//   - Стандартный посев: seed 1 против самого слабого соперника, byes
//     достаются верхним сеяным, поэтому два bye не встречаются в первом
//     раунде (при n >= 2 это невозможно по построению).
//   - Каждый матч знает своего преемника (NextUID/NextSlot), чтобы
//     оркестратор продвигал победителей без переcчёта арифметики раундов.
//   - Bye-матчи создаются сразу завершёнными; их победители каскадно
//     разливаются по плану итеративным worklist-ом.
func (g *SingleEliminationGenerator) Generate(ctx context.Context, params GenerateParams) ([]*PlannedMatch, error) {
	participants := params.Participants
	n := len(participants)

	if n < 2 {
		return nil, errors.New("not enough participants to generate a single elimination bracket (minimum 2)")
	}

	numRounds := int(math.Ceil(math.Log2(float64(n))))
	bracketSize := 1 << uint(numRounds)

	order := seedOrder(bracketSize)

	all := make([]*PlannedMatch, 0, bracketSize-1)
	byUID := make(map[string]*PlannedMatch)

	// Первый раунд: пары по стандартному посеву. Seed > n означает bye.
	for slot := 0; slot < bracketSize/2; slot++ {
		seedA := order[slot*2]
		seedB := order[slot*2+1]

		var pa, pb *int
		if seedA <= n {
			id := participants[seedA-1].ID
			pa = &id
		}
		if seedB <= n {
			id := participants[seedB-1].ID
			pb = &id
		}
		if pa == nil && pb == nil {
			return nil, fmt.Errorf("two byes paired in round 1 at slot %d (participants=%d, bracket=%d)", slot, n, bracketSize)
		}
		// Единственный участник всегда в слоте A, пустой B обозначает bye.
		if pa == nil {
			pa, pb = pb, nil
		}

		pm := &PlannedMatch{
			UID:            matchUID(1, slot),
			Round:          1,
			Slot:           slot,
			ParticipantAID: pa,
			ParticipantBID: pb,
			Status:         models.MatchWaitingParticipants,
		}
		if pb == nil {
			pm.Status = models.MatchCompleted
			pm.WinnerParticipantID = pa
		}
		all = append(all, pm)
		byUID[pm.UID] = pm
	}

	// Последующие раунды: плейсхолдеры, участники появятся при продвижении.
	for r := 2; r <= numRounds; r++ {
		matchesInRound := bracketSize >> uint(r)
		for slot := 0; slot < matchesInRound; slot++ {
			pm := &PlannedMatch{
				UID:    matchUID(r, slot),
				Round:  r,
				Slot:   slot,
				Status: models.MatchPending,
			}
			all = append(all, pm)
			byUID[pm.UID] = pm
		}
	}

	// Связывание: матч (r, slot) кормит (r+1, slot/2); чётный slot — слот A.
	for _, pm := range all {
		if pm.Round == numRounds {
			continue // финал
		}
		nextUID := matchUID(pm.Round+1, pm.Slot/2)
		next := pm.Slot % 2
		slotConst := models.SlotA
		if next == 1 {
			slotConst = models.SlotB
		}
		pm.NextUID = &nextUID
		pm.NextSlot = &slotConst
	}

	// Каскад bye: worklist вместо рекурсии, чтобы глубокие сетки не росли
	// в стек вызовов.
	worklist := make([]*PlannedMatch, 0, len(all))
	for _, pm := range all {
		if pm.Status == models.MatchCompleted {
			worklist = append(worklist, pm)
		}
	}
	for len(worklist) > 0 {
		pm := worklist[0]
		worklist = worklist[1:]

		if pm.NextUID == nil || pm.WinnerParticipantID == nil {
			continue
		}
		next := byUID[*pm.NextUID]
		if next == nil {
			return nil, fmt.Errorf("match %s links to unknown successor %s", pm.UID, *pm.NextUID)
		}
		if *pm.NextSlot == models.SlotA {
			next.ParticipantAID = pm.WinnerParticipantID
		} else {
			next.ParticipantBID = pm.WinnerParticipantID
		}
		if next.ParticipantAID != nil && next.ParticipantBID != nil && next.Status == models.MatchPending {
			next.Status = models.MatchWaitingParticipants
		}
	}

	return all, nil
}

func matchUID(round, slot int) string {
	return fmt.Sprintf("R%dM%d", round, slot+1)
}

// seedOrder возвращает посев в порядке слотов сетки: соседние элементы —
// пары первого раунда. Классическое построение удвоением: на каждом шаге
// seed x дополняется зеркальным 2k+1-x.
func seedOrder(size int) []int {
	order := []int{1}
	for len(order) < size {
		doubled := make([]int, 0, len(order)*2)
		mirror := len(order)*2 + 1
		for _, s := range order {
			doubled = append(doubled, s, mirror-s)
		}
		order = doubled
	}
	return order
}
