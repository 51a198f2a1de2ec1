package brackets

import (
	"context"
	"testing"

	"github.com/classarena/classarena/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeParticipants(n int) []*models.Participant {
	participants := make([]*models.Participant, 0, n)
	for i := 0; i < n; i++ {
		seed := i + 1
		studentID := 100 + i
		participants = append(participants, &models.Participant{
			ID:        i + 1,
			StudentID: &studentID,
			Seed:      &seed,
			Active:    true,
		})
	}
	return participants
}

func generateSingle(t *testing.T, n int) []*PlannedMatch {
	t.Helper()
	gen := NewSingleEliminationGenerator()
	plan, err := gen.Generate(context.Background(), GenerateParams{
		Tournament:   &models.Tournament{ID: 1, Type: models.TypeSingleElimination},
		Participants: makeParticipants(n),
	})
	require.NoError(t, err)
	return plan
}

func TestSeedOrder(t *testing.T) {
	assert.Equal(t, []int{1, 2}, seedOrder(2))
	assert.Equal(t, []int{1, 4, 2, 3}, seedOrder(4))
	assert.Equal(t, []int{1, 8, 4, 5, 2, 7, 3, 6}, seedOrder(8))
}

func TestSingleEliminationMatchCount(t *testing.T) {
	tests := []struct {
		name          string
		participants  int
		wantMatches   int
		wantByes      int
		wantMaxRound  int
		wantFirstSize int
	}{
		{"two players", 2, 1, 0, 1, 1},
		{"three players, one bye", 3, 3, 1, 2, 2},
		{"four players", 4, 3, 0, 2, 2},
		{"five players, three byes", 5, 7, 3, 3, 4},
		{"eight players", 8, 7, 0, 3, 4},
		{"nine players, seven byes", 9, 15, 7, 4, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := generateSingle(t, tt.participants)
			assert.Len(t, plan, tt.wantMatches)

			byes := 0
			firstRound := 0
			maxRound := 0
			for _, pm := range plan {
				if pm.Round > maxRound {
					maxRound = pm.Round
				}
				if pm.Round == 1 {
					firstRound++
					if pm.ParticipantBID == nil {
						byes++
						// bye оформлен как завершённый матч с победителем в слоте A
						assert.Equal(t, models.MatchCompleted, pm.Status)
						require.NotNil(t, pm.ParticipantAID)
						require.NotNil(t, pm.WinnerParticipantID)
						assert.Equal(t, *pm.ParticipantAID, *pm.WinnerParticipantID)
					}
				}
			}
			assert.Equal(t, tt.wantByes, byes)
			assert.Equal(t, tt.wantMaxRound, maxRound)
			assert.Equal(t, tt.wantFirstSize, firstRound)
		})
	}
}

func TestSingleEliminationTopSeedsAvoidEachOther(t *testing.T) {
	plan := generateSingle(t, 8)

	// Посев 1 и 2 могут встретиться только в финале.
	for _, pm := range plan {
		if pm.Round == 3 {
			continue
		}
		if pm.ParticipantAID != nil && pm.ParticipantBID != nil {
			pair := map[int]bool{*pm.ParticipantAID: true, *pm.ParticipantBID: true}
			assert.False(t, pair[1] && pair[2], "seeds 1 and 2 met before the final in %s", pm.UID)
		}
	}
}

func TestSingleEliminationByesGoToTopSeeds(t *testing.T) {
	plan := generateSingle(t, 5)

	// При 5 участниках в сетке на 8 слотов byes получают посевы 1, 2 и 3.
	byeWinners := make(map[int]bool)
	for _, pm := range plan {
		if pm.Round == 1 && pm.ParticipantBID == nil {
			byeWinners[*pm.WinnerParticipantID] = true
		}
	}
	assert.Equal(t, map[int]bool{1: true, 2: true, 3: true}, byeWinners)
}

func TestSingleEliminationSuccessorLinks(t *testing.T) {
	plan := generateSingle(t, 8)

	byUID := make(map[string]*PlannedMatch, len(plan))
	for _, pm := range plan {
		byUID[pm.UID] = pm
	}

	finals := 0
	for _, pm := range plan {
		if pm.NextUID == nil {
			finals++
			assert.Equal(t, 3, pm.Round)
			continue
		}
		next, ok := byUID[*pm.NextUID]
		require.True(t, ok, "unknown successor %s", *pm.NextUID)
		assert.Equal(t, pm.Round+1, next.Round)
		assert.Equal(t, pm.Slot/2, next.Slot)
		require.NotNil(t, pm.NextSlot)
		if pm.Slot%2 == 0 {
			assert.Equal(t, models.SlotA, *pm.NextSlot)
		} else {
			assert.Equal(t, models.SlotB, *pm.NextSlot)
		}
	}
	assert.Equal(t, 1, finals)
}

func TestSingleEliminationByeCascade(t *testing.T) {
	// 3 участника: посев 1 получает bye и должен уже стоять в финале.
	plan := generateSingle(t, 3)

	var final *PlannedMatch
	for _, pm := range plan {
		if pm.Round == 2 {
			final = pm
		}
	}
	require.NotNil(t, final)
	require.NotNil(t, final.ParticipantAID)
	assert.Equal(t, 1, *final.ParticipantAID)
	assert.Nil(t, final.ParticipantBID)
	// Второй слот финала ещё пуст, матч остаётся плейсхолдером
	assert.Equal(t, models.MatchPending, final.Status)
}

func TestSingleEliminationTooFewParticipants(t *testing.T) {
	gen := NewSingleEliminationGenerator()
	_, err := gen.Generate(context.Background(), GenerateParams{
		Tournament:   &models.Tournament{ID: 1},
		Participants: makeParticipants(1),
	})
	assert.Error(t, err)
}

func TestForType(t *testing.T) {
	gen, err := ForType(models.TypeSingleElimination)
	require.NoError(t, err)
	assert.Equal(t, "SingleElimination", gen.Name())

	gen, err = ForType(models.TypeRoundRobin)
	require.NoError(t, err)
	assert.Equal(t, "RoundRobin", gen.Name())

	_, err = ForType(models.TypeDoubleElimination)
	assert.ErrorIs(t, err, ErrUnsupportedType)
}
