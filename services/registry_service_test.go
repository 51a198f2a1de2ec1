package services

import (
	"context"
	"testing"

	"github.com/classarena/classarena/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func teacherCaller() models.Caller { return models.Caller{UserID: 1, Role: models.RoleTeacher} }

func studentCaller(userID int) models.Caller {
	return models.Caller{UserID: userID, Role: models.RoleStudent}
}

func intPtr(n int) *int { return &n }

// createDraft создаёт черновик турнира с банком на 3 вопроса.
func createDraft(t *testing.T, env *testEnv, kind models.ParticipantKind, tournamentType models.TournamentType) *models.Tournament {
	t.Helper()
	env.seedBank(1, 3)
	tournament, err := env.tournaments.Create(context.Background(), teacherCaller(), CreateTournamentInput{
		ClassroomID:     7,
		Name:            "Math quiz cup",
		Type:            tournamentType,
		ParticipantKind: kind,
		QuestionBankID:  1,
		QuestionCount:   3,
	})
	require.NoError(t, err)
	return tournament
}

func addStudents(t *testing.T, env *testEnv, tournamentID int, studentIDs ...int) []*models.Participant {
	t.Helper()
	entries := make([]EntryInput, 0, len(studentIDs))
	for _, id := range studentIDs {
		entries = append(entries, EntryInput{StudentID: intPtr(id)})
	}
	participants, err := env.registry.AddMany(context.Background(), teacherCaller(), tournamentID, entries)
	require.NoError(t, err)
	return participants
}

func TestRegistryAddIndividual(t *testing.T) {
	env := newTestEnv(1)
	tournament := createDraft(t, env, models.KindIndividual, models.TypeSingleElimination)

	participant, err := env.registry.Add(context.Background(), teacherCaller(), tournament.ID, EntryInput{StudentID: intPtr(101)})
	require.NoError(t, err)
	assert.NotZero(t, participant.ID)
	assert.Equal(t, tournament.ID, participant.TournamentID)
	assert.Equal(t, 101, *participant.StudentID)
	assert.True(t, participant.Active)
	assert.Nil(t, participant.Seed)
}

func TestRegistryAddDuplicateStudent(t *testing.T) {
	env := newTestEnv(1)
	tournament := createDraft(t, env, models.KindIndividual, models.TypeSingleElimination)

	_, err := env.registry.Add(context.Background(), teacherCaller(), tournament.ID, EntryInput{StudentID: intPtr(101)})
	require.NoError(t, err)

	_, err = env.registry.Add(context.Background(), teacherCaller(), tournament.ID, EntryInput{StudentID: intPtr(101)})
	assert.ErrorIs(t, err, ErrDuplicateParticipant)
}

func TestRegistryKindMismatch(t *testing.T) {
	env := newTestEnv(1)
	individual := createDraft(t, env, models.KindIndividual, models.TypeSingleElimination)

	_, err := env.registry.Add(context.Background(), teacherCaller(), individual.ID, EntryInput{TeamID: intPtr(5)})
	assert.ErrorIs(t, err, ErrTypeMismatch)

	team, err := env.tournaments.Create(context.Background(), teacherCaller(), CreateTournamentInput{
		ClassroomID:     7,
		Name:            "Team cup",
		Type:            models.TypeSingleElimination,
		ParticipantKind: models.KindTeam,
		QuestionBankID:  1,
		QuestionCount:   3,
	})
	require.NoError(t, err)

	_, err = env.registry.Add(context.Background(), teacherCaller(), team.ID, EntryInput{StudentID: intPtr(101)})
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestRegistryExactlyOneReference(t *testing.T) {
	env := newTestEnv(1)
	tournament := createDraft(t, env, models.KindIndividual, models.TypeSingleElimination)

	_, err := env.registry.Add(context.Background(), teacherCaller(), tournament.ID, EntryInput{})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.registry.Add(context.Background(), teacherCaller(), tournament.ID, EntryInput{StudentID: intPtr(1), TeamID: intPtr(2)})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRegistryAddAfterStart(t *testing.T) {
	env := newTestEnv(1)
	tournament := createDraft(t, env, models.KindIndividual, models.TypeSingleElimination)
	addStudents(t, env, tournament.ID, 101, 102)

	_, err := env.tournaments.BuildAndStart(context.Background(), teacherCaller(), tournament.ID)
	require.NoError(t, err)

	_, err = env.registry.Add(context.Background(), teacherCaller(), tournament.ID, EntryInput{StudentID: intPtr(103)})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRegistryAddManyAtomic(t *testing.T) {
	env := newTestEnv(1)
	tournament := createDraft(t, env, models.KindIndividual, models.TypeSingleElimination)

	_, err := env.registry.AddMany(context.Background(), teacherCaller(), tournament.ID, []EntryInput{
		{StudentID: intPtr(101)},
		{StudentID: intPtr(102)},
		{StudentID: intPtr(101)}, // дубликат валит весь батч
	})
	assert.ErrorIs(t, err, ErrDuplicateParticipant)

	participants, listErr := env.participantRepo.ListByTournament(context.Background(), nil, tournament.ID)
	require.NoError(t, listErr)
	assert.Empty(t, participants, "partial batch must not survive")
}

func TestRegistryRemove(t *testing.T) {
	env := newTestEnv(1)
	tournament := createDraft(t, env, models.KindIndividual, models.TypeSingleElimination)
	participants := addStudents(t, env, tournament.ID, 101, 102)

	err := env.registry.Remove(context.Background(), teacherCaller(), tournament.ID, participants[0].ID)
	require.NoError(t, err)

	remaining, err := env.participantRepo.ListByTournament(context.Background(), nil, tournament.ID)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestRegistryRemoveWrongTournament(t *testing.T) {
	env := newTestEnv(1)
	first := createDraft(t, env, models.KindIndividual, models.TypeSingleElimination)
	second, err := env.tournaments.Create(context.Background(), teacherCaller(), CreateTournamentInput{
		ClassroomID:     7,
		Name:            "Another cup",
		Type:            models.TypeSingleElimination,
		ParticipantKind: models.KindIndividual,
		QuestionBankID:  1,
		QuestionCount:   3,
	})
	require.NoError(t, err)

	participants := addStudents(t, env, first.ID, 101)

	err = env.registry.Remove(context.Background(), teacherCaller(), second.ID, participants[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryShuffleAssignsPermutation(t *testing.T) {
	env := newTestEnv(42)
	tournament := createDraft(t, env, models.KindIndividual, models.TypeSingleElimination)
	addStudents(t, env, tournament.ID, 101, 102, 103, 104, 105)

	shuffled, err := env.registry.Shuffle(context.Background(), teacherCaller(), tournament.ID)
	require.NoError(t, err)
	require.Len(t, shuffled, 5)

	seen := make(map[int]bool)
	for _, p := range shuffled {
		require.NotNil(t, p.Seed)
		seen[*p.Seed] = true
	}
	for seed := 1; seed <= 5; seed++ {
		assert.True(t, seen[seed], "seed %d missing after shuffle", seed)
	}
}

func TestRegistryShuffleAfterStart(t *testing.T) {
	env := newTestEnv(1)
	tournament := createDraft(t, env, models.KindIndividual, models.TypeSingleElimination)
	addStudents(t, env, tournament.ID, 101, 102)

	_, err := env.tournaments.BuildAndStart(context.Background(), teacherCaller(), tournament.ID)
	require.NoError(t, err)

	_, err = env.registry.Shuffle(context.Background(), teacherCaller(), tournament.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}
