package services

import (
	"testing"

	"github.com/classarena/classarena/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bankOf(n int) []*models.Question {
	bank := make([]*models.Question, 0, n)
	for i := 0; i < n; i++ {
		bank = append(bank, &models.Question{ID: i + 1, BankID: 1})
	}
	return bank
}

func TestQuestionOrderDeterministic(t *testing.T) {
	tournament := &models.Tournament{QuestionSeed: 12345, QuestionCount: 5}
	bank := bankOf(10)

	first := questionOrder(tournament, bank)
	second := questionOrder(tournament, bank)

	require.Len(t, first, 5)
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID, "order must be stable across calls")
	}
}

func TestQuestionOrderVariesBySeed(t *testing.T) {
	bank := bankOf(20)
	a := questionOrder(&models.Tournament{QuestionSeed: 1, QuestionCount: 20}, bank)
	b := questionOrder(&models.Tournament{QuestionSeed: 2, QuestionCount: 20}, bank)

	same := true
	for i := range a {
		if a[i].ID != b[i].ID {
			same = false
			break
		}
	}
	assert.False(t, same, "different seeds must produce different orders")
}

func TestQuestionOrderDoesNotMutateBank(t *testing.T) {
	bank := bankOf(6)
	questionOrder(&models.Tournament{QuestionSeed: 99, QuestionCount: 3}, bank)

	for i, q := range bank {
		assert.Equal(t, i+1, q.ID)
	}
}

func TestBothAnswered(t *testing.T) {
	a, b := 1, 2
	match := &models.Match{ParticipantAID: &a, ParticipantBID: &b}

	answers := []*models.Answer{
		{ParticipantID: a, QuestionIndex: 0},
	}
	assert.False(t, bothAnswered(match, answers, 0))

	answers = append(answers, &models.Answer{ParticipantID: b, QuestionIndex: 0})
	assert.True(t, bothAnswered(match, answers, 0))
	assert.False(t, bothAnswered(match, answers, 1))

	// Bye никогда не считается отвеченным с двух сторон
	bye := &models.Match{ParticipantAID: &a}
	assert.False(t, bothAnswered(bye, answers, 0))
}
