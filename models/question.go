package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// OptionList хранит варианты ответа вопроса как JSONB.
type OptionList []string

// Scan реализует sql.Scanner для чтения JSONB из базы.
func (o *OptionList) Scan(value interface{}) error {
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to unmarshal JSONB value")
	}
	return json.Unmarshal(bytes, o)
}

// Value реализует driver.Valuer для записи OptionList в JSONB.
func (o OptionList) Value() (driver.Value, error) {
	if o == nil {
		return nil, nil
	}
	return json.Marshal(o)
}

// Question — вопрос из банка вопросов. Банк внешний по отношению к ядру:
// ядро его только читает.
type Question struct {
	ID            int        `json:"id" db:"id"`
	BankID        int        `json:"bank_id" db:"bank_id"`
	Text          string     `json:"text" db:"text"`
	Options       OptionList `json:"options" db:"options"`
	CorrectOption int        `json:"-" db:"correct_option"` // скрыто от клиента
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

// IsCorrect проверяет выбранный вариант против ключа ответа.
func (q *Question) IsCorrect(selectedOption int) bool {
	return selectedOption == q.CorrectOption
}
