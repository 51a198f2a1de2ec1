package services

import "errors"

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
var (
	// Ресурс не найден (универсальная)
	ErrNotFound = errors.New("requested resource not found")

	// Ошибки валидации и бизнес-правил
	ErrValidation               = errors.New("validation failed")
	ErrInvalidState             = errors.New("operation is not valid for the current status")
	ErrInsufficientParticipants = errors.New("at least two participants are required")
	ErrDuplicateParticipant     = errors.New("participant is already entered in this tournament")
	ErrTypeMismatch             = errors.New("participant kind does not match the tournament")
	ErrStaleQuestion            = errors.New("question index does not match the current question")
	ErrDuplicateAnswer          = errors.New("answer already submitted for this question")
	ErrUnsupportedBracketType   = errors.New("bracket type is not supported")

	// Ошибки доступа
	ErrForbidden      = errors.New("operation not allowed for the current caller")
	ErrNotParticipant = errors.New("caller is not a participant of this match")

	// Ошибки конфликтов
	ErrConflict         = errors.New("concurrent update conflict")
	ErrTournamentClosed = errors.New("tournament is no longer accepting match operations")

	// Счёт и тай-брейк времени равны, coin flip выключен: требуется ручное
	// разрешение через complete с явным победителем.
	ErrAmbiguousResult = errors.New("match result is ambiguous and requires manual resolution")
)
