package services

import "errors"

// Общие ошибки, используемые в разных сервисах и маппинге HTTP/WS.
var (
	// Ошибки допуска: всегда восстановимые, отдаются вызывающему как есть.
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrTournamentFull     = errors.New("tournament is full")
	ErrTournamentClosed   = errors.New("tournament is not open for entries")
	ErrAlreadyEntered     = errors.New("player is already entered in this tournament")
	ErrPaymentDeclined    = errors.New("entry payment was declined")

	// Ошибки отправки результатов: вызывающий исправляет и повторяет.
	ErrTournamentNotLive = errors.New("tournament is not live")
	ErrInvalidScore      = errors.New("score must be a positive number within bounds")
	ErrNoSuchEntry       = errors.New("player has no entry in this tournament")

	// Ошибки валидации при создании турнира.
	ErrTournamentNameRequired    = errors.New("tournament name is required")
	ErrTournamentInvalidKind     = errors.New("unknown tournament kind")
	ErrTournamentInvalidDates    = errors.New("tournament end time must be after start time")
	ErrTournamentInvalidCapacity = errors.New("tournament capacity must be positive")
	ErrTournamentInvalidHouseCut = errors.New("house cut percent must be between 0 and 100")
	ErrTournamentInvalidCurve    = errors.New("payout curve percentages must sum to 100")
)
