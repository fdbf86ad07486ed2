// Package ledger объявляет внешнего коллаборатора, отвечающего за хранение
// и перевод средств. Движок вызывает его и доверяет результату; сам он
// денег не касается.
package ledger

import (
	"context"
	"errors"
)

var (
	// ErrDeclined - авторизация отклонена самим леджером (не транспортом).
	ErrDeclined = errors.New("ledger declined the authorization")
	// ErrTransferFailed - перевод не прошёл; может быть временным.
	ErrTransferFailed = errors.New("ledger transfer failed")
)

type Ledger interface {
	// Authorize synchronously captures the entry fee (or ticket, amount 0)
	// before an entry is written. A timeout is a failure, never a success.
	Authorize(ctx context.Context, playerID int, amount float64) error

	// Payout transfers a prize to a player. Callers retry on failure.
	Payout(ctx context.Context, playerID int, amount float64) error
}
