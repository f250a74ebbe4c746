package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderledger/pkg/enums"
)

// Wallet caches the running balance of its transactions.
type Wallet struct {
	ID                 uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID             uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_wallets_user_id"`
	BalanceCents       int64     `gorm:"column:balance_cents;not null;default:0;check:chk_wallets_balance,balance_cents >= 0"`
	TotalCashbackCents int64     `gorm:"column:total_cashback_cents;not null;default:0"`
	TotalSpentCents    int64     `gorm:"column:total_spent_cents;not null;default:0"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (w *Wallet) BeforeCreate(*gorm.DB) error {
	ensureID(&w.ID)
	return nil
}

// WalletTransaction is append-only. Amount is always positive; Type gives
// the sign.
type WalletTransaction struct {
	ID                uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	WalletID          uuid.UUID                   `gorm:"column:wallet_id;type:uuid;not null;index"`
	Type              enums.WalletTransactionType `gorm:"column:type;not null"`
	AmountCents       int64                       `gorm:"column:amount_cents;not null;check:chk_wallet_transactions_amount,amount_cents > 0"`
	BalanceAfterCents int64                       `gorm:"column:balance_after_cents;not null"`
	Description       string                      `gorm:"column:description;not null"`
	ReferenceType     *enums.WalletReferenceType  `gorm:"column:reference_type"`
	ReferenceID       *uuid.UUID                  `gorm:"column:reference_id;type:uuid"`
	CreatedAt         time.Time                   `gorm:"column:created_at;autoCreateTime;index"`
}

func (t *WalletTransaction) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}

// Signed returns the amount with the direction applied.
func (t WalletTransaction) Signed() int64 {
	if t.Type == enums.WalletTransactionDebit {
		return -t.AmountCents
	}
	return t.AmountCents
}
