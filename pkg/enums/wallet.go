package enums

import "fmt"

// WalletTransactionType is the direction of a ledger row.
type WalletTransactionType string

const (
	WalletTransactionCredit WalletTransactionType = "credit"
	WalletTransactionDebit  WalletTransactionType = "debit"
)

func (w WalletTransactionType) String() string {
	return string(w)
}

func (w WalletTransactionType) IsValid() bool {
	return w == WalletTransactionCredit || w == WalletTransactionDebit
}

// WalletReferenceType names what a ledger row points at.
type WalletReferenceType string

const (
	WalletReferenceOrder      WalletReferenceType = "order"
	WalletReferenceCashback   WalletReferenceType = "cashback"
	WalletReferenceWithdrawal WalletReferenceType = "withdrawal"
	WalletReferenceAdjustment WalletReferenceType = "adjustment"
)

var validWalletReferenceTypes = []WalletReferenceType{
	WalletReferenceOrder,
	WalletReferenceCashback,
	WalletReferenceWithdrawal,
	WalletReferenceAdjustment,
}

func (w WalletReferenceType) String() string {
	return string(w)
}

func (w WalletReferenceType) IsValid() bool {
	for _, candidate := range validWalletReferenceTypes {
		if candidate == w {
			return true
		}
	}
	return false
}

// ParseWalletReferenceType converts raw input into a WalletReferenceType.
func ParseWalletReferenceType(value string) (WalletReferenceType, error) {
	for _, candidate := range validWalletReferenceTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet reference type %q", value)
}
