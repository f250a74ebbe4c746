package enums

import "fmt"

// CashbackStatus tracks a cashback record. Eligible moves exactly once, to
// processed, expired or failed.
type CashbackStatus string

const (
	CashbackStatusEligible  CashbackStatus = "eligible"
	CashbackStatusProcessed CashbackStatus = "processed"
	CashbackStatusExpired   CashbackStatus = "expired"
	CashbackStatusFailed    CashbackStatus = "failed"
)

var validCashbackStatuses = []CashbackStatus{
	CashbackStatusEligible,
	CashbackStatusProcessed,
	CashbackStatusExpired,
	CashbackStatusFailed,
}

func (c CashbackStatus) String() string {
	return string(c)
}

func (c CashbackStatus) IsValid() bool {
	for _, candidate := range validCashbackStatuses {
		if candidate == c {
			return true
		}
	}
	return false
}

func ParseCashbackStatus(value string) (CashbackStatus, error) {
	for _, candidate := range validCashbackStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cashback status %q", value)
}
