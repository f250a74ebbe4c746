package enums

import "fmt"

// SettlementStatus tracks a vendor payout for one (order, store) pair.
type SettlementStatus string

const (
	SettlementStatusPending    SettlementStatus = "pending"
	SettlementStatusProcessing SettlementStatus = "processing"
	SettlementStatusPaid       SettlementStatus = "paid"
	SettlementStatusFailed     SettlementStatus = "failed"
	SettlementStatusCancelled  SettlementStatus = "cancelled"
)

var validSettlementStatuses = []SettlementStatus{
	SettlementStatusPending,
	SettlementStatusProcessing,
	SettlementStatusPaid,
	SettlementStatusFailed,
	SettlementStatusCancelled,
}

func (s SettlementStatus) String() string {
	return string(s)
}

func (s SettlementStatus) IsValid() bool {
	for _, candidate := range validSettlementStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSettlementStatus converts raw input into a SettlementStatus.
func ParseSettlementStatus(value string) (SettlementStatus, error) {
	for _, candidate := range validSettlementStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid settlement status %q", value)
}
