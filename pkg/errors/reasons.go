package errors

// Reason is a business-level failure identifier carried next to the code.
type Reason string

const (
	ReasonInvalidStatusTransition        Reason = "InvalidStatusTransition"
	ReasonInsufficientStock              Reason = "InsufficientStock"
	ReasonOutOfStock                     Reason = "OutOfStock"
	ReasonProductUnavailable             Reason = "ProductUnavailable"
	ReasonInsufficientBalance            Reason = "InsufficientBalance"
	ReasonInvalidAmount                  Reason = "InvalidAmount"
	ReasonCouponNotFound                 Reason = "CouponNotFound"
	ReasonCouponExpired                  Reason = "CouponExpired"
	ReasonCouponInactive                 Reason = "CouponInactive"
	ReasonCouponMinimumNotMet            Reason = "CouponMinimumNotMet"
	ReasonCouponUsageExceeded            Reason = "CouponUsageExceeded"
	ReasonCannotCancelShippedOrDelivered Reason = "CannotCancelShippedOrDelivered"
	ReasonAddressNotOwned                Reason = "AddressNotOwned"
	ReasonReturnWindowClosed             Reason = "ReturnWindowClosed"
	ReasonWalletDrift                    Reason = "WalletDrift"
	ReasonConcurrentUpdate               Reason = "ConcurrentUpdate"
)

func (r Reason) String() string {
	return string(r)
}

// Business builds a non-retryable error with a reason attached.
func Business(code Code, reason Reason, message string) *Error {
	return New(code, message).WithReason(reason)
}

// Conflict builds the retryable concurrency error used when a conditional
// write lost its race.
func Conflict(message string) *Error {
	return New(CodeConcurrency, message).WithReason(ReasonConcurrentUpdate)
}
