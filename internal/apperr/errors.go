package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated      = errors.New("unauthenticated")
	ErrAlreadyClaimedToday  = errors.New("daily bonus already claimed today")
	ErrCreditFailed         = errors.New("credit failed")
	ErrTransport            = errors.New("transport error")
	ErrClaimLocked          = errors.New("reward not unlocked yet")
	ErrRedemptionInProgress = errors.New("redemption already in progress")
	ErrInvalidOptions       = errors.New("invalid redemption options")
)

// InsufficientBalanceError reports how many points are missing for a redemption.
type InsufficientBalanceError struct {
	Balance   int64
	Required  int64
	Shortfall int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: need %d more points", e.Shortfall)
}

// ProvisioningFailedError is returned when the gateway rejected or could not
// be reached after points were debited. Compensated tells whether the refund
// landed.
type ProvisioningFailedError struct {
	Compensated bool
	Cause       error
}

func (e *ProvisioningFailedError) Error() string {
	state := "points refunded"
	if !e.Compensated {
		state = "refund failed"
	}
	if e.Cause == nil {
		return "provisioning failed: " + state
	}
	return fmt.Sprintf("provisioning failed (%s): %v", state, e.Cause)
}

func (e *ProvisioningFailedError) Unwrap() error { return e.Cause }
