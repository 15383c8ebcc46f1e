package litterbox

import (
	"context"
	"errors"

	"github.com/nerrad567/gray-logic-litterbox/internal/cloud"
)

// DiscoveryAPI is what Discover needs from a fresh cloud session.
type DiscoveryAPI interface {
	Connect(ctx context.Context, creds cloud.Credentials) error
	LitterBoxes(ctx context.Context) ([]cloud.Device, error)
}

// SetupOutcome classifies a failed setup attempt for the user.
type SetupOutcome string

const (
	OutcomeOK                   SetupOutcome = "ok"
	OutcomeAuthenticationFailed SetupOutcome = "authentication_failed"
	OutcomeCannotConnect        SetupOutcome = "cannot_connect"
	OutcomeNoDevices            SetupOutcome = "no_devices"
)

// Discover logs in with creds and lists the account's litter boxes.
//
// Returns:
//   - []cloud.Device: Litter boxes bound to the account
//   - SetupOutcome: What to show the user
//   - error: The underlying failure, nil on OutcomeOK
func Discover(ctx context.Context, api DiscoveryAPI, creds cloud.Credentials) ([]cloud.Device, SetupOutcome, error) {
	if err := api.Connect(ctx, creds); err != nil {
		return nil, ClassifySetupError(err), err
	}
	devices, err := api.LitterBoxes(ctx)
	if err != nil {
		return nil, ClassifySetupError(err), err
	}
	if len(devices) == 0 {
		return nil, OutcomeNoDevices, nil
	}
	return devices, OutcomeOK, nil
}

// ClassifySetupError maps cloud errors onto the two setup failures.
func ClassifySetupError(err error) SetupOutcome {
	if errors.Is(err, cloud.ErrAuth) {
		return OutcomeAuthenticationFailed
	}
	return OutcomeCannotConnect
}
