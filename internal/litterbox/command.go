package litterbox

import (
	"context"
	"fmt"
)

// Action is a user request against an entity.
type Action string

const (
	ActionTurnOn  Action = "turn_on"
	ActionTurnOff Action = "turn_off"
	ActionPress   Action = "press"
)

// Execute applies action to the entity with the given key. Switches accept
// turn_on and turn_off; buttons accept press. Sensors are read-only.
//
// Returns:
//   - error: ErrUnknownEntity or ErrInvalidAction without any network call,
//     otherwise the result of SetSwitch or InvokeService
func (c *Controller) Execute(ctx context.Context, key string, action Action) error {
	e, ok := LookupEntity(key)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEntity, key)
	}

	switch {
	case e.Kind == KindSwitch && (action == ActionTurnOn || action == ActionTurnOff):
		return c.SetSwitch(ctx, e.Property, action == ActionTurnOn)
	case e.Kind == KindButton && action == ActionPress:
		return c.InvokeService(ctx, string(e.Service))
	default:
		return fmt.Errorf("%w: %s on %s %q", ErrInvalidAction, action, e.Kind, key)
	}
}
