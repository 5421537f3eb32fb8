package rule

import (
	"context"

	"voltageems.io/core/dispatcher"
)

// TriggerActionExecutor implements ActionTriggerAction by routing through
// the M2C dispatcher exactly as an external instance-action write would
// (§4.6), so a rule-triggered command follows the same TODO-queue path
// as any other command.
type TriggerActionExecutor struct {
	Dispatcher *dispatcher.Dispatcher
}

func (TriggerActionExecutor) Name() string { return "trigger_action" }

func (TriggerActionExecutor) CanHandle(a Action) bool { return a.Kind == ActionTriggerAction }

func (e TriggerActionExecutor) Execute(ctx context.Context, a Action) error {
	return e.Dispatcher.Dispatch(ctx, a.InstanceID, a.PointID, a.CommandVal, "")
}
