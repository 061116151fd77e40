package executor

import "rce-core/internal/logging"

// cleanupStack runs registered cleanup steps in reverse registration
// order, regardless of which exit path triggered it. This is the
// scoped-resource-guard discipline: every acquisition registers its own
// teardown immediately, so the happy path and every error path share
// exactly one cleanup sequence.
type cleanupStack struct {
	steps []func()
}

func (c *cleanupStack) register(step func()) {
	c.steps = append(c.steps, step)
}

func (c *cleanupStack) run() {
	for i := len(c.steps) - 1; i >= 0; i-- {
		safeRun(c.steps[i])
	}
}

func safeRun(step func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.L().Sugar().Errorw("panic during cleanup step", "recovered", r)
		}
	}()
	step()
}
