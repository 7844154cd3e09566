package gpu

// teardown is a stack of release steps. Each constructor pushes the
// destroy call for an object right after creating it, so run releases
// everything in reverse creation order, including after a partial
// failure.
type teardown struct {
	steps []teardownStep
}

type teardownStep struct {
	name    string
	release func()
}

func (t *teardown) push(name string, release func()) {
	t.steps = append(t.steps, teardownStep{name: name, release: release})
}

func (t *teardown) len() int {
	return len(t.steps)
}

// run releases every pushed step, newest first, and empties the stack.
func (t *teardown) run() {
	for i := len(t.steps) - 1; i >= 0; i-- {
		step := t.steps[i]
		Logger().Debug("release", "object", step.name)
		step.release()
	}
	t.steps = nil
}
