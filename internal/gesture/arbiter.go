package gesture

// arbitrate advances one admitted hand's classifiers and returns at most
// one candidate.
//
// Order is sweep, deactivate, activate. A deactivate sequence in progress
// suppresses activate and forces it back to Idle if it has nothing of its
// own underway; deactivate in turn refuses to start while activate is
// holding a fist or an open palm.
func (c Config) arbitrate(t *track, o observation) (candidate, bool) {
	if t.deactivate.midSequence() && t.activate.phase == activateIdle {
		t.activate = activateState{}
	}

	if cand, ok := c.Sweep.advance(&t.sweep, o, c.Weights); ok {
		return cand, true
	}

	cand, fired, _ := c.Deactivate.advance(&t.deactivate, o, t.activate.phase, c.Weights)
	if fired {
		return cand, true
	}
	if t.deactivate.midSequence() {
		return candidate{}, false
	}

	return c.Activate.advance(&t.activate, o, c.Weights)
}
