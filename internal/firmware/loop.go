package firmware

import "context"

// Run is the main loop: idle at the mode's power level, wait for one
// event, dispatch it. It returns only when ctx is done.
func (m *Machine) Run(ctx context.Context) error {
	for {
		m.board.Power.Idle(m.mode.PowerLevel())
		ev, err := m.irq.Wait(ctx)
		if err != nil {
			return err
		}
		m.Dispatch(ev)
	}
}
