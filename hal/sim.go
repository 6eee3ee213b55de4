package hal

// FakePin is a software Pin used by tests: it records every level
// written so assertions can inspect the pulse sequence a test produced.
type FakePin struct {
	Level   bool
	History []bool
}

func (p *FakePin) High() { p.Level = true; p.History = append(p.History, true) }
func (p *FakePin) Low()  { p.Level = false; p.History = append(p.History, false) }

// FakeTimer is a software StepTimer: nothing fires on its own. Tests
// drive it explicitly with Fire, which mirrors a single hardware
// interrupt occurrence (this is how unit tests simulate the ISR cadence
// without a real timer peripheral).
type FakeTimer struct {
	period   uint32
	callback func()
	running  bool

	// Periods records every period programmed, for assertions about the
	// rate profile a test produced.
	Periods []uint32
}

func (t *FakeTimer) SetPeriod(cycles uint32) {
	t.period = cycles
	t.Periods = append(t.Periods, cycles)
}

func (t *FakeTimer) SetCallback(fn func()) { t.callback = fn }
func (t *FakeTimer) Start()                { t.running = true }
func (t *FakeTimer) Stop()                 { t.running = false }

// Fire invokes the installed callback as if the timer had just expired,
// regardless of Running, so tests can drive the ISR deterministically.
func (t *FakeTimer) Fire() {
	if t.callback != nil {
		t.callback()
	}
}

func (t *FakeTimer) Running() bool  { return t.running }
func (t *FakeTimer) Period() uint32 { return t.period }
