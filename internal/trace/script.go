package trace

// ScriptRuntime is the optional external collaborator described in
// §4.7: an interpreter or scripting runtime that can notify the
// collector of call/return/exception events so they can be recorded
// as Begin/End pairs without the interpreted code calling the trace
// API itself.
//
// A runtime implements Install to register the three callbacks it
// will invoke, and Uninstall to remove them. The collector never
// calls into ScriptRuntime's own tracing code; it only supplies
// closures for the runtime to call back into.
type ScriptRuntime interface {
	Install(onCall func(name string), onReturn, onException func()) error
	Uninstall() error
}

// SetScriptRuntime configures the runtime that auto-tracing installs
// into when the gate transitions to enabled. Pass nil to disable
// auto-tracing.
func (c *Collector) SetScriptRuntime(rt ScriptRuntime) {
	if rt == nil {
		c.removeScriptHook()
		c.scriptRuntime.Store(nil)

		return
	}

	c.scriptRuntime.Store(&scriptBinding{runtime: rt})

	if c.IsEnabled() {
		c.installScriptHook()
	}
}

func (c *Collector) installScriptHook() {
	b := c.scriptRuntime.Load()
	if b == nil {
		return
	}

	_ = b.runtime.Install(
		func(name string) { c.onScriptCall(name) },
		func() { c.onScriptReturn() },
		func() { c.onScriptException() },
	)
}

func (c *Collector) removeScriptHook() {
	b := c.scriptRuntime.Load()
	if b == nil {
		return
	}

	_ = b.runtime.Uninstall()
}

// onScriptCall pushes a dynamic key onto the calling goroutine's
// scope stack and emits a Begin event.
func (c *Collector) onScriptCall(name string) {
	if !c.IsEnabled() {
		return
	}

	h := c.intern.Intern(name)
	td := c.getThreadData()
	td.pushScope(h, DefaultCategory)
	td.beginScope(h, DefaultCategory, c.clock.Now())
}

// onScriptReturn pops the calling goroutine's scope stack and emits
// the matching End (or fused Timespan). Tolerant of an empty stack.
func (c *Collector) onScriptReturn() {
	if !c.IsEnabled() {
		return
	}

	td := c.getThreadData()

	frame, ok := td.popScope()
	if !ok {
		return
	}

	td.endScope(frame.handle, frame.cat, c.clock.Now())
}

// onScriptException behaves like onScriptReturn: the scope is popped
// and closed regardless of how the call unwound.
func (c *Collector) onScriptException() {
	c.onScriptReturn()
}
