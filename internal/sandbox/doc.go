// Package sandbox manages the fixed pool of execution slots apps run in.
//
// Each slot binds one app id to one execution context with a memory ceiling
// and a wall-clock budget. Every privileged call from script code passes
// through Manager.CheckAccess, which combines the time-budget check with a
// capability lookup in the permission engine. The gate is advisory for code
// already running: exhausting the budget denies further resource access but
// does not preempt the interpreter (the goja engine separately interrupts at
// its own execution timeout).
package sandbox
