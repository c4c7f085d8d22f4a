//go:build !no_rules

package rules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"homey-driverkit/internal/knowledge"
	"homey-driverkit/internal/report"
)

// DefaultTimeout bounds a single rule check.
const DefaultTimeout = 2 * time.Second

// Engine runs the enabled rules against drivers. Every check gets a fresh
// sandboxed VM, so an Engine is safe for concurrent use.
type Engine struct {
	rules   []*Rule
	kb      *knowledge.Base
	timeout time.Duration
	logger  *slog.Logger
}

// NewEngine loads the manager's enabled rules. Rules that fail to compile
// are logged and left out.
func NewEngine(mgr *Manager, kb *knowledge.Base, timeout time.Duration, logger *slog.Logger) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	e := &Engine{
		kb:      kb,
		timeout: timeout,
		logger:  logger.With("component", "rules"),
	}
	all, errs := mgr.List()
	for _, err := range errs {
		e.logger.Error("load rule", "err", err)
	}
	for _, r := range all {
		if r.Enabled() {
			e.rules = append(e.rules, r)
		}
	}
	e.logger.Info("rules loaded", "rules", len(e.rules), "failed", len(errs))
	return e
}

// Check runs every rule against s and collects their findings. A rule that
// fails yields one error finding; the other rules still run.
func (e *Engine) Check(ctx context.Context, s Subject) []report.Finding {
	var out []report.Finding
	for _, r := range e.rules {
		out = append(out, e.run(ctx, r, s)...)
	}
	return out
}

func (e *Engine) run(ctx context.Context, r *Rule, s Subject) (findings []report.Finding) {
	source := "rule:" + r.ID
	fail := func(err error) []report.Finding {
		msg := err.Error()
		if strings.Contains(msg, "context deadline exceeded") {
			msg = fmt.Sprintf("timeout (%s)", e.timeout)
		}
		e.logger.Warn("rule failed", "rule", r.ID, "driver", s.Driver, "err", msg)
		return append(findings, report.Finding{
			Source:   source,
			Severity: report.SeverityError,
			Message:  "rule failed: " + msg,
		})
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	L := newSandbox()
	defer L.Close()
	L.SetContext(ctx)

	defer func() {
		if p := recover(); p != nil {
			findings = fail(fmt.Errorf("panic: %v", p))
		}
	}()

	registerRuleModule(L, e, source, s.Driver, &findings)

	L.Push(L.NewFunctionFromProto(r.proto))
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		return fail(err)
	}
	check, ok := L.GetGlobal("check").(*lua.LFunction)
	if !ok {
		return fail(fmt.Errorf("%s defines no check(driver) function", r.ID))
	}
	if err := L.CallByParam(lua.P{
		Fn:      check,
		NRet:    0,
		Protect: true,
	}, goToLua(L, s.table())); err != nil {
		return fail(err)
	}
	return findings
}

// newSandbox returns a VM without file, process or module loading access.
func newSandbox() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: false})
	L.SetGlobal("os", lua.LNil)
	L.SetGlobal("io", lua.LNil)
	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("require", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("loadstring", lua.LNil)
	L.SetGlobal("debug", lua.LNil)
	L.SetGlobal("package", lua.LNil)
	return L
}

// goToLua converts a Go value to a Lua value.
func goToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case []string:
		return goToLua(L, anySlice(val))
	case map[string]any:
		t := L.NewTable()
		for k, vv := range val {
			t.RawSetString(k, goToLua(L, vv))
		}
		return t
	case []any:
		t := L.NewTable()
		for i, vv := range val {
			t.RawSetInt(i+1, goToLua(L, vv))
		}
		return t
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}
