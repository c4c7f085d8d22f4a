//go:build !no_rules

package rules

import (
	lua "github.com/yuin/gopher-lua"

	"homey-driverkit/internal/report"
)

const maxFindingsPerCheck = 100

// registerRuleModule registers the `rule` global table in a Lua state.
func registerRuleModule(L *lua.LState, e *Engine, source, driver string, out *[]report.Finding) {
	mod := L.NewTable()

	mod.RawSetString("warn", L.NewFunction(func(L *lua.LState) int {
		return ruleFinding(L, source, report.SeverityWarning, out)
	}))

	mod.RawSetString("error", L.NewFunction(func(L *lua.LState) int {
		return ruleFinding(L, source, report.SeverityError, out)
	}))

	mod.RawSetString("log", L.NewFunction(func(L *lua.LState) int {
		e.logger.Info("rule log", "rule", source, "driver", driver, "msg", L.CheckString(1))
		return 0
	}))

	mod.RawSetString("lookup", L.NewFunction(func(L *lua.LState) int {
		return ruleLookup(L, e)
	}))

	L.SetGlobal("rule", mod)
}

// rule.warn(msg) / rule.error(msg)
func ruleFinding(L *lua.LState, source string, sev report.Severity, out *[]report.Finding) int {
	msg := L.CheckString(1)
	if len(*out) >= maxFindingsPerCheck {
		L.RaiseError("too many findings (max %d)", maxFindingsPerCheck)
		return 0
	}
	*out = append(*out, report.Finding{Source: source, Severity: sev, Message: msg})
	return 0
}

// rule.lookup(product_id) -> table or nil
func ruleLookup(L *lua.LState, e *Engine) int {
	pid := L.CheckString(1)
	if e.kb == nil {
		L.Push(lua.LNil)
		return 1
	}
	entry, ok := e.kb.Lookup(pid)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(goToLua(L, map[string]any{
		"product_id":        entry.ProductID,
		"category":          entry.Category,
		"type":              string(entry.DeviceType),
		"capabilities":      entry.Capabilities,
		"clusters":          entry.Clusters,
		"manufacturer_name": entry.ManufacturerID,
		"zigbee_product_id": entry.ZigbeeProductID,
		"driver_id":         entry.DriverID(),
	}))
	return 1
}
