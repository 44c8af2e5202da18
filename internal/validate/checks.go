package validate

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"rocket-console/internal/schema"
	"rocket-console/internal/transform"
)

// CheckErrorKey is the error map key used for checks not bound to a field.
const CheckErrorKey = "_form"

var programs sync.Map // expression -> *vm.Program

// CompileCheck compiles a check expression; it must yield a bool.
func CompileCheck(expression string) (*vm.Program, error) {
	if p, ok := programs.Load(expression); ok {
		return p.(*vm.Program), nil
	}
	prog, err := expr.Compile(expression, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile check: %w", err)
	}
	programs.Store(expression, prog)
	return prog, nil
}

// RunChecks evaluates each check with `record` bound to the form values.
// A check whose expression is true is violated.
func RunChecks(checks []schema.Check, values transform.ValueMap) ErrorMap {
	errs := ErrorMap{}
	env := map[string]any{"record": checkRecord(values)}

	for _, c := range checks {
		key := c.Field
		if key == "" {
			key = CheckErrorKey
		}
		if _, taken := errs[key]; taken {
			continue
		}

		prog, err := CompileCheck(c.Expression)
		if err != nil {
			errs[key] = err.Error()
			continue
		}
		result, err := expr.Run(prog, env)
		if err != nil {
			errs[key] = fmt.Sprintf("check evaluation error: %v", err)
			continue
		}
		if violated, ok := result.(bool); ok && violated {
			msg := c.Message
			if msg == "" {
				msg = "Form values are not consistent"
			}
			errs[key] = msg
		}
	}
	return errs
}

// checkRecord exposes option objects to expressions as their raw values.
func checkRecord(values transform.ValueMap) map[string]any {
	record := make(map[string]any, len(values))
	for k, v := range values {
		switch o := v.(type) {
		case schema.Option:
			record[k] = o.Value
		case []any:
			ids := make([]any, len(o))
			for i, item := range o {
				if opt, ok := item.(schema.Option); ok {
					item = opt.Value
				}
				ids[i] = item
			}
			record[k] = ids
		default:
			record[k] = v
		}
	}
	return record
}
