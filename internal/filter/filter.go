package filter

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/ElvertMora/grimoirelab-perceval/internal/core"
)

// Filter evaluates a boolean expression against each record. The expression
// sees the same flat field names the JSON output carries, so a filter written
// against the output keeps working here.
type Filter struct {
	expression string
	program    *vm.Program
}

func New(expression string) (*Filter, error) {
	if expression == "" {
		return nil, fmt.Errorf("filter expression is required")
	}
	program, err := expr.Compile(expression, expr.Env(map[string]interface{}{}))
	if err != nil {
		return nil, fmt.Errorf("compile filter expression: %w", err)
	}
	return &Filter{expression: expression, program: program}, nil
}

// Match reports whether the record passes the filter. A non-boolean result
// is an error, not a pass.
func (f *Filter) Match(rec core.Record) (bool, error) {
	result, err := expr.Run(f.program, filterEnv(rec))
	if err != nil {
		return false, fmt.Errorf("evaluate filter expression: %w", err)
	}
	matched, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("filter expression did not return bool")
	}
	return matched, nil
}

func filterEnv(rec core.Record) map[string]interface{} {
	return map[string]interface{}{
		"id":         rec.ID,
		"uuid":       rec.UUID,
		"origin":     rec.Origin,
		"tag":        rec.Tag,
		"category":   rec.Category,
		"updated_on": rec.UpdatedOn,
		"timestamp":  rec.Timestamp,
		"link":       rec.Entry.Link,
		"published":  rec.Entry.Published,
		"title": map[string]interface{}{
			"value":  rec.Entry.Title,
			"length": len(rec.Entry.Title),
		},
		"summary": map[string]interface{}{
			"value":  rec.Entry.Summary,
			"length": len(rec.Entry.Summary),
		},
		"author":     rec.Entry.Author,
		"categories": rec.Entry.Categories,
	}
}
