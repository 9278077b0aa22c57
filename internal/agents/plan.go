package agents

import (
	"fmt"

	"datanerd/internal/state"
	"datanerd/internal/table"
)

// DefaultMaxTasks caps the plan length when no limit is configured.
const DefaultMaxTasks = 5

// BaselinePlan builds the deterministic plan: basic info, histograms of up
// to three numeric columns, a correlation matrix when at least two numeric
// columns exist, then bar charts of categorical columns until maxTasks.
func BaselinePlan(sum *table.Summary, maxTasks int) []state.Task {
	if maxTasks <= 0 {
		maxTasks = DefaultMaxTasks
	}
	plan := []state.Task{{Type: TaskBasicInfo, Description: "Basic information about the dataset"}}
	full := func() bool { return len(plan) >= maxTasks }

	numeric := sum.NumericColumns()
	for i, col := range numeric {
		if i >= 3 || full() {
			break
		}
		plan = append(plan, state.Task{
			Type:        TaskHistogram,
			Params:      map[string]any{"column": col},
			Description: fmt.Sprintf("Histogram of %s", col),
		})
	}
	if len(numeric) > 1 && !full() {
		plan = append(plan, state.Task{
			Type:        TaskCorrelationMatrix,
			Description: "Correlation matrix of numeric columns",
		})
	}
	for _, col := range sum.CategoricalColumns() {
		if full() {
			break
		}
		plan = append(plan, state.Task{
			Type:        TaskBarChart,
			Params:      map[string]any{"column": col},
			Description: fmt.Sprintf("Distribution of %s (bar chart)", col),
		})
	}

	if len(plan) > maxTasks {
		plan = plan[:maxTasks]
	}
	return plan
}

// ValidatePlan keeps the tasks that can run against sum. Each dropped task
// is returned with the reason it was dropped. Custom tasks are only kept
// when allowCustom is set.
func ValidatePlan(sum *table.Summary, plan []state.Task, allowCustom bool) (kept []state.Task, dropped []string) {
	for i, task := range plan {
		if err := validateTask(sum, task, allowCustom); err != nil {
			dropped = append(dropped, fmt.Sprintf("task %d (%s): %v", i, task.Type, err))
			continue
		}
		kept = append(kept, task)
	}
	return kept, dropped
}

func validateTask(sum *table.Summary, task state.Task, allowCustom bool) error {
	for _, col := range task.Columns() {
		if !sum.HasColumn(col) {
			return fmt.Errorf("unknown column %q", col)
		}
	}

	switch task.Type {
	case TaskBasicInfo:
		return nil
	case TaskHistogram:
		return requireNumeric(sum, task.Column())
	case TaskBarChart:
		if task.Column() == "" {
			return fmt.Errorf("missing column parameter")
		}
		return nil
	case TaskCorrelationMatrix:
		cols := task.Columns()
		if len(cols) == 0 {
			cols = sum.NumericColumns()
		}
		return requireNumericSet(sum, cols, 2)
	case TaskScatterMatrix:
		return requireNumericSet(sum, task.Columns(), 2)
	case TaskScatter:
		if err := requireNumeric(sum, paramString(task, "x")); err != nil {
			return err
		}
		return requireNumeric(sum, paramString(task, "y"))
	case TaskGroupSummary:
		if paramString(task, "by") == "" {
			return fmt.Errorf("missing by parameter")
		}
		return requireNumeric(sum, paramString(task, "value"))
	case TaskCustom:
		if !allowCustom {
			return fmt.Errorf("custom tasks need an LLM")
		}
		if task.Description == "" {
			return fmt.Errorf("custom task without description")
		}
		return nil
	}
	return fmt.Errorf("unknown task type")
}

func requireNumeric(sum *table.Summary, col string) error {
	if col == "" {
		return fmt.Errorf("missing numeric column parameter")
	}
	p := sum.Column(col)
	if p == nil {
		return fmt.Errorf("unknown column %q", col)
	}
	if p.Kind != table.KindNumeric {
		return fmt.Errorf("column %q is %s, not numeric", col, p.Kind)
	}
	return nil
}

func requireNumericSet(sum *table.Summary, cols []string, min int) error {
	if len(cols) < min {
		return fmt.Errorf("needs at least %d numeric columns, got %d", min, len(cols))
	}
	for _, c := range cols {
		if err := requireNumeric(sum, c); err != nil {
			return err
		}
	}
	return nil
}
