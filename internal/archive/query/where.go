package query

import (
	"fmt"
	"strings"
)

// WhereBuilder constructs SQL WHERE clauses with parameterized arguments.
//
// Example usage:
//
//	wb := query.NewWhereBuilder()
//	wb.AddClause("r.memo = ?", "synop")
//	wb.AddIn("d.code", []any{3173, 3175})
//	whereClause, args := wb.Build()
//	// r.memo = ? AND d.code IN (?, ?)
type WhereBuilder struct {
	clauses []string
	args    []any
}

// NewWhereBuilder creates a new WhereBuilder instance.
func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{}
}

// AddClause adds a raw WHERE clause with its arguments.
//
// Parameters:
//   - clause: SQL condition fragment (e.g., "s.ident = ?")
//   - args: Arguments to bind to placeholders in the clause
func (wb *WhereBuilder) AddClause(clause string, args ...any) *WhereBuilder {
	wb.clauses = append(wb.clauses, clause)
	wb.args = append(wb.args, args...)
	return wb
}

// AddIn adds "column IN (?, ...)". An empty value list is skipped.
func (wb *WhereBuilder) AddIn(column string, values []any) *WhereBuilder {
	if len(values) == 0 {
		return wb
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
	wb.clauses = append(wb.clauses, fmt.Sprintf("%s IN (%s)", column, placeholders))
	wb.args = append(wb.args, values...)
	return wb
}

// AddNested adds the clauses of another builder as one parenthesised
// condition, e.g. an EXISTS sub-select body.
func (wb *WhereBuilder) AddNested(format string, nested *WhereBuilder) *WhereBuilder {
	clause, args := nested.Build()
	return wb.AddClause(fmt.Sprintf(format, clause), args...)
}

// Build constructs the final WHERE clause and returns it with arguments.
// Clauses are joined with "AND". Returns ("1=1", nil) if no clauses were added.
func (wb *WhereBuilder) Build() (string, []any) {
	if wb.IsEmpty() {
		return "1=1", nil
	}
	return strings.Join(wb.clauses, " AND "), wb.args
}

// IsEmpty returns true if no clauses have been added.
func (wb *WhereBuilder) IsEmpty() bool {
	return len(wb.clauses) == 0
}
