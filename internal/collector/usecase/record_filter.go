package usecase

import (
	"fmt"
	"strings"

	"kvstore-collector/internal/collector/domain/model"
	apperrors "kvstore-collector/internal/shared/errors"
	"kvstore-collector/internal/shared/logger"

	"github.com/google/cel-go/cel"
)

// RecordFilter keeps the records for which a CEL expression holds. The record
// is bound as the map variable "record", e.g. `record.Stage != "Closed Lost"`.
type RecordFilter struct {
	expression string
	program    cel.Program
	logger     logger.Logger
}

func newFilterEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("record", cel.MapType(cel.StringType, cel.DynType)),
	)
}

// NewRecordFilter compiles expression. An empty expression returns a nil
// filter, which keeps everything. A compile error is a configuration error.
func NewRecordFilter(expression string, log logger.Logger) (*RecordFilter, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, nil
	}
	if log == nil {
		log = logger.NopLogger{}
	}

	env, err := newFilterEnv()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to create filter environment").WithCause(err)
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, apperrors.NewConfigurationError(fmt.Sprintf("invalid record filter %q", expression)).WithCause(issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, apperrors.NewConfigurationError(fmt.Sprintf("record filter %q must evaluate to bool, got %s", expression, out))
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, apperrors.NewConfigurationError("failed to create record filter program").WithCause(err)
	}

	return &RecordFilter{
		expression: expression,
		program:    program,
		logger:     log.WithComponent("record-filter"),
	}, nil
}

// Match evaluates the filter against one record.
func (f *RecordFilter) Match(record *model.Record) (bool, error) {
	if f == nil {
		return true, nil
	}
	out, _, err := f.program.Eval(map[string]interface{}{"record": record.Map()})
	if err != nil {
		return false, fmt.Errorf("record filter evaluation error: %w", err)
	}
	keep, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("record filter did not return a bool")
	}
	return keep, nil
}

// Apply returns the kept records, in order, and how many were dropped. A
// record the expression cannot be evaluated against is dropped with a warning.
func (f *RecordFilter) Apply(records []*model.Record) ([]*model.Record, int) {
	if f == nil {
		return records, 0
	}
	kept := make([]*model.Record, 0, len(records))
	dropped := 0
	for i, r := range records {
		ok, err := f.Match(r)
		if err != nil {
			f.logger.WithFields(map[string]interface{}{"index": i}).Warnf("record excluded: %v", err)
		}
		if !ok {
			dropped++
			continue
		}
		kept = append(kept, r)
	}
	return kept, dropped
}

// Expression returns the source expression.
func (f *RecordFilter) Expression() string {
	if f == nil {
		return ""
	}
	return f.expression
}
