package memory

import (
	"github.com/google/cel-go/cel"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
)

// Filter is a compiled CEL predicate over a memory. Available variables are
// id, content, title, tags, created_at and updated_at.
type Filter struct {
	prg cel.Program
}

// NewFilter compiles expr. The expression must evaluate to bool.
func NewFilter(expr string) (*Filter, error) {
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("content", cel.StringType),
		cel.Variable("title", cel.StringType),
		cel.Variable("tags", cel.ListType(cel.StringType)),
		cel.Variable("created_at", cel.TimestampType),
		cel.Variable("updated_at", cel.TimestampType),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create CEL environment")
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, goerr.Wrap(ErrValidation, iss.Err().Error(), goerr.V("expr", expr))
	}
	if ast.OutputType() != cel.BoolType {
		return nil, goerr.Wrap(ErrValidation, "filter must be a bool expression",
			goerr.V("expr", expr), goerr.V("type", ast.OutputType().String()))
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build CEL program", goerr.V("expr", expr))
	}

	return &Filter{prg: prg}, nil
}

// Match reports whether m satisfies the filter
func (f *Filter) Match(m *model.Memory) (bool, error) {
	tags := m.ContainerTags
	if tags == nil {
		tags = []string{}
	}

	out, _, err := f.prg.Eval(map[string]any{
		"id":         m.ID.String(),
		"content":    m.Content,
		"title":      m.Title,
		"tags":       tags,
		"created_at": m.CreatedAt,
		"updated_at": m.UpdatedAt,
	})
	if err != nil {
		return false, goerr.Wrap(err, "failed to evaluate filter", goerr.V("id", m.ID))
	}

	matched, ok := out.Value().(bool)
	if !ok {
		return false, goerr.New("filter returned non-bool", goerr.V("value", out.Value()))
	}
	return matched, nil
}

// Apply returns the memories matching the filter, preserving order
func (f *Filter) Apply(memories []*model.Memory) ([]*model.Memory, error) {
	matched := make([]*model.Memory, 0, len(memories))
	for _, m := range memories {
		ok, err := f.Match(m)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, m)
		}
	}
	return matched, nil
}
