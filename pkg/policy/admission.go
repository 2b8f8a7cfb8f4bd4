package policy

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/utils/logging"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/topdown/print"
)

// AdmissionInput is what the admission policy sees for one add request
type AdmissionInput struct {
	UserID      string `json:"user_id"`
	MemoryCount int    `json:"memory_count"`
	Limit       int    `json:"limit"`
	Content     string `json:"content"`
}

// Decision is the result of the admission policy
type Decision struct {
	Allow  bool
	Reason string
}

// regoPrintHook routes Rego print() statements to the context logger
type regoPrintHook struct {
	ctx context.Context
}

func (h *regoPrintHook) Print(_ print.Context, message string) error {
	logging.From(h.ctx).Debug("rego print", "message", message)
	return nil
}

// Admission decides whether a memory may be added to a partition
type Admission struct {
	query *rego.PreparedEvalQuery
}

// NewAdmission prepares the admission policy from policyDir, falling back to
// the embedded default.
func NewAdmission(ctx context.Context, policyDir string) (*Admission, error) {
	modules, err := loadModules(policyDir)
	if err != nil {
		return nil, err
	}

	query, err := prepareQuery(ctx, modules, admissionQuery)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare admission policy")
	}

	return &Admission{query: query}, nil
}

// Evaluate runs the policy. A policy that yields nothing denies.
func (a *Admission) Evaluate(ctx context.Context, input AdmissionInput) (*Decision, error) {
	rs, err := a.query.Eval(ctx,
		rego.EvalInput(map[string]any{
			"user_id":      input.UserID,
			"memory_count": input.MemoryCount,
			"limit":        input.Limit,
			"content":      input.Content,
		}),
		rego.EvalPrintHook(&regoPrintHook{ctx: ctx}),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate admission policy")
	}

	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return &Decision{Allow: false, Reason: "denied by policy"}, nil
	}

	data, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return nil, goerr.New("invalid admission result", goerr.V("value", rs[0].Expressions[0].Value))
	}

	allow, _ := data["allow"].(bool)
	reason, _ := data["reason"].(string)
	if !allow && reason == "" {
		reason = "denied by policy"
	}

	return &Decision{Allow: allow, Reason: reason}, nil
}
