package policy_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kioku/pkg/policy"
)

func TestDefaultAdmission(t *testing.T) {
	ctx := context.Background()
	admission, err := policy.NewAdmission(ctx, "")
	gt.NoError(t, err)

	testCases := []struct {
		name   string
		input  policy.AdmissionInput
		allow  bool
		reason string
	}{
		{
			name:  "empty partition",
			input: policy.AdmissionInput{UserID: "u1", MemoryCount: 0, Limit: 2000},
			allow: true,
		},
		{
			name:  "at the ceiling",
			input: policy.AdmissionInput{UserID: "u1", MemoryCount: 2000, Limit: 2000},
			allow: true,
		},
		{
			name:   "over the ceiling",
			input:  policy.AdmissionInput{UserID: "u1", MemoryCount: 2001, Limit: 2000},
			allow:  false,
			reason: "Memory limit of 2000 memories exceeded",
		},
		{
			name:   "missing user",
			input:  policy.AdmissionInput{UserID: "", MemoryCount: 0, Limit: 2000},
			allow:  false,
			reason: "User ID is required",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			decision, err := admission.Evaluate(ctx, tc.input)
			gt.NoError(t, err)
			gt.Equal(t, decision.Allow, tc.allow)
			gt.Equal(t, decision.Reason, tc.reason)
		})
	}
}

func TestCustomAdmissionPolicy(t *testing.T) {
	ctx := context.Background()
	tmpDir := t.TempDir()

	custom := `package kioku.admission

default allow := false

allow if {
	input.user_id != ""
	count(input.content) <= 10
}

reason := "too long" if count(input.content) > 10
`
	gt.NoError(t, os.WriteFile(filepath.Join(tmpDir, "custom.rego"), []byte(custom), 0644))

	admission, err := policy.NewAdmission(ctx, tmpDir)
	gt.NoError(t, err)

	decision, err := admission.Evaluate(ctx, policy.AdmissionInput{UserID: "u1", Content: "short"})
	gt.NoError(t, err)
	gt.True(t, decision.Allow)

	decision, err = admission.Evaluate(ctx, policy.AdmissionInput{UserID: "u1", Content: "much too long content"})
	gt.NoError(t, err)
	gt.False(t, decision.Allow)
	gt.Equal(t, decision.Reason, "too long")
}

func TestInvalidAdmissionPolicy(t *testing.T) {
	tmpDir := t.TempDir()
	gt.NoError(t, os.WriteFile(filepath.Join(tmpDir, "broken.rego"), []byte("package kioku.admission\nallow if {"), 0644))

	_, err := policy.NewAdmission(context.Background(), tmpDir)
	gt.Error(t, err)
}

func TestEmptyPolicyDirUsesDefault(t *testing.T) {
	ctx := context.Background()
	admission, err := policy.NewAdmission(ctx, t.TempDir())
	gt.NoError(t, err)

	decision, err := admission.Evaluate(ctx, policy.AdmissionInput{UserID: "u1", MemoryCount: 2001, Limit: 2000})
	gt.NoError(t, err)
	gt.False(t, decision.Allow)
}
