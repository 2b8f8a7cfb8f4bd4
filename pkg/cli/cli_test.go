package cli_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kioku/pkg/cli"
)

func TestRunLocalBackend(t *testing.T) {
	err := cli.Run(t.Context(), []string{"kioku", "add", "--backend", "local", "--user", "u1", "--content", "likes go"})
	gt.True(t, err == nil)

	err = cli.Run(t.Context(), []string{"kioku", "list", "--backend", "local", "--user", "u1", "--filter", `content.contains("go")`})
	gt.True(t, err == nil)
}

func TestRunErrors(t *testing.T) {
	testCases := []struct {
		name string
		argv []string
	}{
		{
			name: "unknown backend",
			argv: []string{"kioku", "list", "--backend", "sqlite", "--user", "u1"},
		},
		{
			name: "missing api key",
			argv: []string{"kioku", "list", "--backend", "supermemory", "--supermemory-api-key", "", "--user", "u1"},
		},
		{
			name: "invalid filter",
			argv: []string{"kioku", "list", "--backend", "local", "--user", "u1", "--filter", "content"},
		},
		{
			name: "delete without id",
			argv: []string{"kioku", "delete", "--backend", "local", "--user", "u1"},
		},
		{
			name: "rejected add",
			argv: []string{"kioku", "add", "--backend", "local", "--user", "", "--content", "x"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("SUPERMEMORY_API_KEY", "")
			err := cli.Run(t.Context(), tc.argv)
			gt.True(t, err != nil)
			if err != nil {
				gt.Equal(t, err.Code, 1)
			}
		})
	}
}
