package dockerenv

import (
	"strings"
	"testing"

	"forge/logging"
	"forge/workspace"
)

func TestRunArgsCarrySandboxFlags(t *testing.T) {
	p := New(Config{
		BaseImage:   "python:3.12-slim",
		User:        "1000:1000",
		MemoryLimit: "512m",
		Network:     "none",
		Shell:       "/bin/bash",
	}, logging.Discard())

	ws := workspace.Workspace{ID: "abc", RootPath: "/tmp/forge/abc/workspace"}
	args := strings.Join(p.runArgs(ws), " ")

	for _, want := range []string{
		"--user 1000:1000",
		"--memory 512m",
		"--security-opt no-new-privileges",
		"--network none",
		"-v /tmp/forge/abc/workspace:/workspace",
		"-w /workspace",
		"python:3.12-slim",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("run args missing %q: %s", want, args)
		}
	}
	if !strings.HasSuffix(args, "sleep infinity") {
		t.Errorf("container must idle after start: %s", args)
	}
}

func TestParseContainerID(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{
			"plain id",
			"0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef\n",
			"0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
		},
		{
			"id after warning",
			"WARNING: The requested image's platform does not match\nabcdefabcdef\n",
			"abcdefabcdef",
		},
		{"garbage", "Error response from daemon\n", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseContainerID(tt.output); got != tt.want {
				t.Errorf("parseContainerID(%q) = %q, want %q", tt.output, got, tt.want)
			}
		})
	}
}
