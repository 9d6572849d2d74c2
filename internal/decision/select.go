package decision

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/loykin/rtctl/internal/orchestrator"
	"golang.org/x/term"
)

// EnvNonInteractive forces the batch policy when set to a true value.
const EnvNonInteractive = "RTCTL_NON_INTERACTIVE"

var ciVars = []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "BUILDKITE", "TF_BUILD"}

// Env describes where the controller runs.
type Env struct {
	NonInteractive  bool
	Getenv          func(string) string
	StdinIsTerminal func() bool
}

// IsBatch reports whether nobody can answer prompts: requested explicitly,
// running under CI, or stdin is not a terminal.
func IsBatch(e Env) bool {
	if e.NonInteractive {
		return true
	}
	getenv := e.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv(EnvNonInteractive); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	for _, k := range ciVars {
		if getenv(k) != "" {
			return true
		}
	}
	isTTY := e.StdinIsTerminal
	if isTTY == nil {
		isTTY = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
	}
	return !isTTY()
}

// Select returns the policy for e. out receives DDL listings and generated
// passwords.
func Select(e Env, out io.Writer) orchestrator.Policy {
	if IsBatch(e) {
		return &Batch{Report: out}
	}
	return NewInteractive(out)
}
