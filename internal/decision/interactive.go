// Package decision holds the policies that answer the startup and shutdown
// questions of the orchestrator: one asking an operator, one deciding alone.
package decision

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/loykin/rtctl/internal/orchestrator"
)

const (
	optCreate  = "create"
	optRetry   = "retry"
	optAbort   = "abort"
	optView    = "view queries"
	optSave    = "save them to a file"
	optExecute = "execute and save them"
	optChange  = "change passwords"
)

// Interactive asks the operator through a Prompter.
type Interactive struct {
	p   Prompter
	out io.Writer
}

// NewInteractive prompts on the terminal and prints DDL to out (stdout when nil).
func NewInteractive(out io.Writer) *Interactive {
	return NewInteractiveWith(SurveyPrompter{}, out)
}

func NewInteractiveWith(p Prompter, out io.Writer) *Interactive {
	if out == nil {
		out = os.Stdout
	}
	return &Interactive{p: p, out: out}
}

func (i *Interactive) ResolveDBCreation(ctx context.Context, permissive bool) (orchestrator.DBDecision, error) {
	msg := "The database does not exist. Do you want to retry or abort?"
	opts := []string{optRetry, optAbort}
	if permissive {
		msg = "The database does not exist. Do you want to create, retry, or abort?"
		opts = []string{optCreate, optRetry, optAbort}
	}
	answer, err := i.p.Select(msg, opts)
	if err != nil {
		return orchestrator.DBAbort, err
	}
	switch answer {
	case optCreate:
		return orchestrator.DBCreate, nil
	case optRetry:
		return orchestrator.DBRetry, nil
	default:
		return orchestrator.DBAbort, nil
	}
}

func (i *Interactive) ResolveSchemaSync(ctx context.Context, ddl []string) (orchestrator.SchemaDecision, error) {
	for {
		if err := ctx.Err(); err != nil {
			return orchestrator.SchemaAbort, err
		}
		answer, err := i.p.Select(
			fmt.Sprintf("The database structure is out of sync (%d commands). What do you want to do?", len(ddl)),
			[]string{optView, optSave, optExecute, optAbort},
		)
		if err != nil {
			return orchestrator.SchemaAbort, err
		}
		switch answer {
		case optView:
			_, _ = fmt.Fprintln(i.out, strings.Join(ddl, "\n"))
		case optSave:
			return orchestrator.SchemaSave, nil
		case optExecute:
			return orchestrator.SchemaExecute, nil
		default:
			return orchestrator.SchemaAbort, nil
		}
	}
}

func (i *Interactive) ResolveCredentialReset(ctx context.Context, accounts []string) (bool, error) {
	answer, err := i.p.Select(
		fmt.Sprintf("Administrative accounts with an insecure password: %s. Do you want to change passwords or abort?", strings.Join(accounts, ", ")),
		[]string{optChange, optAbort},
	)
	if err != nil {
		return false, err
	}
	return answer == optChange, nil
}

func (i *Interactive) ReadCredential(ctx context.Context, account string) (orchestrator.Credential, error) {
	pw, err := i.p.Password(fmt.Sprintf("Type new password for user %s:", account))
	if err != nil {
		return orchestrator.Credential{}, err
	}
	again, err := i.p.Password(fmt.Sprintf("Type new password for user %s again:", account))
	if err != nil {
		return orchestrator.Credential{}, err
	}
	return orchestrator.Credential{Password: pw, Confirmation: again}, nil
}

func (i *Interactive) ResolveEscalation(ctx context.Context, tier orchestrator.Tier) (bool, error) {
	msg := "Do you want to try to signal the runtime process to stop immediately?"
	if tier == orchestrator.TierKill {
		msg = "The runtime process is still there. Do you want to kill it?"
	}
	return i.p.Confirm(msg, false)
}
