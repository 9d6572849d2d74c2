package orchestrator

import "context"

type DBDecision int

const (
	DBRetry DBDecision = iota
	DBCreate
	DBAbort
)

func (d DBDecision) String() string {
	switch d {
	case DBCreate:
		return "create"
	case DBAbort:
		return "abort"
	default:
		return "retry"
	}
}

type SchemaDecision int

const (
	SchemaAbort SchemaDecision = iota
	SchemaSave
	SchemaExecute
)

func (d SchemaDecision) String() string {
	switch d {
	case SchemaSave:
		return "save"
	case SchemaExecute:
		return "execute"
	default:
		return "abort"
	}
}

// Credential is a new password typed twice.
type Credential struct {
	Password     string
	Confirmation string
}

// Policy answers the questions the state machine cannot decide by itself.
// Implementations may prompt an operator or decide from configuration; the
// orchestrator never touches the terminal.
type Policy interface {
	// ResolveDBCreation is asked when the database does not exist. permissive
	// tells whether the deployment mode allows creating it.
	ResolveDBCreation(ctx context.Context, permissive bool) (DBDecision, error)
	ResolveSchemaSync(ctx context.Context, ddl []string) (SchemaDecision, error)
	// ResolveCredentialReset returns false to abort instead of re-keying.
	ResolveCredentialReset(ctx context.Context, accounts []string) (bool, error)
	ReadCredential(ctx context.Context, account string) (Credential, error)
	// ResolveEscalation returns false to leave the process as it is.
	ResolveEscalation(ctx context.Context, tier Tier) (bool, error)
}

// DDLSink persists DDL commands and returns where they went.
type DDLSink interface {
	SaveDDL(ctx context.Context, commands []string) (string, error)
}
