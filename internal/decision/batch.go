package decision

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"math/big"

	"github.com/loykin/rtctl/internal/orchestrator"
)

const (
	lowerChars  = "abcdefghijkmnopqrstuvwxyz"
	upperChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	digitChars  = "23456789"
	symbolChars = "!#%+-.:=@_"

	DefaultPasswordLength = 24
)

// Batch decides without an operator: create the database when the
// deployment mode allows it, execute schema changes, replace insecure
// passwords with generated ones and always escalate a stuck shutdown.
type Batch struct {
	// Report receives generated passwords, one line per account.
	Report         io.Writer
	PasswordLength int
	Logger         *slog.Logger
}

func (b *Batch) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

func (b *Batch) ResolveDBCreation(_ context.Context, permissive bool) (orchestrator.DBDecision, error) {
	if permissive {
		b.logger().Info("database does not exist, creating it")
		return orchestrator.DBCreate, nil
	}
	b.logger().Error("database does not exist and the deployment mode does not allow creating it")
	return orchestrator.DBAbort, nil
}

func (b *Batch) ResolveSchemaSync(_ context.Context, ddl []string) (orchestrator.SchemaDecision, error) {
	b.logger().Info("synchronizing database structure", "commands", len(ddl))
	return orchestrator.SchemaExecute, nil
}

func (b *Batch) ResolveCredentialReset(_ context.Context, accounts []string) (bool, error) {
	b.logger().Warn("replacing insecure administrative passwords", "users", accounts)
	return true, nil
}

func (b *Batch) ReadCredential(_ context.Context, account string) (orchestrator.Credential, error) {
	n := b.PasswordLength
	if n <= 0 {
		n = DefaultPasswordLength
	}
	pw, err := GeneratePassword(n)
	if err != nil {
		return orchestrator.Credential{}, err
	}
	if b.Report != nil {
		if _, err := fmt.Fprintf(b.Report, "generated password for user %s: %s\n", account, pw); err != nil {
			return orchestrator.Credential{}, fmt.Errorf("report generated password: %w", err)
		}
	}
	return orchestrator.Credential{Password: pw, Confirmation: pw}, nil
}

func (b *Batch) ResolveEscalation(_ context.Context, tier orchestrator.Tier) (bool, error) {
	b.logger().Warn("escalating shutdown", "tier", tier.String())
	return true, nil
}

// GeneratePassword returns a random password of length n (at least 4) with
// at least one lower case letter, upper case letter, digit and symbol.
func GeneratePassword(n int) (string, error) {
	if n < 4 {
		n = 4
	}
	classes := []string{lowerChars, upperChars, digitChars, symbolChars}
	all := lowerChars + upperChars + digitChars + symbolChars
	out := make([]byte, n)
	for i := range out {
		set := all
		if i < len(classes) {
			set = classes[i]
		}
		c, err := pick(set)
		if err != nil {
			return "", err
		}
		out[i] = c
	}
	// move the guaranteed classes away from the front
	for i := len(out) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		out[i], out[j.Int64()] = out[j.Int64()], out[i]
	}
	return string(out), nil
}

func pick(set string) (byte, error) {
	i, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, fmt.Errorf("generate password: %w", err)
	}
	return set[i.Int64()], nil
}
