package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileDDLSink writes each batch of DDL commands to
// <Dir>/<YYYYMMDD_HHMMSS>_database_commands.sql.
type FileDDLSink struct {
	Dir string
	Now func() time.Time
}

func (s FileDDLSink) SaveDDL(_ context.Context, commands []string) (string, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create ddl dump dir: %w", err)
	}
	name := filepath.Join(dir, now().Format("20060102_150405")+"_database_commands.sql")
	if err := os.WriteFile(name, []byte(strings.Join(commands, "\n")), 0o640); err != nil {
		return "", fmt.Errorf("write ddl commands: %w", err)
	}
	return name, nil
}
