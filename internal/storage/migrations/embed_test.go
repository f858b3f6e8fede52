package migrations

import (
	"io/fs"
	"strings"
	"testing"
)

func TestStatementsSplitsEmbeddedFiles(t *testing.T) {
	tests := []struct {
		name string
		fsys fs.FS
		dir  string
		want int
	}{
		{name: "postgres", fsys: PostgresFS, dir: "postgres", want: 5},
		{name: "clickhouse", fsys: ClickhouseFS, dir: "clickhouse", want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmts, err := Statements(tt.fsys, tt.dir)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(stmts) != tt.want {
				t.Fatalf("expected %d statements, got %d", tt.want, len(stmts))
			}
			for _, stmt := range stmts {
				if !strings.HasPrefix(stmt, "CREATE") {
					t.Errorf("unexpected statement: %q", stmt)
				}
			}
		})
	}
}

func TestStatementsMissingDir(t *testing.T) {
	if _, err := Statements(PostgresFS, "mysql"); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
