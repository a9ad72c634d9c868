package testenv

import (
	"reflect"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	script := `-- header comment
GRANT ALL PRIVILEGES ON benchtop.* TO 'benchtop'@'%'; -- trailing
INSERT INTO notes (body) VALUES ('a -- not a comment');
FLUSH PRIVILEGES;
`
	want := []string{
		"GRANT ALL PRIVILEGES ON benchtop.* TO 'benchtop'@'%'",
		"INSERT INTO notes (body) VALUES ('a -- not a comment')",
		"FLUSH PRIVILEGES",
	}
	if got := splitStatements(script); !reflect.DeepEqual(got, want) {
		t.Errorf("splitStatements() = %q, want %q", got, want)
	}
}

func TestStripComment(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"SELECT 1 -- one", "SELECT 1 "},
		{"-- only a comment", ""},
		{`SELECT "--" AS dashes`, `SELECT "--" AS dashes`},
		{"SELECT 'it''s' -- quoted", "SELECT 'it''s' "},
		{"SELECT 2", "SELECT 2"},
	}
	for _, tt := range tests {
		if got := stripComment(tt.line); got != tt.want {
			t.Errorf("stripComment(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestEnvDefaults(t *testing.T) {
	t.Setenv("DB_DATABASE", "")
	t.Setenv("DB_APP_USER", "workshop")
	tc := &TestContainers{DBHost: "localhost", DBPort: "32768", RedisAddr: "localhost:32769"}

	env := tc.Env()
	if env["DB_DATABASE"] != "benchtop" || env["DB_APP_USER"] != "workshop" {
		t.Errorf("Unexpected env %v", env)
	}
	if env["DB_TYPE"] != "mariadb" || env["REDIS_ADDR"] != "localhost:32769" {
		t.Errorf("Unexpected env %v", env)
	}
}
