package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_ReadStatements(t *testing.T) {
	queries := []string{
		"SELECT * FROM users",
		"select id, name from users where id = 1",
		"  SELECT 1;  ",
		"SHOW server_version",
		"EXPLAIN SELECT * FROM users",
		"DESCRIBE users",
		"DESC users",
		"(SELECT 1)",
		"WITH recent AS (SELECT * FROM orders WHERE ts > now() - interval '1 day') SELECT count(*) FROM recent",
		"SELECT created_at, updated_at, deleted FROM audit", // column names embedding write keywords
		"SELECT * FROM settings WHERE name = 'theme'",
		"SELECT * FROM users WHERE name = 'DROP TABLE users'",
		"SELECT * FROM users WHERE note = 'it''s; DELETE FROM x'",
		"SELECT 1 -- DROP TABLE users",
		"SELECT 1 /* INSERT INTO x */",
		"SELECT 1 /* outer /* nested DELETE */ still comment */",
	}
	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			cls := Classify(q)
			assert.Equal(t, Read, cls.Kind, "keyword=%s", cls.Keyword)
		})
	}
}

func TestClassify_WriteStatements(t *testing.T) {
	cases := []struct {
		query   string
		keyword string
	}{
		{"INSERT INTO users VALUES (1)", "INSERT"},
		{"UPDATE users SET name = 'x'", "UPDATE"},
		{"DELETE FROM users", "DELETE"},
		{"delete from users", "DELETE"},
		{"CREATE TABLE t (id INT)", "CREATE"},
		{"ALTER TABLE users ADD COLUMN age INT", "ALTER"},
		{"DROP TABLE users", "DROP"},
		{"TRUNCATE users", "TRUNCATE"},
		{"GRANT ALL ON users TO bob", "GRANT"},
		{"REVOKE ALL ON users FROM bob", "REVOKE"},
		{"COPY users FROM '/tmp/users.csv'", "COPY"},
		{"MERGE INTO t USING s ON t.id = s.id WHEN MATCHED THEN DO NOTHING", "MERGE"},
		{"CALL cleanup()", "CALL"},
		{"DO $$ BEGIN END $$", "DO"},
		{"SET search_path TO public", "SET"},
		{"LOCK TABLE users", "LOCK"},
		{"(INSERT INTO users VALUES (1))", "INSERT"},
		{"WITH gone AS (DELETE FROM users RETURNING id) SELECT * FROM gone", "DELETE"},
		{"WITH x AS (SELECT 1) INSERT INTO t SELECT * FROM x", "INSERT"},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			cls := Classify(tc.query)
			require.Equal(t, Write, cls.Kind)
			assert.Equal(t, tc.keyword, cls.Keyword)
		})
	}
}

func TestClassify_MultiStatementIsAlwaysWrite(t *testing.T) {
	queries := []string{
		"SELECT 1; DROP TABLE users",
		"SELECT 1; SELECT 2",
		"SELECT 1 ; \n DELETE FROM users",
	}
	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			cls := Classify(q)
			require.Equal(t, Write, cls.Kind)
			assert.Equal(t, ";", cls.Keyword)
		})
	}

	// Semicolons hidden in literals or comments are not statement separators.
	for _, q := range []string{
		"SELECT * FROM t WHERE v = 'a;b'",
		"SELECT 1 -- ; DROP TABLE users",
		"SELECT 1 /* ; DROP TABLE users */",
	} {
		t.Run(q, func(t *testing.T) {
			assert.Equal(t, Read, Classify(q).Kind)
		})
	}
}

func TestClassify_AmbiguousFailsClosed(t *testing.T) {
	cases := []struct {
		query   string
		keyword string
	}{
		{"", "(empty)"},
		{"   ", "(empty)"},
		{"-- just a comment", "(empty)"},
		{"FROBNICATE users", "FROBNICATE"},
		{"WITH x AS (SELECT 1) TABLE x", "WITH"},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			cls := Classify(tc.query)
			require.Equal(t, Ambiguous, cls.Kind)
			assert.Equal(t, tc.keyword, cls.Keyword)
		})
	}
}

func TestClassify_NormalizesStatement(t *testing.T) {
	cls := Classify("  SELECT 1;  ")
	assert.Equal(t, "SELECT 1", cls.Statement)
}

func TestStripStringsAndComments(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"SELECT * FROM users WHERE name = 'DROP TABLE'", "SELECT * FROM users WHERE name = ''"},
		{"SELECT * FROM users -- comment", "SELECT * FROM users "},
		{"SELECT 1 /* block */ FROM t", "SELECT 1   FROM t"},
		{`SELECT "weird""col" FROM t`, `SELECT "" FROM t`},
		{"SELECT 'it''s fine'", "SELECT ''"},
		{`SELECT 'back\'slash'`, "SELECT ''"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, StripStringsAndComments(tc.in))
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "read", Read.String())
	assert.Equal(t, "write", Write.String())
	assert.Equal(t, "ambiguous", Ambiguous.String())
}
