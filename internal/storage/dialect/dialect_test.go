package dialect

import "testing"

func TestFromDriverName(t *testing.T) {
	tests := []struct {
		driver     string
		want       Name
		wantDriver string
		wantErr    bool
	}{
		{"sqlite", SQLite, "sqlite", false},
		{"SQLite3", SQLite, "sqlite", false},
		{"postgres", Postgres, "pgx", false},
		{"postgresql", Postgres, "pgx", false},
		{"pgx", Postgres, "pgx", false},
		{"mysql", MySQL, "mysql", false},
		{"oracle", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			d, err := FromDriverName(tt.driver)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FromDriverName() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if d.Name != tt.want || d.Driver != tt.wantDriver {
				t.Errorf("got %s/%s, want %s/%s", d.Name, d.Driver, tt.want, tt.wantDriver)
			}
		})
	}
}

func TestByName(t *testing.T) {
	for _, name := range []Name{SQLite, Postgres, MySQL} {
		d, err := ByName(name)
		if err != nil {
			t.Fatalf("ByName(%s) error = %v", name, err)
		}
		if d.Name != name {
			t.Errorf("ByName(%s).Name = %s", name, d.Name)
		}
	}
	if _, err := ByName("unknown"); err == nil {
		t.Error("ByName(unknown) should fail")
	}
}

func TestRebind(t *testing.T) {
	const query = "SELECT * FROM agent_logs WHERE conversation_id = ? AND created_at >= ? LIMIT ?"

	tests := []struct {
		name Name
		want string
	}{
		{SQLite, query},
		{MySQL, query},
		{Postgres, "SELECT * FROM agent_logs WHERE conversation_id = $1 AND created_at >= $2 LIMIT $3"},
	}
	for _, tt := range tests {
		t.Run(string(tt.name), func(t *testing.T) {
			if got := dialects[tt.name].Rebind(query); got != tt.want {
				t.Errorf("Rebind() = %q, want %q", got, tt.want)
			}
		})
	}

	if got := dialects[Postgres].Rebind("SELECT 1"); got != "SELECT 1" {
		t.Errorf("Rebind without placeholders = %q", got)
	}
}

func TestUpsertClause(t *testing.T) {
	tests := []struct {
		name    Name
		columns []string
		want    string
	}{
		{SQLite, nil, "ON CONFLICT (id) DO NOTHING"},
		{SQLite, []string{"enabled", "updated_at"}, "ON CONFLICT (id) DO UPDATE SET enabled=excluded.enabled, updated_at=excluded.updated_at"},
		{Postgres, nil, "ON CONFLICT (id) DO NOTHING"},
		{Postgres, []string{"enabled", "updated_at"}, "ON CONFLICT (id) DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = EXCLUDED.updated_at"},
		{MySQL, nil, "ON DUPLICATE KEY UPDATE id = id"},
		{MySQL, []string{"enabled", "updated_at"}, "ON DUPLICATE KEY UPDATE enabled = VALUES(enabled), updated_at = VALUES(updated_at)"},
	}

	for _, tt := range tests {
		if got := dialects[tt.name].UpsertClause([]string{"id"}, tt.columns); got != tt.want {
			t.Errorf("%s UpsertClause(%v) = %q, want %q", tt.name, tt.columns, got, tt.want)
		}
	}
}

func TestIncrementClause(t *testing.T) {
	key := []string{"usage_date", "agent_id"}
	cols := []string{"calls", "token_input"}

	tests := []struct {
		name Name
		want string
	}{
		{SQLite, "ON CONFLICT (usage_date, agent_id) DO UPDATE SET calls=calls+excluded.calls, token_input=token_input+excluded.token_input"},
		{Postgres, "ON CONFLICT (usage_date, agent_id) DO UPDATE SET calls = calls + EXCLUDED.calls, token_input = token_input + EXCLUDED.token_input"},
		{MySQL, "ON DUPLICATE KEY UPDATE calls = calls + VALUES(calls), token_input = token_input + VALUES(token_input)"},
	}

	for _, tt := range tests {
		if got := dialects[tt.name].IncrementClause(key, cols); got != tt.want {
			t.Errorf("%s IncrementClause() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestColumnsAndInit(t *testing.T) {
	if got := dialects[MySQL].Columns.Key; got != "VARCHAR(191)" {
		t.Errorf("mysql key column = %q, TEXT cannot be indexed there", got)
	}
	if got := dialects[Postgres].Columns.Bool; got != "BOOLEAN" {
		t.Errorf("postgres bool column = %q", got)
	}
	if len(dialects[SQLite].Init) == 0 {
		t.Error("sqlite should run pragmas on open")
	}
	if dialects[Postgres].Init != nil || dialects[MySQL].Init != nil {
		t.Error("only sqlite has init statements")
	}
}
