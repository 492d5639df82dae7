//go:build integration_pg
// +build integration_pg

package pg

import (
	"context"
	"fmt"
	"testing"
	"time"

	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"contact_harvest/internal/shared/types"
)

func startPostgres(t *testing.T) (dsn string, stop func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)

	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "harvest",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections"),
		).WithDeadline(2 * time.Minute),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		cancel()
		t.Fatalf("failed to start postgres container: %v", err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get container host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get mapped port: %v", err)
	}

	dsn = fmt.Sprintf("postgres://postgres:postgres@%s:%s/harvest?sslmode=disable", host, mapped.Port())
	stop = func() {
		_ = c.Terminate(context.Background())
		cancel()
	}
	return dsn, stop
}

func openTestDB(t *testing.T, ctx context.Context, dsn string) *PG {
	t.Helper()
	var (
		p   *PG
		err error
	)
	// the log line can precede the final server restart in the image
	for i := 0; i < 10; i++ {
		if p, err = Open(ctx, Config{URL: dsn, MaxConns: 2}); err == nil {
			if err = p.EnsureSchema(ctx); err == nil {
				return p
			}
			p.Close()
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("open db: %v", err)
	return nil
}

func TestStores_Integration(t *testing.T) {
	dsn, stop := startPostgres(t)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	db := openTestDB(t, ctx, dsn)
	defer db.Close()

	// EnsureSchema is idempotent
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("second EnsureSchema: %v", err)
	}

	t.Run("blocklist", func(t *testing.T) {
		bl := db.Blocklist()
		first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		if err := bl.Add(ctx, "1.2.3.4:8080", first); err != nil {
			t.Fatal(err)
		}
		if err := bl.Add(ctx, "1.2.3.4:8080", first.Add(time.Hour)); err != nil {
			t.Fatal(err)
		}
		got, err := bl.Load(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || !got["1.2.3.4:8080"].Equal(first) {
			t.Errorf("unexpected blocklist %v", got)
		}
	})

	t.Run("checkpoints", func(t *testing.T) {
		cps := db.Checkpoints()
		if _, ok, err := cps.Latest(ctx, "/in.csv"); err != nil || ok {
			t.Fatalf("expected no checkpoint, got ok=%v err=%v", ok, err)
		}
		base := time.Now().UTC().Truncate(time.Microsecond)
		for i, cp := range []types.Checkpoint{
			{LastAttemptedRow: 0, Attempt: 1, Final: true},
			{LastAttemptedRow: 1, Attempt: 1, Final: false},
			{LastAttemptedRow: 1, Attempt: 2, Final: false},
		} {
			cp.Source, cp.RunID, cp.At = "/in.csv", "run-1", base.Add(time.Duration(i)*time.Second)
			if err := cps.Append(ctx, cp); err != nil {
				t.Fatal(err)
			}
		}
		if err := cps.Append(ctx, types.Checkpoint{Source: "/other.csv", LastAttemptedRow: 9, Final: true, At: base.Add(time.Hour)}); err != nil {
			t.Fatal(err)
		}
		cp, ok, err := cps.Latest(ctx, "/in.csv")
		if err != nil || !ok {
			t.Fatalf("Latest: ok=%v err=%v", ok, err)
		}
		if cp.LastAttemptedRow != 1 || cp.Attempt != 2 || cp.Final || cp.ResumeRow() != 1 {
			t.Errorf("unexpected latest checkpoint %+v", cp)
		}
	})

	t.Run("results", func(t *testing.T) {
		rs := db.Results()
		old := types.Result{Remarks: types.FailedAfterRetries(5)}
		var fresh types.Result
		fresh.VerifiedName = "John Smith"
		fresh.Phones = [types.PhoneSlots]string{"", "(512) 555-1212", "", ""}
		fresh.Remarks = types.RecordFound()
		fresh.UsedEgress = "1.2.3.4:8080"

		for _, sr := range []types.StoredResult{
			{Source: "/in.csv", Ordinal: 0, RunID: "a", Result: old, At: time.Now()},
			{Source: "/in.csv", Ordinal: 0, RunID: "b", Result: fresh, At: time.Now()},
			{Source: "/in.csv", Ordinal: 2, RunID: "b", Result: types.Result{Remarks: types.ResultSummary("12 records found")}, At: time.Now()},
		} {
			if err := rs.Save(ctx, sr); err != nil {
				t.Fatal(err)
			}
		}
		got, err := rs.Latest(ctx, "/in.csv")
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 rows, got %d", len(got))
		}
		r := got[0]
		if r.VerifiedName != "John Smith" || r.Phones[0] != "(512) 555-1212" || r.Phones[1] != "" {
			t.Errorf("latest write should win and be left-packed, got %+v", r)
		}
		if got[2].Remarks.String() != "12 records found" {
			t.Errorf("unexpected summary remarks %q", got[2].Remarks.String())
		}
	})
}
