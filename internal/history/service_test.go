package history

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"
)

// stubDriver is a minimal database/sql driver recording the last executed
// statement and returning a canned result, enough to exercise the store's
// SQL paths without a live database.
type stubDriver struct {
	result    stubResult
	lastQuery string
	lastArgs  []driver.Value
}

type stubResult struct {
	affected int64
	err      error
}

func (r stubResult) LastInsertId() (int64, error) { return 0, nil }
func (r stubResult) RowsAffected() (int64, error) { return r.affected, r.err }

func (d *stubDriver) Open(string) (driver.Conn, error) { return &stubConn{d: d}, nil }

type stubConn struct {
	d *stubDriver
}

func (c *stubConn) Prepare(query string) (driver.Stmt, error) {
	return &stubStmt{d: c.d, query: query}, nil
}
func (c *stubConn) Close() error              { return nil }
func (c *stubConn) Begin() (driver.Tx, error) { return nil, errors.New("transactions not supported") }

type stubStmt struct {
	d     *stubDriver
	query string
}

func (s *stubStmt) Close() error  { return nil }
func (s *stubStmt) NumInput() int { return -1 }

func (s *stubStmt) Exec(args []driver.Value) (driver.Result, error) {
	s.d.lastQuery = s.query
	s.d.lastArgs = args
	return s.d.result, nil
}

func (s *stubStmt) Query(args []driver.Value) (driver.Rows, error) {
	return nil, errors.New("queries not supported")
}

var (
	recordingDriver = &stubDriver{result: stubResult{affected: 2}}
	countErrDriver  = &stubDriver{result: stubResult{err: errors.New("rows affected unavailable")}}
)

func init() {
	sql.Register("history-stub", recordingDriver)
	sql.Register("history-stub-counterr", countErrDriver)
}

func openStubStore(t *testing.T, driverName string) *PGStore {
	t.Helper()
	db, err := sql.Open(driverName, "")
	if err != nil {
		t.Fatalf("open stub db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPGStore(db, testLogger())
}

func TestDeleteManyIsOwnerScoped(t *testing.T) {
	store := openStubStore(t, "history-stub")

	deleted, err := store.DeleteMany(context.Background(), "user-1", []string{"a", "c"})
	if err != nil {
		t.Fatalf("DeleteMany: %v", err)
	}
	if deleted != 2 {
		t.Errorf("expected reported count from the result, got %d", deleted)
	}

	if !strings.Contains(recordingDriver.lastQuery, "user_id = $1") {
		t.Errorf("delete must be scoped to the owner, got query %q", recordingDriver.lastQuery)
	}
	if !strings.Contains(recordingDriver.lastQuery, "id = ANY($2)") {
		t.Errorf("delete must match the id set, got query %q", recordingDriver.lastQuery)
	}
	if len(recordingDriver.lastArgs) == 0 || recordingDriver.lastArgs[0] != "user-1" {
		t.Errorf("owner must be the first bound argument, got %v", recordingDriver.lastArgs)
	}
}

func TestDeleteManyEmptyIDsSkipsQuery(t *testing.T) {
	store := openStubStore(t, "history-stub")
	recordingDriver.lastQuery = ""

	deleted, err := store.DeleteMany(context.Background(), "user-1", nil)
	if err != nil || deleted != 0 {
		t.Fatalf("empty id set must be a no-op, got %d, %v", deleted, err)
	}
	if recordingDriver.lastQuery != "" {
		t.Errorf("no statement expected for an empty id set, got %q", recordingDriver.lastQuery)
	}
}

func TestDeleteManySurfacesCountError(t *testing.T) {
	store := openStubStore(t, "history-stub-counterr")

	if _, err := store.DeleteMany(context.Background(), "user-1", []string{"a"}); err == nil {
		t.Fatalf("a failed row count must surface, not read as zero deletions")
	}
}

func TestDeleteAllForUserSurfacesCountError(t *testing.T) {
	store := openStubStore(t, "history-stub-counterr")

	if _, err := store.DeleteAllForUser(context.Background(), "user-1"); err == nil {
		t.Fatalf("a failed row count must surface, not read as zero deletions")
	}
}
