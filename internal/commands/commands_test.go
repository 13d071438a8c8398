package commands_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"todo/internal/commands"
	"todo/internal/config"
	"todo/internal/exitcode"
	"todo/internal/kvstore"
	"todo/internal/service"
	"todo/internal/session"
	"todo/internal/tasksync"
	"todo/internal/testutil"
)

type env struct {
	cfg   *config.Config
	rt    *commands.Runtime
	svc   *testutil.FakeService
	store *kvstore.MemStore
}

// newEnv builds a runtime over a FakeService. When loggedIn is true the
// session is restored as ana@example.com.
func newEnv(t *testing.T, loggedIn bool) *env {
	t.Helper()
	svc := testutil.NewFakeService()
	svc.AddAccount("ana@example.com", "pw")

	store := kvstore.NewMemStore()
	if loggedIn {
		store.Set(session.KeyToken, "token-ana@example.com")
		store.Set(session.KeyUser, "ana@example.com")
	}
	mgr := session.NewManager(store, svc)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("start session: %v", err)
	}

	return &env{
		cfg: &config.Config{Dir: t.TempDir()},
		rt: &commands.Runtime{
			Session: mgr,
			Tasks:   tasksync.New(svc),
			Logger:  slog.New(slog.DiscardHandler),
		},
		svc:   svc,
		store: store,
	}
}

func (e *env) run(cmd commands.Command, args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := cmd.Run(context.Background(), e.cfg, e.rt, args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestListCmd(t *testing.T) {
	e := newEnv(t, true)
	e.svc.AddTask("Buy milk", false)
	e.svc.AddTask("Call mom", true)
	e.svc.AddTask("Water plants", false)

	code, stdout, stderr := e.run(&commands.ListCmd{})
	if code != exitcode.Success {
		t.Fatalf("expected success, got %d: %s", code, stderr)
	}
	testutil.GoldenString(t, "list", stdout)
}

func TestListCmd_Open(t *testing.T) {
	e := newEnv(t, true)
	e.svc.AddTask("Buy milk", false)
	e.svc.AddTask("Call mom", true)
	e.svc.AddTask("Water plants", false)

	cmd := &commands.ListCmd{}
	cmd.SetOpen(true)
	_, stdout, _ := e.run(cmd)

	want := "   1  [ ] Buy milk\n   3  [ ] Water plants\n"
	if stdout != want {
		t.Errorf("expected %q, got %q", want, stdout)
	}
}

func TestListCmd_Empty(t *testing.T) {
	e := newEnv(t, true)

	_, stdout, _ := e.run(&commands.ListCmd{})
	if stdout != "no tasks found\n" {
		t.Errorf("expected 'no tasks found', got %q", stdout)
	}

	e.cfg.Quiet = true
	if _, stdout, _ = e.run(&commands.ListCmd{}); stdout != "" {
		t.Errorf("expected no output when quiet, got %q", stdout)
	}
}

func TestListCmd_BackendError(t *testing.T) {
	e := newEnv(t, true)
	e.svc.ListErr = service.NewError(service.ErrNetwork, "list tasks", "connection refused", nil)

	code, _, stderr := e.run(&commands.ListCmd{})
	if code != exitcode.BackendError {
		t.Errorf("expected exit code %d, got %d", exitcode.BackendError, code)
	}
	if !strings.HasPrefix(stderr, "error: backend error: ") {
		t.Errorf("unexpected stderr %q", stderr)
	}
}

func TestListCmd_ExpiredSession(t *testing.T) {
	e := newEnv(t, true)
	e.svc.ListErr = service.NewError(service.ErrAuth, "list tasks", "invalid token", nil)

	code, _, stderr := e.run(&commands.ListCmd{})
	if code != exitcode.AuthError {
		t.Errorf("expected exit code %d, got %d", exitcode.AuthError, code)
	}
	if !strings.HasPrefix(stderr, "error: auth error: ") {
		t.Errorf("unexpected stderr %q", stderr)
	}
}

func TestAddCmd(t *testing.T) {
	e := newEnv(t, true)

	code, stdout, _ := e.run(&commands.AddCmd{}, "Buy", "milk")
	if code != exitcode.Success || stdout != "ok\n" {
		t.Fatalf("expected ok, got %d %q", code, stdout)
	}
	tasks := e.svc.Tasks()
	if len(tasks) != 1 || tasks[0].Title != "Buy milk" {
		t.Errorf("unexpected remote tasks %+v", tasks)
	}
	if local := e.rt.Tasks.Tasks(); len(local) != 1 || local[0].ID != tasks[0].ID {
		t.Errorf("expected confirmed task locally, got %+v", local)
	}
}

func TestAddCmd_ImageAndLocation(t *testing.T) {
	e := newEnv(t, true)
	img := filepath.Join(t.TempDir(), "receipt.jpg")
	if err := os.WriteFile(img, []byte("jpeg"), 0600); err != nil {
		t.Fatal(err)
	}

	cmd := &commands.AddCmd{}
	cmd.SetImage(img)
	cmd.SetLocation(-33.4489, -70.6693)
	if code, _, stderr := e.run(cmd, "Receipt"); code != exitcode.Success {
		t.Fatalf("expected success, got %d: %s", code, stderr)
	}

	got := e.svc.Tasks()[0]
	if got.PhotoURI != img {
		t.Errorf("expected image ref %q, got %q", img, got.PhotoURI)
	}
	if got.Location == nil || got.Location.Latitude != -33.4489 || got.Location.Longitude != -70.6693 {
		t.Errorf("unexpected location %+v", got.Location)
	}
}

func TestAddCmd_Validation(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		setup   func(*commands.AddCmd)
		wantErr string
	}{
		{"no title", nil, nil, "error: title required\n"},
		{"blank title", []string{"  "}, nil, "error: title required\n"},
		{
			"latitude out of range", []string{"x"},
			func(c *commands.AddCmd) { c.SetLocation(91, 0) },
			"error: latitude out of range: 91\n",
		},
		{
			"longitude out of range", []string{"x"},
			func(c *commands.AddCmd) { c.SetLocation(0, -181) },
			"error: longitude out of range: -181\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, true)
			cmd := &commands.AddCmd{}
			if tt.setup != nil {
				tt.setup(cmd)
			}
			code, _, stderr := e.run(cmd, tt.args...)
			if code != exitcode.UserError {
				t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
			}
			if stderr != tt.wantErr {
				t.Errorf("expected %q, got %q", tt.wantErr, stderr)
			}
			if e.svc.CallCount("CreateTask") != 0 {
				t.Error("expected no remote call")
			}
		})
	}
}

func TestAddCmd_BackendErrorAddsNothing(t *testing.T) {
	e := newEnv(t, true)
	e.svc.CreateErr = service.NewError(service.ErrNetwork, "create task", "timeout", nil)

	code, _, _ := e.run(&commands.AddCmd{}, "Buy milk")
	if code != exitcode.BackendError {
		t.Errorf("expected exit code %d, got %d", exitcode.BackendError, code)
	}
	if n := len(e.rt.Tasks.Tasks()); n != 0 {
		t.Errorf("expected no local task, got %d", n)
	}
}

func TestToggleCmd(t *testing.T) {
	e := newEnv(t, true)
	e.svc.AddTask("Buy milk", false)
	second := e.svc.AddTask("Call mom", false)

	if code, _, stderr := e.run(&commands.ToggleCmd{}, "2"); code != exitcode.Success {
		t.Fatalf("expected success, got %d: %s", code, stderr)
	}
	if !e.svc.Tasks()[1].Completed {
		t.Error("expected second task completed remotely")
	}

	// By id, back to open
	if code, _, _ := e.run(&commands.ToggleCmd{}, second.ID); code != exitcode.Success {
		t.Fatalf("expected success, got %d", code)
	}
	if e.svc.Tasks()[1].Completed {
		t.Error("expected second task open again")
	}
}

func TestToggleCmd_Errors(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantErr  string
	}{
		{"no ref", nil, exitcode.UserError, "error: task reference required\n"},
		{"out of range", []string{"3"}, exitcode.UserError, "error: task number out of range: 3\n"},
		{"zero", []string{"0"}, exitcode.UserError, "error: task number out of range: 0\n"},
		{"extra arg", []string{"1", "2"}, exitcode.UserError, "error: unexpected argument: 2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, true)
			e.svc.AddTask("Buy milk", false)

			code, _, stderr := e.run(&commands.ToggleCmd{}, tt.args...)
			if code != tt.wantCode {
				t.Errorf("expected exit code %d, got %d", tt.wantCode, code)
			}
			if stderr != tt.wantErr {
				t.Errorf("expected %q, got %q", tt.wantErr, stderr)
			}
			if e.svc.CallCount("UpdateTask") != 0 {
				t.Error("expected no update call")
			}
		})
	}
}

func TestToggleCmd_UnknownID(t *testing.T) {
	e := newEnv(t, true)

	code, _, stderr := e.run(&commands.ToggleCmd{}, "id:missing")
	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	if !strings.Contains(stderr, "no task missing") {
		t.Errorf("unexpected stderr %q", stderr)
	}
}

func TestToggleCmd_FailureRestoresServerState(t *testing.T) {
	e := newEnv(t, true)
	e.svc.AddTask("Buy milk", false)
	e.svc.UpdateErr = service.NewError(service.ErrNetwork, "update task", "timeout", nil)

	code, _, _ := e.run(&commands.ToggleCmd{}, "1")
	if code != exitcode.BackendError {
		t.Errorf("expected exit code %d, got %d", exitcode.BackendError, code)
	}
	if local := e.rt.Tasks.Tasks(); local[0].IsCompleted {
		t.Error("expected reload to restore the server's state")
	}
}

func TestRmCmd(t *testing.T) {
	e := newEnv(t, true)
	e.svc.AddTask("Buy milk", false)
	keep := e.svc.AddTask("Call mom", false)

	if code, stdout, _ := e.run(&commands.RmCmd{}, "1"); code != exitcode.Success || stdout != "ok\n" {
		t.Fatalf("expected ok, got %d %q", code, stdout)
	}
	remote := e.svc.Tasks()
	if len(remote) != 1 || remote[0].ID != keep.ID {
		t.Errorf("unexpected remote tasks %+v", remote)
	}
}

func TestRmCmd_UnknownIDStillDeletesRemotely(t *testing.T) {
	e := newEnv(t, true)

	if code, _, _ := e.run(&commands.RmCmd{}, "gone"); code != exitcode.Success {
		t.Errorf("expected success, got %d", code)
	}
	if e.svc.CallCount("DeleteTask") != 1 {
		t.Error("expected one delete call")
	}
}

func TestRmCmd_Quiet(t *testing.T) {
	e := newEnv(t, true)
	e.svc.AddTask("Buy milk", false)
	e.cfg.Quiet = true

	if _, stdout, _ := e.run(&commands.RmCmd{}, "1"); stdout != "" {
		t.Errorf("expected no output, got %q", stdout)
	}
}

func TestLoginCmd(t *testing.T) {
	e := newEnv(t, false)

	cmd := &commands.LoginCmd{}
	cmd.SetPassword("pw")
	code, stdout, _ := e.run(cmd, "ana@example.com")
	if code != exitcode.Success || stdout != "logged in as ana@example.com\n" {
		t.Fatalf("unexpected result %d %q", code, stdout)
	}
	if tok, _, _ := e.store.Get(session.KeyToken); tok != "token-ana@example.com" {
		t.Errorf("expected token persisted, got %q", tok)
	}
}

func TestLoginCmd_PasswordFromEnv(t *testing.T) {
	e := newEnv(t, false)
	t.Setenv(commands.PasswordEnv, "pw")

	if code, _, stderr := e.run(&commands.LoginCmd{}, "ana@example.com"); code != exitcode.Success {
		t.Fatalf("expected success, got %d: %s", code, stderr)
	}
}

func TestLoginCmd_AlreadyLoggedIn(t *testing.T) {
	e := newEnv(t, true)

	cmd := &commands.LoginCmd{}
	cmd.SetPassword("pw")
	code, stdout, _ := e.run(cmd, "ANA@example.com")
	if code != exitcode.Success || stdout != "already logged in\n" {
		t.Errorf("unexpected result %d %q", code, stdout)
	}
	if e.svc.CallCount("Login") != 0 {
		t.Error("expected no login call")
	}
}

func TestLoginCmd_Errors(t *testing.T) {
	t.Setenv(commands.PasswordEnv, "")

	tests := []struct {
		name     string
		password string
		args     []string
		wantCode int
		wantErr  string
	}{
		{"no email", "pw", nil, exitcode.UserError, "error: email required\n"},
		{"no password", "", []string{"ana@example.com"}, exitcode.UserError, "error: password required (--password or TODO_PASSWORD)\n"},
		{"wrong password", "nope", []string{"ana@example.com"}, exitcode.AuthError, "error: auth error: login: invalid credentials\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, false)
			cmd := &commands.LoginCmd{}
			cmd.SetPassword(tt.password)

			code, _, stderr := e.run(cmd, tt.args...)
			if code != tt.wantCode {
				t.Errorf("expected exit code %d, got %d", tt.wantCode, code)
			}
			if stderr != tt.wantErr {
				t.Errorf("expected %q, got %q", tt.wantErr, stderr)
			}
			if e.rt.Session.State() != session.StateAnonymous {
				t.Errorf("expected anonymous, got %s", e.rt.Session.State())
			}
		})
	}
}

func TestLoginCmd_StorageFailure(t *testing.T) {
	e := newEnv(t, false)
	e.store.SetErr = errors.New("read-only filesystem")

	cmd := &commands.LoginCmd{}
	cmd.SetPassword("pw")
	code, _, stderr := e.run(cmd, "ana@example.com")
	if code != exitcode.AuthError {
		t.Errorf("expected exit code %d, got %d", exitcode.AuthError, code)
	}
	if !strings.HasPrefix(stderr, "error: storage error: ") {
		t.Errorf("unexpected stderr %q", stderr)
	}
}

func TestRegisterCmd(t *testing.T) {
	e := newEnv(t, false)

	cmd := &commands.RegisterCmd{}
	cmd.SetPassword("s3cret")
	if code, stdout, _ := e.run(cmd, "new@example.com"); code != exitcode.Success || stdout != "logged in as new@example.com\n" {
		t.Fatalf("unexpected result %d %q", code, stdout)
	}
	if s, ok := e.rt.Session.Current(); !ok || s.Identity != "new@example.com" {
		t.Errorf("expected new session, got %+v", s)
	}
}

func TestLogoutCmd(t *testing.T) {
	e := newEnv(t, true)

	if code, stdout, _ := e.run(&commands.LogoutCmd{}); code != exitcode.Success || stdout != "ok\n" {
		t.Fatalf("unexpected result %d %q", code, stdout)
	}
	if e.store.Len() != 0 {
		t.Errorf("expected empty store, got %d keys", e.store.Len())
	}

	if _, stdout, _ := e.run(&commands.LogoutCmd{}); stdout != "not logged in\n" {
		t.Errorf("expected 'not logged in', got %q", stdout)
	}
}

func TestLogoutCmd_StorageFailure(t *testing.T) {
	e := newEnv(t, true)
	e.store.RemoveErr = errors.New("read-only filesystem")

	code, _, stderr := e.run(&commands.LogoutCmd{})
	if code != exitcode.AuthError {
		t.Errorf("expected exit code %d, got %d", exitcode.AuthError, code)
	}
	if !strings.HasPrefix(stderr, "error: storage error: ") {
		t.Errorf("unexpected stderr %q", stderr)
	}
	if _, ok := e.rt.Session.Current(); ok {
		t.Error("expected session cleared in memory")
	}
}

func TestWhoamiCmd(t *testing.T) {
	e := newEnv(t, true)
	if _, stdout, _ := e.run(&commands.WhoamiCmd{}); stdout != "ana@example.com\n" {
		t.Errorf("unexpected output %q", stdout)
	}

	anon := newEnv(t, false)
	code, stdout, _ := anon.run(&commands.WhoamiCmd{})
	if code != exitcode.AuthError || stdout != "not logged in\n" {
		t.Errorf("unexpected result %d %q", code, stdout)
	}
}

func TestParseTaskRef(t *testing.T) {
	tests := []struct {
		args    []string
		want    commands.TaskRef
		wantErr string
	}{
		{[]string{"1"}, commands.TaskRef{Num: 1}, ""},
		{[]string{"42"}, commands.TaskRef{Num: 42}, ""},
		{[]string{"abc-123"}, commands.TaskRef{ID: "abc-123"}, ""},
		{[]string{"id:7"}, commands.TaskRef{ID: "7"}, ""},
		{[]string{" 3 "}, commands.TaskRef{Num: 3}, ""},
		{nil, commands.TaskRef{}, "task reference required"},
		{[]string{""}, commands.TaskRef{}, "task reference required"},
		{[]string{"id:"}, commands.TaskRef{}, "invalid task reference: id:"},
		{[]string{"1", "x"}, commands.TaskRef{}, "unexpected argument: x"},
	}

	for _, tt := range tests {
		got, err := commands.ParseTaskRef(tt.args)
		if tt.wantErr != "" {
			if err == nil || err.Error() != tt.wantErr {
				t.Errorf("ParseTaskRef(%q): expected error %q, got %v", tt.args, tt.wantErr, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTaskRef(%q): unexpected error %v", tt.args, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTaskRef(%q) = %+v, want %+v", tt.args, got, tt.want)
		}
	}
}

func TestTaskRef_Resolve(t *testing.T) {
	tasks := []tasksync.Task{{ID: "a"}, {ID: "b"}}

	if id, err := (commands.TaskRef{Num: 2}).Resolve(tasks); err != nil || id != "b" {
		t.Errorf("expected b, got %q %v", id, err)
	}
	if id, err := (commands.TaskRef{ID: "zzz"}).Resolve(tasks); err != nil || id != "zzz" {
		t.Errorf("expected id passthrough, got %q %v", id, err)
	}
	if _, err := (commands.TaskRef{Num: 3}).Resolve(tasks); err == nil {
		t.Error("expected out of range error")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, exitcode.Success},
		{service.Validation("x", "bad"), exitcode.UserError},
		{service.NewError(service.ErrNotFound, "x", "gone", nil), exitcode.UserError},
		{service.NewError(service.ErrAuth, "x", "denied", nil), exitcode.AuthError},
		{service.Storage("x", errors.New("io")), exitcode.AuthError},
		{service.NewError(service.ErrNetwork, "x", "down", nil), exitcode.BackendError},
		{errors.New("unclassified"), exitcode.BackendError},
	}
	for _, tt := range tests {
		if got := commands.ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestRegistry(t *testing.T) {
	r := commands.DefaultRegistry
	for _, name := range []string{"add", "create", "toggle", "done", "rm", "delete", "list", "ls", "login", "register", "logout", "whoami", "help", "version"} {
		if _, ok := r.Find(name); !ok {
			t.Errorf("expected command %q registered", name)
		}
	}
	if cmd, ok := r.Find("DONE"); !ok || cmd.Name() != "toggle" {
		t.Error("expected case-insensitive alias lookup")
	}
	if err := r.Register(&commands.ToggleCmd{}); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}
