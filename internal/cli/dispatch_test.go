package cli_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"golang.org/x/oauth2"

	"todo/internal/backend/rest"
	"todo/internal/cli"
	"todo/internal/commands"
	"todo/internal/config"
	"todo/internal/exitcode"
	"todo/internal/kvstore"
	"todo/internal/service"
	"todo/internal/testutil"
)

// testFactory creates a service factory that returns the given FakeService.
func testFactory(svc *testutil.FakeService) cli.ServiceFactory {
	return func(ctx context.Context, cfg *config.Config, tokens oauth2.TokenSource, logger *slog.Logger) (service.Service, error) {
		return svc, nil
	}
}

// restFactory creates a service factory speaking HTTP to cfg.APIURL.
func restFactory() cli.ServiceFactory {
	return func(ctx context.Context, cfg *config.Config, tokens oauth2.TokenSource, logger *slog.Logger) (service.Service, error) {
		return rest.New(cfg.APIURL, tokens, rest.WithLogger(logger)), nil
	}
}

type result struct {
	code   int
	stdout string
	stderr string
}

func run(t *testing.T, d *cli.Dispatcher, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := d.Run(context.Background(), args, &stdout, &stderr)
	return result{code, stdout.String(), stderr.String()}
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	d := cli.NewDispatcher(commands.DefaultRegistry, testFactory(testutil.NewFakeService()))

	r := run(t, d, "unknowncmd")
	if r.code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, r.code)
	}
	expected := "error: unknown command: unknowncmd\n"
	if r.stderr != expected {
		t.Errorf("expected %q, got %q", expected, r.stderr)
	}
}

func TestDispatcher_FlagBeforeCommand(t *testing.T) {
	d := cli.NewDispatcher(commands.DefaultRegistry, testFactory(testutil.NewFakeService()))

	r := run(t, d, "--quiet")
	if r.code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, r.code)
	}
	expected := "error: unknown command: --quiet\n"
	if r.stderr != expected {
		t.Errorf("expected %q, got %q", expected, r.stderr)
	}
}

func TestDispatcher_HelpCommand(t *testing.T) {
	d := cli.NewDispatcher(commands.DefaultRegistry, nil)

	r := run(t, d, "help", "--config", t.TempDir())
	if r.code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, r.code)
	}
	if r.stderr != "" {
		t.Errorf("expected no stderr, got %q", r.stderr)
	}
	for _, want := range []string{"Usage:", "todo add", "todo toggle <ref>", "todo login"} {
		if !strings.Contains(r.stdout, want) {
			t.Errorf("expected help output to contain %q", want)
		}
	}
}

func TestDispatcher_VersionCommand(t *testing.T) {
	d := cli.NewDispatcher(commands.DefaultRegistry, nil)

	r := run(t, d, "version", "--config", t.TempDir())
	if r.code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, r.code)
	}
	if r.stdout != "todo 0.1.0\n" {
		t.Errorf("expected 'todo 0.1.0\\n', got %q", r.stdout)
	}
}

func TestDispatcher_UnknownFlag(t *testing.T) {
	d := cli.NewDispatcher(commands.DefaultRegistry, nil)

	r := run(t, d, "help", "--unknown")
	if r.code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, r.code)
	}
	expected := "error: unknown flag: -unknown\n"
	if r.stderr != expected {
		t.Errorf("expected %q, got %q", expected, r.stderr)
	}
}

func TestDispatcher_FlagNeedsArgument(t *testing.T) {
	d := cli.NewDispatcher(commands.DefaultRegistry, nil)

	r := run(t, d, "login", "--password")
	if r.code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, r.code)
	}
	expected := "error: flag needs an argument: -password\n"
	if r.stderr != expected {
		t.Errorf("expected %q, got %q", expected, r.stderr)
	}
}

func TestDispatcher_NotLoggedIn(t *testing.T) {
	svc := testutil.NewFakeService()
	d := cli.NewDispatcher(commands.DefaultRegistry, testFactory(svc))

	r := run(t, d, "list", "--config", t.TempDir())
	if r.code != exitcode.AuthError {
		t.Errorf("expected exit code %d, got %d", exitcode.AuthError, r.code)
	}
	if r.stderr != "error: not logged in (run: todo login)\n" {
		t.Errorf("unexpected stderr %q", r.stderr)
	}
	if len(svc.Calls()) != 0 {
		t.Errorf("expected no backend calls, got %v", svc.Calls())
	}
}

func TestDispatcher_NoArgsListsTasks(t *testing.T) {
	svc := testutil.NewFakeService()
	svc.AddTask("Buy milk", false)
	svc.AddTask("Call mom", true)

	store := kvstore.NewMemStore()
	store.Set("auth_token", "tok")
	store.Set("auth_user", "ana@example.com")
	d := cli.NewDispatcher(commands.DefaultRegistry, testFactory(svc)).
		WithStore(func(*config.Config) kvstore.Store { return store })

	r := run(t, d)
	if r.code != exitcode.Success {
		t.Fatalf("expected success, got %d: %s", r.code, r.stderr)
	}
	want := "   1  [ ] Buy milk\n   2  [x] Call mom\n"
	if r.stdout != want {
		t.Errorf("expected %q, got %q", want, r.stdout)
	}
}

func TestDispatcher_UnreadableSessionStore(t *testing.T) {
	store := kvstore.NewMemStore()
	store.GetErr = errTest
	d := cli.NewDispatcher(commands.DefaultRegistry, testFactory(testutil.NewFakeService())).
		WithStore(func(*config.Config) kvstore.Store { return store })

	r := run(t, d, "list")
	if r.code != exitcode.AuthError {
		t.Errorf("expected exit code %d, got %d", exitcode.AuthError, r.code)
	}
	if !strings.Contains(r.stderr, "could not restore session") {
		t.Errorf("expected a warning about the session store, got %q", r.stderr)
	}
}

var errTest = errors.New("disk gone")

// TestDispatcher_EndToEnd drives the CLI against a fake HTTP backend through
// the REST client and the file session store.
func TestDispatcher_EndToEnd(t *testing.T) {
	srv := testutil.NewFakeServer()
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	d := cli.NewDispatcher(commands.DefaultRegistry, restFactory())
	common := []string{"--config", dir, "--api", srv.URL}
	step := func(name string, args ...string) result {
		t.Helper()
		full := append([]string{name}, common...)
		return run(t, d, append(full, args...)...)
	}

	r := step("register", "--password", "s3cret", "ana@example.com")
	if r.code != exitcode.Success || r.stdout != "logged in as ana@example.com\n" {
		t.Fatalf("register: code=%d stdout=%q stderr=%q", r.code, r.stdout, r.stderr)
	}

	r = step("whoami")
	if r.stdout != "ana@example.com\n" {
		t.Errorf("whoami: got %q", r.stdout)
	}

	r = step("list")
	if r.code != exitcode.Success || r.stdout != "no tasks found\n" {
		t.Errorf("empty list: code=%d stdout=%q", r.code, r.stdout)
	}

	for _, title := range []string{"Buy milk", "Call mom"} {
		if r = step("add", title); r.code != exitcode.Success || r.stdout != "ok\n" {
			t.Fatalf("add %q: code=%d stderr=%q", title, r.code, r.stderr)
		}
	}
	r = step("add", "--lat", "-33.45", "--lon", "-70.66", "Meet", "Bob")
	if r.code != exitcode.Success {
		t.Fatalf("add with location: code=%d stderr=%q", r.code, r.stderr)
	}

	if r = step("done", "2"); r.code != exitcode.Success {
		t.Fatalf("toggle: code=%d stderr=%q", r.code, r.stderr)
	}
	if r = step("rm", "1"); r.code != exitcode.Success {
		t.Fatalf("rm: code=%d stderr=%q", r.code, r.stderr)
	}

	r = step("list")
	testutil.GoldenString(t, "end_to_end_list", r.stdout)

	remote := srv.Tasks("ana@example.com")
	if len(remote) != 2 || remote[0].Title != "Call mom" || !remote[0].Completed {
		t.Errorf("unexpected server state: %+v", remote)
	}

	if r = step("logout"); r.stdout != "ok\n" {
		t.Errorf("logout: got %q", r.stdout)
	}
	r = step("list")
	if r.code != exitcode.AuthError {
		t.Errorf("expected auth error after logout, got %d", r.code)
	}
}

func TestDispatcher_LoginWrongPassword(t *testing.T) {
	srv := testutil.NewFakeServer()
	t.Cleanup(srv.Close)
	srv.AddUser("ana@example.com", "right")

	d := cli.NewDispatcher(commands.DefaultRegistry, restFactory())
	r := run(t, d, "login", "--password", "wrong", "--config", t.TempDir(), "--api", srv.URL, "ana@example.com")

	if r.code != exitcode.AuthError {
		t.Errorf("expected exit code %d, got %d", exitcode.AuthError, r.code)
	}
	if !strings.Contains(r.stderr, "error: auth error:") {
		t.Errorf("expected auth error message, got %q", r.stderr)
	}
}

func TestDispatcher_ToggleOutOfRange(t *testing.T) {
	srv := testutil.NewFakeServer()
	t.Cleanup(srv.Close)
	srv.AddUser("ana@example.com", "pw")
	srv.AddTask("ana@example.com", "Only task", false)

	dir := t.TempDir()
	d := cli.NewDispatcher(commands.DefaultRegistry, restFactory())
	if r := run(t, d, "login", "-p", "pw", "--config", dir, "--api", srv.URL, "ana@example.com"); r.code != exitcode.Success {
		t.Fatalf("login: code=%d stderr=%q", r.code, r.stderr)
	}

	r := run(t, d, "toggle", "--config", dir, "--api", srv.URL, "5")
	if r.code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, r.code)
	}
	if r.stderr != "error: task number out of range: 5\n" {
		t.Errorf("unexpected stderr %q", r.stderr)
	}
}

func TestDispatcher_ServerFailureReloads(t *testing.T) {
	srv := testutil.NewFakeServer()
	t.Cleanup(srv.Close)
	srv.AddUser("ana@example.com", "pw")
	srv.AddTask("ana@example.com", "Keep me", false)

	dir := t.TempDir()
	d := cli.NewDispatcher(commands.DefaultRegistry, restFactory())
	run(t, d, "login", "-p", "pw", "--config", dir, "--api", srv.URL, "ana@example.com")

	srv.Fail("DELETE", "/todos/", 500)
	r := run(t, d, "rm", "--config", dir, "--api", srv.URL, "1")
	if r.code != exitcode.BackendError {
		t.Errorf("expected exit code %d, got %d", exitcode.BackendError, r.code)
	}
	if !strings.Contains(r.stderr, "error: backend error:") {
		t.Errorf("expected backend error, got %q", r.stderr)
	}

	calls := srv.Calls()
	if n := len(calls); n < 2 || calls[n-1] != "GET /todos" || calls[n-2] != "DELETE /todos/"+srv.Tasks("ana@example.com")[0].ID {
		t.Errorf("expected delete followed by reload, got %v", calls)
	}
}
