package commands

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSecretCommand(t *testing.T) {
	out, err := run(t, "secret", "-n", "16")
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(out); len(got) != 16 {
		t.Fatalf("expected a 16 character secret, got %q", got)
	}
}

func TestSendCommand(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/plugins/sendmessage/sendmessage" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		r.ParseForm()
		gotForm = map[string]string{}
		for k := range r.PostForm {
			gotForm[k] = r.PostForm.Get(k)
		}
		w.Header().Set("Content-Type", "text/json")
		if gotForm["secret"] != "s1" {
			w.Write([]byte(`{"message":"unauthorised","code":401000}`))
			return
		}
		w.Write([]byte(`{"message":"OK","code":0}`))
	}))
	defer srv.Close()

	out, err := run(t, "send", "--relay", srv.URL, "-s", "s1", "alice", "bob", "hi")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "sent") {
		t.Fatalf("unexpected output %q", out)
	}
	if gotForm["fromUserName"] != "alice" || gotForm["toUserName"] != "bob" || gotForm["content"] != "hi" || gotForm["fromResource"] != "relayctl" {
		t.Fatalf("unexpected form %v", gotForm)
	}

	if _, err := run(t, "send", "--relay", srv.URL, "-s", "wrong", "alice", "bob", "hi"); err == nil || !strings.Contains(err.Error(), "401000") {
		t.Fatalf("expected refusal, got %v", err)
	}
}

func TestSendMessageHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	if _, err := sendMessage(context.Background(), srv.Client(), srv.URL+"/", nil); err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
}

func TestUserCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "users.db")

	if _, err := run(t, "user", "add", "--sqlite-path", db, "--name", "Alice", "Alice"); err != nil {
		t.Fatal(err)
	}
	out, err := run(t, "user", "show", "--sqlite-path", db, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "alice\t") || !strings.Contains(out, `"Alice"`) {
		t.Fatalf("unexpected output %q", out)
	}

	if _, err := run(t, "user", "add", "--sqlite-path", db, "alice"); err == nil {
		t.Fatal("expected duplicate user to fail")
	}

	if _, err := run(t, "user", "add", "--sqlite-path", db, "--unconfirmed", "carol"); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "user", "show", "--sqlite-path", db, "carol"); err == nil {
		t.Fatal("unconfirmed user should not resolve")
	}
}
