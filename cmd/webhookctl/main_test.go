package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/asperpharma/webhook-service/internal/auth"
	"github.com/asperpharma/webhook-service/internal/route"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSign_PrintsHexSignature(t *testing.T) {
	body := []byte(`{"title":"x"}`)
	path := filepath.Join(t.TempDir(), "body.json")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "sign", "--secret", "s3cret", "--file", path)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if got, want := strings.TrimSpace(out), auth.Sign(body, "s3cret"); got != want {
		t.Fatalf("signature = %q, want %q", got, want)
	}
}

func TestSign_RequiresSecret(t *testing.T) {
	if _, err := run(t, "sign", "--file", "missing.json"); err == nil {
		t.Fatal("expected an error without --secret")
	}
}

func TestSendDatadog_SignsBody(t *testing.T) {
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("DD-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"status":"success"}`)
	}))
	defer srv.Close()

	out, err := run(t, "send", "datadog", "--url", srv.URL, "--secret", "dd")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if !strings.Contains(out, "Status: 200") {
		t.Fatalf("output = %q", out)
	}
	if !auth.Verify(gotBody, gotSig, "dd") {
		t.Fatalf("signature %q does not verify", gotSig)
	}
}

func TestSendDatadog_InvalidSignature(t *testing.T) {
	var gotBody []byte
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("DD-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	out, err := run(t, "send", "datadog", "--url", srv.URL, "--secret", "dd", "--invalid-signature")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if !strings.Contains(out, "Status: 401") {
		t.Fatalf("output = %q", out)
	}
	if gotSig == "" || auth.Verify(gotBody, gotSig, "dd") {
		t.Fatalf("expected a wrong signature, got %q", gotSig)
	}
}

func TestSendProcess_SetsRouteAndShape(t *testing.T) {
	var gotRoute string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRoute = r.URL.Query().Get("route")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = io.WriteString(w, `{"reply":"hi","logged":true}`)
	}))
	defer srv.Close()

	_, err := run(t, "send", "process", "--url", srv.URL+"/process-webhook",
		"--route", "manychat", "--customer", "sub-1", "--message", "hello", "--event-id", "e-1")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if gotRoute != "manychat" {
		t.Fatalf("route = %q", gotRoute)
	}

	ex := route.ExtractorFor(route.ManyChat)
	if id, ok := ex.CustomerID(gotBody); !ok || id != "sub-1" {
		t.Fatalf("customer = %q, %v", id, ok)
	}
	if msg, ok := ex.Message(gotBody); !ok || msg != "hello" {
		t.Fatalf("message = %q, %v", msg, ok)
	}
	if gotBody["event_id"] != "e-1" {
		t.Fatalf("event_id = %v", gotBody["event_id"])
	}
}

func TestSampleMessage_MatchesRouteExtractors(t *testing.T) {
	for _, r := range []route.Route{route.Gorgias, route.ManyChat, route.Generic} {
		raw, err := sampleMessage(string(r), "c-7", "dry skin", "")
		if err != nil {
			t.Fatalf("%s: %v", r, err)
		}
		var body any
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatal(err)
		}
		ex := route.ExtractorFor(r)
		if id, ok := ex.CustomerID(body); !ok || id != "c-7" {
			t.Fatalf("%s customer = %q, %v", r, id, ok)
		}
		if msg, ok := ex.Message(body); !ok || msg != "dry skin" {
			t.Fatalf("%s message = %q, %v", r, msg, ok)
		}
	}
}

func TestSampleDatadogAlert_CarriesTimestamp(t *testing.T) {
	now := time.Unix(1767225600, 0)
	var m map[string]any
	if err := json.Unmarshal(sampleDatadogAlert(now), &m); err != nil {
		t.Fatal(err)
	}
	if m["date_happened"] != float64(1767225600) {
		t.Fatalf("date_happened = %v", m["date_happened"])
	}
}
