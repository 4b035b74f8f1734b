package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"ikedadada/go-onehop/internal/domain/apperror"
)

func run(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, context.Background(), "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "onehop-relay version ") {
		t.Fatalf("output = %q", out)
	}
}

func TestServeCmd_InvalidFingerprint(t *testing.T) {
	_, err := run(t, context.Background(), "serve", "--listen", "127.0.0.1:0", "--fingerprint", "XYZ")
	if !errors.Is(err, apperror.InvalidFingerprint) {
		t.Fatalf("err = %v, want InvalidFingerprint", err)
	}
}

func TestServeCmd_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := run(t, ctx, "serve", "--listen", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	fp := strings.TrimSpace(strings.TrimPrefix(out, "fingerprint: "))
	if len(fp) != 2*20 {
		t.Fatalf("printed fingerprint = %q", fp)
	}
}

func TestRelayIdentity(t *testing.T) {
	a, err := relayIdentity("")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := relayIdentity("")
	if a.IsZero() || a.Equal(b) {
		t.Fatalf("random identities should be distinct and non-zero: %s %s", a, b)
	}
	want := "AABBCCDDEEFF00112233445566778899AABBCCDD"
	got, err := relayIdentity(strings.ToLower(want))
	if err != nil || got.String() != want {
		t.Fatalf("relayIdentity = %s, %v", got, err)
	}
}
