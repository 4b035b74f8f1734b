package value_object_test

import (
	"errors"
	"strings"
	"testing"

	"ikedadada/go-onehop/internal/domain/apperror"
	vo "ikedadada/go-onehop/internal/domain/value_object"
)

func TestParseFingerprint_Table(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		expectsErr bool
	}{
		{"40 hex upper", "AAAABBBBCCCCDDDDEEEEFFFF00001111AAAABBBB", false},
		{"40 hex lower", "c3dfb7bd40b072eb6d46578f1be021fdd9d60713", false},
		{"spaced groups", "AAAA BBBB CCCC DDDD EEEE FFFF 0000 1111 AAAA BBBB", false},
		{"tabs and newline", "AAAABBBBCCCCDDDD\tEEEEFFFF00001111\nAAAABBBB", false},
		{"too short", "AAAA", true},
		{"19 bytes", strings.Repeat("AB", 19), true},
		{"21 bytes", strings.Repeat("AB", 21), true},
		{"odd length", strings.Repeat("A", 39), true},
		{"not hex", strings.Repeat("ZZ", 20), true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := vo.ParseFingerprint(tt.input)
			if tt.expectsErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				if !errors.Is(err, apperror.InvalidFingerprint) {
					t.Fatalf("expected InvalidFingerprint, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", tt.input, err)
			}
		})
	}
}

func TestParseFingerprint_Idempotent(t *testing.T) {
	inputs := []string{
		"AAAABBBBCCCCDDDDEEEEFFFF00001111AAAABBBB",
		"c3df b7bd 40b0 72eb 6d46 578f 1be0 21fd d9d6 0713",
	}
	for _, in := range inputs {
		first, err := vo.ParseFingerprint(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		second, err := vo.ParseFingerprint(first.String())
		if err != nil {
			t.Fatalf("reparse %q: %v", first.String(), err)
		}
		if !first.Equal(second) {
			t.Errorf("round trip changed identity: %s != %s", first, second)
		}
		if len(first.String()) != 40 {
			t.Errorf("String() length = %d", len(first.String()))
		}
	}
}

func TestRelayIdentityFromBytes(t *testing.T) {
	b := make([]byte, vo.RelayIdentityLen)
	b[0] = 0xC3
	id, err := vo.RelayIdentityFromBytes(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.IsZero() {
		t.Errorf("identity should not be zero")
	}
	b[0] = 0
	if id.Bytes()[0] != 0xC3 {
		t.Errorf("identity must not alias the input slice")
	}
	if _, err := vo.RelayIdentityFromBytes(b[:19]); !errors.Is(err, apperror.InvalidFingerprint) {
		t.Errorf("expected InvalidFingerprint for 19 bytes, got %v", err)
	}
}
