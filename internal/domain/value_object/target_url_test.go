package value_object_test

import (
	"errors"
	"testing"

	"ikedadada/go-onehop/internal/domain/apperror"
	vo "ikedadada/go-onehop/internal/domain/value_object"
)

func TestParseTargetURL_Table(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantHost string
		wantPath string
		err      bool
	}{
		{"host and nested path", "http://host/a/b", "host", "/a/b", false},
		{"no trailing slash", "http://host", "host", "/", false},
		{"trailing slash", "https://example.com/", "example.com", "/", false},
		{"scheme ignored", "gopher://example.invalid/foo", "example.invalid", "/foo", false},
		{"query kept in path", "http://h/p?q=1", "h", "/p?q=1", false},
		{"no scheme separator", "example.com/path", "", "", true},
		{"single slash scheme", "http:/example.com", "", "", true},
		{"empty host", "http:///path", "", "", true},
		{"empty", "", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, path, err := vo.ParseTargetURL(tt.url)
			if tt.err {
				if !errors.Is(err, apperror.InvalidURL) {
					t.Fatalf("expected InvalidURL, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if host != tt.wantHost || path != tt.wantPath {
				t.Errorf("got (%q, %q), want (%q, %q)", host, path, tt.wantHost, tt.wantPath)
			}
		})
	}
}
