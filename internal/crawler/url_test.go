package crawler

import (
	"errors"
	"testing"
)

func TestParseItem(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		raw      string
		wantHost string
		wantErr  bool
	}{
		{name: "http", raw: "http://a.example", wantHost: "a.example"},
		{name: "https with port", raw: "https://a.example:8443/path", wantHost: "a.example"},
		{name: "surrounding space", raw: "  http://b.example/  ", wantHost: "b.example"},
		{name: "ip literal", raw: "http://127.0.0.1:8080", wantHost: "127.0.0.1"},
		{name: "not a url", raw: "not a url", wantErr: true},
		{name: "blank", raw: "", wantErr: true},
		{name: "missing host", raw: "http://", wantErr: true},
		{name: "bad escape", raw: "http://%zz", wantErr: true},
		{name: "relative", raw: "/just/a/path", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			u, err := ParseItem(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedURL) {
					t.Fatalf("ParseItem(%q) error = %v, want ErrMalformedURL", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseItem(%q) error = %v", tt.raw, err)
			}
			if got := u.Hostname(); got != tt.wantHost {
				t.Fatalf("ParseItem(%q) host = %q, want %q", tt.raw, got, tt.wantHost)
			}
		})
	}
}

func TestSite(t *testing.T) {
	t.Parallel()

	if got := Site("https://Example.com/path"); got != "example.com" {
		t.Fatalf("Site() = %q, want example.com", got)
	}
	if got := Site("not a url"); got != "unknown" {
		t.Fatalf("Site() = %q, want unknown", got)
	}
}

func TestProbeResultOK(t *testing.T) {
	t.Parallel()

	if !(ProbeResult{StatusCode: 204}).OK() {
		t.Fatal("expected 204 to be OK")
	}
	if (ProbeResult{StatusCode: 301}).OK() {
		t.Fatal("expected 301 to not be OK")
	}
}
