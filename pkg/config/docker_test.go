package config

import (
	"testing"
)

func TestResolveHostForDocker_NonLoopbackUnchanged(t *testing.T) {
	tests := []string{"mydb.example.com", "192.168.1.100", "host.docker.internal"}

	for _, host := range tests {
		if got := ResolveHostForDocker(host); got != host {
			t.Errorf("ResolveHostForDocker(%q) = %q, want unchanged", host, got)
		}
	}
}

func TestResolveHostForDocker_LocalhostVariants(t *testing.T) {
	for _, host := range []string{"localhost", "127.0.0.1"} {
		result := ResolveHostForDocker(host)
		if IsRunningInDocker() {
			if result != "host.docker.internal" {
				t.Errorf("ResolveHostForDocker(%q) in Docker = %q, want host.docker.internal", host, result)
			}
		} else if result != host {
			t.Errorf("ResolveHostForDocker(%q) not in Docker = %q, want %q", host, result, host)
		}
	}
}

func TestRewriteURLHost(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"http://localhost:9000", "http://host.docker.internal:9000"},
		{"http://127.0.0.1", "http://host.docker.internal"},
		{"https://s3.eu-west-2.amazonaws.com", "https://s3.eu-west-2.amazonaws.com"},
		{"not a url", "not a url"},
	}

	for _, tt := range tests {
		if got := rewriteURLHost(tt.input); got != tt.expected {
			t.Errorf("rewriteURLHost(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestResolveURLForDocker_Empty(t *testing.T) {
	if got := ResolveURLForDocker(""); got != "" {
		t.Errorf("ResolveURLForDocker(\"\") = %q, want empty", got)
	}
}
