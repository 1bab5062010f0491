package protect

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientAddress(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"forwarded for first entry", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "203.0.113.7"},
		{"forwarded for single", map[string]string{"X-Forwarded-For": " 198.51.100.2 "}, "198.51.100.2"},
		{"real ip fallback", map[string]string{"X-Real-IP": "192.0.2.9"}, "192.0.2.9"},
		{"forwarded for wins over real ip", map[string]string{"X-Forwarded-For": "203.0.113.7", "X-Real-IP": "192.0.2.9"}, "203.0.113.7"},
		{"empty forwarded for entry", map[string]string{"X-Forwarded-For": " , 10.0.0.1", "X-Real-IP": "192.0.2.9"}, "192.0.2.9"},
		{"no headers", nil, UnknownAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", http.NoBody)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := ClientAddress(req); got != tt.want {
				t.Errorf("ClientAddress() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIdentity_StableForSameAddress(t *testing.T) {
	a := Identity("203.0.113.7", "")
	b := Identity("203.0.113.7", "")
	if a != b {
		t.Errorf("identities differ for same address: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "ip:") {
		t.Errorf("identity = %q, want ip: prefix", a)
	}
	if strings.Contains(a, "203.0.113.7") {
		t.Error("identity must not contain the raw address")
	}
	if Identity("203.0.113.8", "") == a {
		t.Error("different addresses produced the same identity")
	}
}

func TestIdentity_PrefersUser(t *testing.T) {
	if got := Identity("203.0.113.7", "u-42"); got != "user:u-42" {
		t.Errorf("Identity() = %q, want user:u-42", got)
	}
}
