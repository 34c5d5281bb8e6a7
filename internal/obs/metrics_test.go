package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                   "/",
		"/metrics":                           "/metrics",
		"/v1/auth/login":                     "/v1/auth/login",
		"/v1/auth/register":                  "/v1/auth/register",
		"/v1/admin/allowlist":                "/v1/admin/allowlist",
		"/v1/admin/allowlist?limit=10":       "/v1/admin/allowlist",
		"/v1/admin/allowlist/abc":            "/v1/admin/allowlist/:id",
		"/v1/admin/allowlist/abc/deactivate": "/v1/admin/allowlist/:id/deactivate",
		"/v1/admin/allowlist/abc/activate":   "/v1/admin/allowlist/:id/activate",
		"/v1/admin/allowlist/abc/other":      "/v1/admin/allowlist/abc/other",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
