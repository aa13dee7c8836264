package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                    "/",
		"/metrics":                            "/metrics",
		"/v1/applications":                    "/v1/applications",
		"/v1/applications/01J5ABC":            "/v1/applications/:id",
		"/v1/applications/01J5ABC/transition": "/v1/applications/:id/transition",
		"/v1/applications/01J5ABC/reviews":    "/v1/applications/:id/reviews",
		"/v1/applications/abc/extra":          "/v1/applications/abc/extra",
		"/v1/notifications":                   "/v1/notifications",
		"/v1/notifications/01J5N/read":        "/v1/notifications/:id/read",
		"/v1/notifications?limit=10":          "/v1/notifications",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
