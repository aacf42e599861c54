package urlutil

import "testing"

func TestValidate(t *testing.T) {
	valid := []string{
		"http://example.com",
		"https://example.com/path",
		"http://localhost:3000",
	}
	for _, u := range valid {
		if err := ValidateURL(u); err != nil {
			t.Fatalf("expected valid, got error: %v", err)
		}
	}

	invalid := []string{"ftp://example.com", "//example.com", "http:///", "localhost:3000"}
	for _, u := range invalid {
		if err := ValidateURL(u); err == nil {
			t.Fatalf("expected invalid for %s", u)
		}
	}
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		base, href, want string
	}{
		{"https://www.linkedin.com/jobs/search", "/jobs/view/1", "https://www.linkedin.com/jobs/view/1"},
		{"https://www.linkedin.com/jobs/search", "https://other.example/x", "https://other.example/x"},
		{"https://example.com/a/b", "c", "https://example.com/a/c"},
	}
	for _, tt := range tests {
		if got := ResolveURL(tt.base, tt.href); got != tt.want {
			t.Errorf("ResolveURL(%q, %q) = %q, want %q", tt.base, tt.href, got, tt.want)
		}
	}
}

func TestJoinPath(t *testing.T) {
	got, err := JoinPath("http://localhost:3000", "export", "John Doe", "42", "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "http://localhost:3000/export/John%20Doe/42/en"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	if _, err := JoinPath("http://localhost:3000", "export", "", "42"); err == nil {
		t.Error("expected error for empty segment")
	}
	if _, err := JoinPath("localhost", "export"); err == nil {
		t.Error("expected error for relative base")
	}

	got, err = JoinPath("https://cv.example.com/app/", "export", "a/b", "1", "fr")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "https://cv.example.com/app/export/a%2Fb/1/fr"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
