package textutil

import "testing"

func TestNormalizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"My Movie (2023) [1080p].MKV", "my_movie_2023_1080p.mkv"},
		{"simple.mp4", "simple.mp4"},
		{"Already_Clean.mkv", "already_clean.mkv"},
		{"dots.in.name.mkv", "dots_in_name.mkv"},
		{"__trim me__.avi", "trim_me.avi"},
		{"noext", "noext"},
		{"Amélie.mkv", "amelie.mkv"},
		{"a  b---c.webm", "a_b_c.webm"},
	}

	for _, tc := range cases {
		if got := NormalizeFilename(tc.in); got != tc.want {
			t.Errorf("NormalizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeFilenameIdempotent(t *testing.T) {
	in := "My Movie (2023) [1080p].MKV"
	once := NormalizeFilename(in)
	twice := NormalizeFilename(once)
	if once != twice {
		t.Fatalf("normalization not idempotent: %q then %q", once, twice)
	}
}
