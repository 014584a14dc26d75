package fileutil

import (
	"strings"
	"testing"
)

func TestIsAllowedType(t *testing.T) {
	cases := []struct {
		mimeType string
		allowed  bool
	}{
		{"image/png", true},
		{"application/pdf", true},
		{"video/mp4", true},
		{"application/zip", true},
		{"application/x-msdownload", false},
		{"text/html", false},
		{"", false},
	}

	for _, tc := range cases {
		if got := IsAllowedType(tc.mimeType); got != tc.allowed {
			t.Errorf("IsAllowedType(%q) = %v, want %v", tc.mimeType, got, tc.allowed)
		}
	}
}

func TestIsValidSize(t *testing.T) {
	if IsValidSize(0) {
		t.Error("zero bytes should be invalid")
	}
	if IsValidSize(-1) {
		t.Error("negative size should be invalid")
	}
	if !IsValidSize(MaxFileSize) {
		t.Error("exactly the ceiling should be valid")
	}
	if IsValidSize(MaxFileSize + 1) {
		t.Error("over the ceiling should be invalid")
	}
}

func TestCategory(t *testing.T) {
	if got := Category("audio/ogg"); got != "audio" {
		t.Errorf("expected audio, got %q", got)
	}
	if got := Category("application/unknown"); got != "other" {
		t.Errorf("expected other, got %q", got)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"notes.txt", "notes.txt"},
		{"../../etc/passwd", "passwd"},
		{"my file (1).txt", "my_file_1_.txt"},
		{"  spaced.pdf  ", "spaced.pdf"},
		{"weird***name.png", "weird_name.png"},
	}

	for _, tc := range cases {
		if got := SanitizeFilename(tc.in); got != tc.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestUniqueFilenameKeepsExtensionAndDiffers(t *testing.T) {
	first := UniqueFilename("report.PDF")
	second := UniqueFilename("report.PDF")

	if !strings.HasPrefix(first, "report_") {
		t.Errorf("expected base name prefix, got %q", first)
	}
	if !strings.HasSuffix(first, ".pdf") {
		t.Errorf("expected lowered extension, got %q", first)
	}
	if first == second {
		t.Error("expected two generated names to differ")
	}
}
