package catalog

import "testing"

func TestDeriveContentID(t *testing.T) {
	// hex MD5 of the filename, stable across calls.
	got := DeriveContentID("clip.mp4")
	want := "d3e6a6905a3ec4f87bf4aee9b26752ce"
	if got != want {
		t.Errorf("DeriveContentID(clip.mp4) = %q, want %q", got, want)
	}
	if got != DeriveContentID("clip.mp4") {
		t.Error("DeriveContentID is not deterministic")
	}
	if DeriveContentID("other.mp4") == got {
		t.Error("distinct filenames share a content id")
	}
}

func TestAdvances(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{StatusUploaded, StatusStarted, true},
		{StatusStarted, StatusUploadedToIndexer, true},
		{StatusUploadedToIndexer, StatusProcessing, true},
		{StatusProcessing, StatusProcessed, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusProcessing, true},
		{StatusProcessed, StatusProcessing, false},
		{StatusProcessed, StatusFailed, false},
		{StatusFailed, StatusProcessed, false},
		{StatusProcessing, StatusUploaded, false},
		{StatusUploadedToIndexer, StatusStarted, false},
		{"", StatusUploaded, true},
	}

	for _, tt := range tests {
		if got := Advances(tt.from, tt.to); got != tt.want {
			t.Errorf("Advances(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
