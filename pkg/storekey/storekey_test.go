package storekey

import (
	"strings"
	"testing"
)

func TestDerive_Deterministic(t *testing.T) {
	first, err := Derive("Acme Studios", "Pilot Episode", "final_grade.mov")
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}

	second, err := Derive("Acme Studios", "Pilot Episode", "final_grade.mov")
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}

	if first != second {
		t.Errorf("expected identical keys, got %q and %q", first, second)
	}
}

func TestDerive_UUIDPrefixStripped(t *testing.T) {
	key, err := Derive("Acme Studios", "Pilot Episode", "3fa85f64-5717-4562-b3fc-2c963f66afa6-final_grade.mov")
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}

	if key.String() != "Acme_Studios/Pilot_Episode/final_grade.mov" {
		t.Errorf("expected Acme_Studios/Pilot_Episode/final_grade.mov, got %s", key)
	}

	// A widget-prefixed name and the bare name must land on the same key.
	bare, err := Derive("Acme Studios", "Pilot Episode", "final_grade.mov")
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}
	if key != bare {
		t.Errorf("prefixed and bare filenames diverged: %q vs %q", key, bare)
	}
}

func TestDerive_IllegalCharactersReplaced(t *testing.T) {
	key, err := Derive("acme", "projX", `a/b\c:d*e?f"g<h>i|j.mov`)
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}

	filename := key.Filename()
	if strings.ContainsAny(filename, `/\:*?"<>|`) {
		t.Errorf("filename segment still contains illegal characters: %q", filename)
	}
	if filename != "a_b_c_d_e_f_g_h_i_j.mov" {
		t.Errorf("unexpected sanitized filename: %q", filename)
	}
}

func TestDerive_EmptyRefsFallBack(t *testing.T) {
	key, err := Derive("", "  ", "report.pdf")
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}

	if key.String() != "default/default/report.pdf" {
		t.Errorf("expected default/default/report.pdf, got %s", key)
	}
}

func TestDerive_WhitespaceRunsCollapsed(t *testing.T) {
	key, err := Derive("Acme   Studios", "Pilot\tEpisode", "report.pdf")
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}

	if key.String() != "Acme_Studios/Pilot_Episode/report.pdf" {
		t.Errorf("expected collapsed whitespace, got %s", key)
	}
}

func TestDerive_RejectsTraversalResidue(t *testing.T) {
	for _, name := range []string{"", "   ", ".", ".."} {
		if _, err := Derive("acme", "projX", name); err == nil {
			t.Errorf("expected error for filename %q", name)
		}
	}
}

func TestKey_PrefixAndFilename(t *testing.T) {
	key := Key("acme/projX/report.pdf")

	if key.Prefix() != "acme/projX/" {
		t.Errorf("unexpected prefix %q", key.Prefix())
	}
	if key.Filename() != "report.pdf" {
		t.Errorf("unexpected filename %q", key.Filename())
	}
}
