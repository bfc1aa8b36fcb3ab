package language

import "testing"

func TestNormalizeTag(t *testing.T) {
	t.Parallel()

	if got := NormalizeTag(" EN_us "); got != "en-us" {
		t.Fatalf("unexpected normalized tag: %q", got)
	}
	if got := NormalizeTag("zh-Hans"); got != "zh-hans" {
		t.Fatalf("unexpected normalized tag: %q", got)
	}
	if got := NormalizeTag("en_123"); got != "" {
		t.Fatalf("expected invalid tag to normalize to empty string, got %q", got)
	}
}

func TestNormalizeCode(t *testing.T) {
	t.Parallel()

	if got := NormalizeCode(" FR-ca "); got != "fr" {
		t.Fatalf("unexpected normalized code: %q", got)
	}
	if got := NormalizeCode("auto"); got != "" {
		t.Fatalf("expected auto to mean unknown, got %q", got)
	}
	if got := NormalizeCode("und"); got != "" {
		t.Fatalf("expected und to mean unknown, got %q", got)
	}
}

func TestSameAndPairKey(t *testing.T) {
	t.Parallel()

	if !Same("en-GB", "EN") {
		t.Fatalf("expected en-GB and EN to be the same language")
	}
	if Same("", "") {
		t.Fatalf("did not expect two unknown languages to match")
	}
	if got := PairKey("", "EN"); got != "und->en" {
		t.Fatalf("unexpected pair key: %q", got)
	}
	if got := PairKey("fr", "en-us"); got != "fr->en" {
		t.Fatalf("unexpected pair key: %q", got)
	}
}

func TestLookupLabel(t *testing.T) {
	t.Parallel()

	label, ok := LookupLabel("fr-FR")
	if !ok || label.English != "French" {
		t.Fatalf("unexpected label: %+v ok=%t", label, ok)
	}
	if got := EnglishName("xx"); got != "xx" {
		t.Fatalf("expected unknown code to fall back to itself, got %q", got)
	}
}
