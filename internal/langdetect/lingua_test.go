package langdetect

import "testing"

func TestDetectSkipsShortSamples(t *testing.T) {
	t.Parallel()

	d := NewLingua()
	for _, text := range []string{"", "  ", "ok!", "Salut"} {
		if code, conf := d.Detect(text); code != "" || conf != 0 {
			t.Fatalf("Detect(%q) = %q, %v; want no detection", text, code, conf)
		}
	}
}

func TestCountLetters(t *testing.T) {
	t.Parallel()

	if got := countLetters("Ça va? 123 :)"); got != 4 {
		t.Fatalf("unexpected letter count %d", got)
	}
}
