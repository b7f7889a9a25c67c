package notifier

import (
	"strings"
	"testing"
)

func TestSanitizeHTML_allowedTagsPass(t *testing.T) {
	in := `<b>Заголовок</b> текст <i>курсив</i> <a href="https://ex.com">ссылка</a>`
	if got := SanitizeHTML(in); got != in {
		t.Fatalf("allowed markup must pass unchanged:\n in=%q\nout=%q", in, got)
	}
}

func TestSanitizeHTML_stripsDisallowedTags(t *testing.T) {
	in := `<div><b>жирный</b> <script>alert(1)</script><ul><li>пункт</li></ul></div>`
	got := SanitizeHTML(in)

	for _, banned := range []string{"<div", "<script", "<ul", "<li"} {
		if strings.Contains(got, banned) {
			t.Fatalf("banned tag %q leaked: %q", banned, got)
		}
	}
	if !strings.Contains(got, "<b>жирный</b>") {
		t.Fatalf("allowed tag lost: %q", got)
	}
	if !strings.Contains(got, "пункт") {
		t.Fatalf("inner text of stripped tags must survive: %q", got)
	}
}

func TestSanitizeHTML_anchorKeepsOnlyHref(t *testing.T) {
	in := `<a href="https://ex.com/a" onclick="evil()" class="x">читать</a>`
	got := SanitizeHTML(in)
	if got != `<a href="https://ex.com/a">читать</a>` {
		t.Fatalf("anchor attrs not reduced to href: %q", got)
	}
}

func TestSanitizeHTML_reclosesDanglingTags(t *testing.T) {
	in := `<b>незакрытый текст`
	got := SanitizeHTML(in)
	if !strings.HasSuffix(got, "</b>") {
		t.Fatalf("dangling tag must be re-closed: %q", got)
	}
}

func TestValidateHTML(t *testing.T) {
	if !ValidateHTML(`<b>ок</b>`) {
		t.Fatal("clean fragment must validate")
	}
	if ValidateHTML(`<table><tr><td>x</td></tr></table>`) {
		t.Fatal("table markup must fail validation")
	}
}

func TestTruncateHTML(t *testing.T) {
	long := "<b>Раздел</b> " + strings.Repeat("Предложение о событиях дня в регионе. ", 300)
	got := TruncateHTML(long, 4000)
	if len([]rune(got)) > 4000 {
		t.Fatalf("truncated message too long: %d", len([]rune(got)))
	}
	if !ValidateHTML(got) {
		t.Fatalf("truncated output must stay valid: %q", got[:80])
	}
}
