package extract

import (
	"testing"
)

const samplePage = `<div id="page0">
<p style="top:72.0pt;left:56.7pt;line-height:13.9pt"><span style="font-family:Times;font-size:12.0pt">Question 1: What is 2+2?</span></p>
<p style="top:100.5pt;left:56.7pt;line-height:13.9pt"><span style="font-family:Times;font-size:12.0pt">Answer: 4</span></p>
<p style="left:56.7pt;top:130.0pt"><span>No line height here</span></p>
<p style="top:160.0pt;left:56.7pt"><span></span></p>
<p style="color:red"><span>no coordinates</span></p>
</div>`

func TestParsePageHTML(t *testing.T) {
	lines := parsePageHTML(0, samplePage)

	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %+v", len(lines), lines)
	}

	first := lines[0]
	if first.Text != "Question 1: What is 2+2?" {
		t.Errorf("text = %q", first.Text)
	}
	if first.Page != 0 {
		t.Errorf("page = %d", first.Page)
	}
	if first.BBox.X0 != 56.7 || first.BBox.Y0 != 72.0 {
		t.Errorf("bbox origin = (%v,%v)", first.BBox.X0, first.BBox.Y0)
	}
	if h := first.BBox.Y1 - first.BBox.Y0; h < 13.89 || h > 13.91 {
		t.Errorf("height = %v, want line-height from style", h)
	}
	if first.BBox.X1 <= first.BBox.X0 {
		t.Errorf("estimated width must be positive, got %s", first.BBox)
	}
}

func TestParsePageHTMLHandlesSwappedProperties(t *testing.T) {
	lines := parsePageHTML(2, `<p style="left:10.0pt;top:20.0pt"><span>swapped</span></p>`)
	if len(lines) != 1 {
		t.Fatalf("got %d lines", len(lines))
	}
	if lines[0].BBox.X0 != 10 || lines[0].BBox.Y0 != 20 {
		t.Errorf("bbox = %s", lines[0].BBox)
	}
	if lines[0].Page != 2 {
		t.Errorf("page = %d", lines[0].Page)
	}
}

func TestParsePageHTMLUnescapesEntities(t *testing.T) {
	lines := parsePageHTML(0, `<p style="top:10pt;left:10pt"><span>2 &lt; 4 &amp; 3 &gt; 1</span></p>`)
	if len(lines) != 1 || lines[0].Text != "2 < 4 & 3 > 1" {
		t.Fatalf("lines = %+v", lines)
	}
}

func TestParsePageHTMLDefaultsLineHeight(t *testing.T) {
	lines := parsePageHTML(0, `<p style="top:10pt;left:10pt"><span>plain</span></p>`)
	if len(lines) != 1 {
		t.Fatal("expected one line")
	}
	if h := lines[0].BBox.Y1 - lines[0].BBox.Y0; h != defaultLineHeight {
		t.Errorf("height = %v", h)
	}
}
