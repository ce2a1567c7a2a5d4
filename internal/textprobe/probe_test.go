package textprobe

import (
	"errors"
	"strings"
	"testing"
)

type fakeDoc struct {
	pages []string
	errAt map[int]error
}

func (d fakeDoc) NumPage() int { return len(d.pages) }
func (d fakeDoc) PageText(i int) (string, error) {
	if err := d.errAt[i]; err != nil {
		return "", err
	}
	return d.pages[i], nil
}
func (d fakeDoc) Close() error { return nil }

type fakeOpener struct {
	doc fakeDoc
	err error
}

func (o fakeOpener) Open(path string) (Doc, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.doc, nil
}

func TestCheckPassesWithEnoughText(t *testing.T) {
	doc := fakeDoc{pages: []string{strings.Repeat("word ", 100)}}
	ok, diag, err := Check(fakeOpener{doc: doc}, "exam.pdf", 300)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !ok {
		t.Fatalf("expected extractable, got diag %+v", diag)
	}
	if diag.TotalChars != 400 {
		t.Fatalf("TotalChars = %d, want 400", diag.TotalChars)
	}
}

func TestCheckFailsOnScannedDocument(t *testing.T) {
	doc := fakeDoc{pages: []string{"", " ", "\n\n"}}
	ok, diag, err := Check(fakeOpener{doc: doc}, "scan.pdf", 0)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if ok {
		t.Fatal("expected probe to fail on whitespace-only pages")
	}
	if diag.Threshold != DefaultThreshold {
		t.Fatalf("Threshold = %d, want default %d", diag.Threshold, DefaultThreshold)
	}
}

func TestCheckEmptyDocument(t *testing.T) {
	ok, diag, err := Check(fakeOpener{doc: fakeDoc{}}, "empty.pdf", 10)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if ok || diag.TotalPages != 0 {
		t.Fatalf("empty doc should fail probe, diag %+v", diag)
	}
}

func TestCheckStopsEarlyAtThreshold(t *testing.T) {
	doc := fakeDoc{pages: []string{strings.Repeat("a", 50), strings.Repeat("b", 50), strings.Repeat("c", 50)}}
	ok, diag, err := Check(fakeOpener{doc: doc}, "exam.pdf", 60)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !ok {
		t.Fatal("expected pass at threshold 60")
	}
	if len(diag.Probes) != 2 {
		t.Fatalf("expected early exit after 2 probes, got %d", len(diag.Probes))
	}
}

func TestCheckPageErrorsAreRecorded(t *testing.T) {
	doc := fakeDoc{
		pages: []string{"", strings.Repeat("x", 500)},
		errAt: map[int]error{0: errors.New("damaged page")},
	}
	ok, diag, err := Check(fakeOpener{doc: doc}, "exam.pdf", 300)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !ok {
		t.Fatal("second page should satisfy threshold")
	}
	if diag.Probes[0].Err == "" {
		t.Fatal("expected first probe to record the page error")
	}
}

func TestCheckOpenError(t *testing.T) {
	if _, _, err := Check(fakeOpener{err: errors.New("no such file")}, "missing.pdf", 0); err == nil {
		t.Fatal("expected open error to propagate")
	}
}

func TestSampleIndices(t *testing.T) {
	got := sampleIndices(3)
	if len(got) != 3 || got[0] != 0 || got[2] != 2 {
		t.Fatalf("short doc should sample every page, got %v", got)
	}
	got = sampleIndices(40)
	if len(got) != 5 {
		t.Fatalf("long doc should sample 5 pages, got %v", got)
	}
	if got[0] != 0 || got[len(got)-1] != 39 {
		t.Fatalf("sample must include first and last page, got %v", got)
	}
}
