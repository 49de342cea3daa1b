package extractor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/medscript-analyzer/internal/core/domain"
)

type fakeRunner struct {
	stdout []byte
	stderr []byte
	err    error
	name   string
	args   []string
	input  []byte
}

func (r *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.name = name
	r.args = args
	if len(args) > 0 {
		r.input, _ = os.ReadFile(args[0])
	}
	return r.stdout, r.stderr, r.err
}

func TestExtractPlainText(t *testing.T) {
	e := New(Config{}, nil)
	text, err := e.Extract(context.Background(), []byte("\xef\xbb\xbfMetformin 500mg\r\n\r\n\r\n\r\nInsulin 10 units   \n"), domain.ContentTypeText)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if text != "Metformin 500mg\n\nInsulin 10 units" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestExtractPlainTextRejectsBinary(t *testing.T) {
	_, err := New(Config{}, nil).Extract(context.Background(), []byte{0xff, 0xfe, 0x00}, domain.ContentTypeText)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestExtractUnsupportedType(t *testing.T) {
	_, err := New(Config{}, nil).Extract(context.Background(), []byte("x"), "application/msword")
	if !domain.IsKind(err, domain.ErrUnsupportedMediaType) {
		t.Fatalf("expected unsupported media type, got %v", err)
	}
}

func TestExtractMalformedPDF(t *testing.T) {
	_, err := New(Config{}, nil).Extract(context.Background(), []byte("not a pdf"), domain.ContentTypePDF)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestExtractImageRunsTesseract(t *testing.T) {
	runner := &fakeRunner{stdout: []byte("Glucose: 220 mg/dL ■\n")}
	e := NewWithRunner(Config{Tesseract: "/usr/bin/tesseract", TesseractLang: "eng+deu", TempDir: t.TempDir()}, runner, nil)

	text, err := e.Extract(context.Background(), []byte("PNGDATA"), domain.ContentTypePNG)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if text != "Glucose: 220 mg/dL" {
		t.Fatalf("unexpected text %q", text)
	}
	if runner.name != "/usr/bin/tesseract" {
		t.Fatalf("unexpected binary %q", runner.name)
	}
	if len(runner.args) != 4 || runner.args[1] != "stdout" || runner.args[3] != "eng+deu" {
		t.Fatalf("unexpected args %v", runner.args)
	}
	if !strings.HasSuffix(runner.args[0], ".png") || string(runner.input) != "PNGDATA" {
		t.Fatalf("expected image written to temp file, got %q with %q", runner.args[0], runner.input)
	}
	if _, err := os.Stat(runner.args[0]); !os.IsNotExist(err) {
		t.Fatalf("expected temp file removed, stat err = %v", err)
	}
}

func TestExtractImageMissingBinaryIsTemporary(t *testing.T) {
	runner := &fakeRunner{err: errors.New("exec: \"tesseract\": executable file not found in $PATH")}
	_, err := NewWithRunner(Config{TempDir: t.TempDir()}, runner, nil).Extract(context.Background(), []byte("JPG"), domain.ContentTypeJPEG)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if !strings.HasSuffix(runner.args[0], ".jpg") {
		t.Fatalf("expected jpg temp file, got %v", runner.args)
	}
}

func TestExtractSpreadsheet(t *testing.T) {
	book := excelize.NewFile()
	defer book.Close()
	rows := [][]any{
		{"Test", "Value", "Unit"},
		{"Glucose", 220, "mg/dL"},
		{"Potassium", 4.1, "mmol/L"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := book.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("SetSheetRow() error = %v", err)
		}
	}
	var buf bytes.Buffer
	if err := book.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	text, err := New(Config{}, nil).Extract(context.Background(), buf.Bytes(), domain.ContentTypeXLSX)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	want := "## Sheet1\nTest\tValue\tUnit\nGlucose\t220\tmg/dL\nPotassium\t4.1\tmmol/L"
	if text != want {
		t.Fatalf("unexpected text:\n%q\nwant\n%q", text, want)
	}
}

func TestExtractSpreadsheetRejectsGarbage(t *testing.T) {
	_, err := New(Config{}, nil).Extract(context.Background(), []byte("garbage"), domain.ContentTypeXLSX)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestExtractHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(Config{}, nil).Extract(ctx, []byte("x"), domain.ContentTypeText); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}
