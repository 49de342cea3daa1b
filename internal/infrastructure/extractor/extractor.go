package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/medscript-analyzer/internal/core/domain"
	"github.com/kirillkom/medscript-analyzer/internal/core/ports"
)

type Config struct {
	Tesseract     string // binary name or absolute path, default "tesseract"
	TesseractLang string // default "eng"
	TempDir       string
}

// Extractor turns uploaded bytes into plain text by content type.
type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

var _ ports.TextExtractor = (*Extractor)(nil)

func New(cfg Config, logger *slog.Logger) *Extractor {
	return NewWithRunner(cfg, execRunner{}, logger)
}

func NewWithRunner(cfg Config, runner Runner, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	return &Extractor{cfg: cfg, runner: runner, logger: logger}
}

// Extract returns domain.ErrInvalidInput for content that cannot be decoded and
// domain.ErrTemporary when the OCR engine could not run.
func (e *Extractor) Extract(ctx context.Context, content []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	start := time.Now()

	var (
		text string
		err  error
	)
	switch contentType {
	case domain.ContentTypeText:
		text, err = extractPlainText(content)
	case domain.ContentTypePDF:
		text, err = extractPDF(content)
	case domain.ContentTypeJPEG, domain.ContentTypePNG:
		text, err = e.extractImage(ctx, content, contentType)
	case domain.ContentTypeXLSX:
		text, err = extractSpreadsheet(content)
	default:
		return "", domain.WrapError(domain.ErrUnsupportedMediaType, "extract text", fmt.Errorf("content type %q", contentType))
	}
	if err != nil {
		return "", err
	}

	text = Normalize(text)
	e.logger.Debug("text_extracted",
		"content_type", contentType,
		"bytes", len(content),
		"text_runes", utf8.RuneCountInString(text),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

func extractPlainText(content []byte) (string, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(content) {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract plain text", errors.New("content is not valid UTF-8"))
	}
	return string(content), nil
}

func extractPDF(content []byte) (text string, err error) {
	// The pdf reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = domain.WrapError(domain.ErrInvalidInput, "extract pdf", fmt.Errorf("malformed pdf: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "open pdf", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "read pdf text", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "read pdf text", err)
	}
	return buf.String(), nil
}

func (e *Extractor) extractImage(ctx context.Context, content []byte, contentType string) (string, error) {
	suffix := ".png"
	if contentType == domain.ContentTypeJPEG {
		suffix = ".jpg"
	}
	tmp, err := os.CreateTemp(e.cfg.TempDir, "ocr-*"+suffix)
	if err != nil {
		return "", domain.WrapError(domain.ErrTemporary, "create ocr input", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return "", domain.WrapError(domain.ErrTemporary, "write ocr input", err)
	}
	if err := tmp.Close(); err != nil {
		return "", domain.WrapError(domain.ErrTemporary, "close ocr input", err)
	}

	// tesseract <file> stdout -l <lang>
	out, stderr, err := e.runner.Run(ctx, e.cfg.Tesseract, tmp.Name(), "stdout", "-l", e.cfg.TesseractLang)
	if err != nil {
		e.logger.Error("tesseract_failed", "error", err, "stderr", strings.TrimSpace(string(stderr)))
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// tesseract exits non-zero for unreadable images.
			return "", domain.WrapError(domain.ErrInvalidInput, "ocr image", fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(string(stderr))))
		}
		return "", domain.WrapError(domain.ErrTemporary, "ocr image", fmt.Errorf("tesseract: %w", err))
	}
	return boxNoise.ReplaceAllString(string(out), ""), nil
}

// extractSpreadsheet renders every sheet as tab separated rows under a
// "## <sheet>" header.
func extractSpreadsheet(content []byte) (string, error) {
	book, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "open spreadsheet", err)
	}
	defer book.Close()

	var sb strings.Builder
	for _, sheet := range book.GetSheetList() {
		rows, err := book.GetRows(sheet)
		if err != nil {
			return "", domain.WrapError(domain.ErrInvalidInput, "read spreadsheet rows", err)
		}
		if len(rows) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "## %s\n", sheet)
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t")
			if strings.TrimSpace(line) == "" {
				continue
			}
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}
	return sb.String(), nil
}

var (
	boxNoise       = regexp.MustCompile(`[\x{2500}-\x{257F}\x{25A0}-\x{25FF}]`)
	trailingSpaces = regexp.MustCompile(`[ \t]+\n`)
	excessNewlines = regexp.MustCompile(`\n{3,}`)
)

// Normalize unifies line endings, trims trailing blanks and collapses runs of
// empty lines.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\x00", "")
	text = trailingSpaces.ReplaceAllString(text, "\n")
	text = excessNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
