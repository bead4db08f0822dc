package v1

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"unicode"

	"github.com/labstack/echo/v4"

	"github.com/kaleow/omnichat/ai/llm"
)

const maxPDFBytes = 20 << 20 // 20 MiB upload cap

type pdfResponse struct {
	Text     string `json:"text"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Tokens   int    `json:"tokens"`
}

// ExtractPDF pulls readable text out of an uploaded PDF so it can be pasted
// into a chat context. The extraction scans for printable runs in
// uncompressed content; compressed streams yield partial results, which is
// acceptable for its chat-context use.
func (s *APIV1Service) ExtractPDF(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, "file field is required")
	}
	if fileHeader.Size > maxPDFBytes {
		return errorResponse(c, http.StatusRequestEntityTooLarge, "file exceeds the 20MB limit")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, "failed to open upload")
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, maxPDFBytes))
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, "failed to read upload")
	}
	if !bytes.HasPrefix(raw, []byte("%PDF")) {
		return errorResponse(c, http.StatusBadRequest, "not a PDF file")
	}

	text := extractPrintableText(raw)
	return c.JSON(http.StatusOK, pdfResponse{
		Text:     text,
		Filename: fileHeader.Filename,
		Size:     fileHeader.Size,
		Tokens:   llm.EstimateTokens(text),
	})
}

// extractPrintableText collects runs of printable characters between PDF
// text operators. Runs shorter than minRun are discarded as binary noise.
func extractPrintableText(raw []byte) string {
	const minRun = 4

	var sb strings.Builder
	var run []byte
	flush := func() {
		if len(run) >= minRun {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.Write(run)
		}
		run = run[:0]
	}

	inParens := 0
	for _, b := range raw {
		switch {
		case b == '(':
			inParens++
		case b == ')':
			if inParens > 0 {
				inParens--
				flush()
			}
		case inParens > 0 && b >= 0x20 && b < 0x7f:
			run = append(run, b)
		case inParens > 0 && (b == '\n' || b == '\r'):
			flush()
		}
	}
	flush()

	return strings.TrimFunc(sb.String(), unicode.IsSpace)
}
