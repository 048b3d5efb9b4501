package server

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/coolbeans/rollcall/pkg/pdftext"
	"github.com/coolbeans/rollcall/pkg/roll"
	"github.com/coolbeans/rollcall/pkg/source"
	"github.com/coolbeans/rollcall/pkg/tabular"
)

var (
	errNoText     = errors.New("no text provided")
	errNoPDF      = errors.New("no pdf uploaded")
	errInvalidPDF = errors.New("invalid pdf file")
	errBadPage    = errors.New("page must be a positive integer")
	errNoInput    = errors.New("no file or pasted text")
)

type processTextRequest struct {
	RawText string `form:"raw_text"`
	State   string `form:"state"`
}

// ProcessTextResponse is the JSON body returned by POST /process_text.
type ProcessTextResponse struct {
	State       string     `json:"state"`
	Results     [][]string `json:"results"`
	Diagnostics []string   `json:"diagnostics"`
}

type extractPDFRequest struct {
	Page  int    `form:"page" binding:"required,min=1"`
	Mode  string `form:"mode"`
	State string `form:"state"`
}

type parseRequest struct {
	Parser      string `form:"parser" binding:"omitempty,oneof=original general virginia regional"`
	Format      string `form:"format" binding:"omitempty,oneof=psv csv"`
	Pages       string `form:"pages"`
	PrintedPage int    `form:"printed_page" binding:"omitempty,min=1"`
	State       string `form:"state"`
	Pasted      string `form:"pasted"`
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"rule_sets": s.engine.Rules().Count(),
	})
}

func (s *Server) processText(c *gin.Context) {
	var req processTextRequest
	if err := c.ShouldBind(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	raw := strings.TrimSpace(source.Normalize(req.RawText))
	state := strings.TrimSpace(req.State)
	if raw == "" {
		abortWithMessage(c, http.StatusBadRequest, "No text provided.", errNoText)
		return
	}

	res, err := s.engine.Parse(roll.DefaultSourceID, raw, roll.VariantForState(state))
	if err != nil {
		abortWithMessage(c, http.StatusInternalServerError, "Parser error: "+err.Error(), fmt.Errorf("parse: %w", err))
		return
	}

	diagnostics := res.Diagnostics
	if diagnostics == nil {
		diagnostics = []string{}
	}
	c.JSON(http.StatusOK, ProcessTextResponse{
		State:       state,
		Results:     tabular.Matrix(res.Rows),
		Diagnostics: diagnostics,
	})
}

func (s *Server) extractPDF(c *gin.Context) {
	doc, err := s.upload(c, "pdf_file")
	if err != nil {
		if isMissingFile(err) {
			abortWithMessage(c, http.StatusBadRequest, "No PDF uploaded", errNoPDF)
			return
		}
		abort(c, http.StatusBadRequest, err)
		return
	}
	if !strings.EqualFold(filepath.Ext(doc.Name), ".pdf") {
		abortWithMessage(c, http.StatusBadRequest, "Invalid PDF file", errInvalidPDF)
		return
	}
	if !doc.IsPDF() {
		abort(c, http.StatusUnprocessableEntity, fmt.Errorf("%s is not a PDF (%s)", doc.Name, doc.MIME))
		return
	}

	var req extractPDFRequest
	if err := c.ShouldBind(&req); err != nil {
		abortWithMessage(c, http.StatusBadRequest, "Page must be a positive integer", fmt.Errorf("%w: %w", errBadPage, err))
		return
	}
	state := strings.TrimSpace(req.State)

	page := req.Page
	switch mode := strings.ToLower(strings.TrimSpace(req.Mode)); mode {
	case "", "pdf":
	case "printed":
		page, err = s.pages.Resolve(req.Page)
		if err != nil {
			abort(c, http.StatusBadRequest, err)
			return
		}
	default:
		abort(c, http.StatusBadRequest, fmt.Errorf("unknown page mode %q", mode))
		return
	}

	text, err := pdftext.ExtractRange(doc.Data, page, page)
	if err != nil {
		abort(c, extractionStatus(err), err)
		return
	}

	res, err := s.engine.Parse(doc.Name, text, roll.VariantForState(state))
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	s.logger.Debug("extracted pdf page",
		zap.String("request_id", requestID(c)),
		zap.Int("page", page),
		zap.Int("rows", len(res.Rows)))

	prefix := state
	if prefix == "" {
		prefix = "parsed"
	}
	s.attachment(c, fmt.Sprintf("%s_page_%d.csv", prefix, req.Page), res.Rows, tabular.PSV)
}

func (s *Server) parse(c *gin.Context) {
	var req parseRequest
	if err := c.ShouldBind(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	doc, err := s.upload(c, "file")
	if err != nil && !isMissingFile(err) {
		abort(c, http.StatusBadRequest, err)
		return
	}
	pasted := strings.TrimSpace(req.Pasted)
	if doc == nil && pasted == "" {
		abortWithMessage(c, http.StatusBadRequest, "Please upload a file or paste text.", errNoInput)
		return
	}

	pages := strings.TrimSpace(req.Pages)
	state := strings.TrimSpace(req.State)
	if req.PrintedPage > 0 && state != "" {
		p, err := s.pages.ResolveState(state, req.PrintedPage)
		if err != nil {
			abortWithMessage(c, http.StatusBadRequest, "Printed page lookup failed: "+err.Error(), fmt.Errorf("printed page lookup: %w", err))
			return
		}
		pages = strconv.Itoa(p)
	}

	sourceID := roll.DefaultSourceID
	text := source.Normalize(pasted)
	if doc != nil {
		sourceID = doc.Name
		if doc.IsPDF() {
			text, err = pdftext.ExtractBytes(doc.Data, pdftext.Options{Pages: pages})
			if err != nil {
				abort(c, extractionStatus(err), err)
				return
			}
		} else {
			text, err = doc.Text()
			if err != nil {
				status := http.StatusUnprocessableEntity
				if errors.Is(err, source.ErrEmpty) {
					status = http.StatusBadRequest
				}
				abort(c, status, err)
				return
			}
		}
	}

	format := tabular.PSV
	if req.Format != "" {
		if format, err = tabular.ParseFormat(req.Format); err != nil {
			abort(c, http.StatusBadRequest, err)
			return
		}
	}

	res, err := s.engine.Parse(sourceID, text, roll.ParseVariant(req.Parser))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, roll.ErrUnknownVariant) {
			status = http.StatusBadRequest
		}
		abort(c, status, err)
		return
	}
	s.attachment(c, "parsed_output.csv", res.Rows, format)
}

func (s *Server) upload(c *gin.Context, field string) (*source.Document, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("opening upload: %w", err)
	}
	defer f.Close()
	return source.FromReader(filepath.Base(fh.Filename), f, s.cfg.MaxUploadBytes())
}

func (s *Server) attachment(c *gin.Context, filename string, rows []roll.Row, format tabular.Format) {
	body, err := tabular.Encode(rows, format)
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "text/csv", body)
}

func isMissingFile(err error) bool {
	return errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart)
}

// extractionStatus maps a PDF extraction error to a response status: bad
// page requests are the client's fault, anything else means the document
// could not be read.
func extractionStatus(err error) int {
	switch {
	case errors.Is(err, pdftext.ErrPageRange), errors.Is(err, pdftext.ErrNoMapping):
		return http.StatusBadRequest
	default:
		return http.StatusUnprocessableEntity
	}
}

func abort(c *gin.Context, status int, err error) {
	abortWithMessage(c, status, err.Error(), err)
}

// abortWithMessage records err on the context and answers with message as
// the JSON error body.
func abortWithMessage(c *gin.Context, status int, message string, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}
