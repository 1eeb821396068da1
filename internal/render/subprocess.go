// Package render produces confirmation documents by running an external
// generator command and inspecting what it wrote.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Lllllllleong/balanceconfirmflow/internal/models"
	"github.com/Lllllllleong/balanceconfirmflow/internal/services"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const dateLayout = "02.01.2006"

// SubprocessConfig configures the generator invocation.
type SubprocessConfig struct {
	Command      string
	Script       string
	TemplatesDir string
	// DBPath is forwarded as --db-path when set; the generator reads partner details from it.
	DBPath  string
	Timeout time.Duration
}

// SubprocessRenderer implements services.DocumentRenderer.
type SubprocessRenderer struct {
	cfg SubprocessConfig
	now func() time.Time
}

func NewSubprocessRenderer(cfg SubprocessConfig) (*SubprocessRenderer, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("renderer command must be set")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &SubprocessRenderer{cfg: cfg, now: time.Now}, nil
}

// generatorResult is the JSON object the generator prints on stdout.
type generatorResult struct {
	Success      bool   `json:"success"`
	NrDocument   int64  `json:"nr_document"`
	TemplateUsed string `json:"template_used"`
	DocxPath     string `json:"docx_path"`
	PDFPath      string `json:"pdf_path"`
	Error        string `json:"error"`
}

func (r *SubprocessRenderer) args(req models.RenderRequest) []string {
	issue := req.IssueDate
	if issue.IsZero() {
		issue = r.now()
	}
	var args []string
	if r.cfg.Script != "" {
		args = append(args, r.cfg.Script)
	}
	args = append(args,
		"--partner-id", req.Partner.ID,
		"--nr-document", strconv.FormatInt(req.RegistrationNumber, 10),
		"--data-emiterii", issue.Format(dateLayout),
		"--data-sold", req.BalanceDate.Format(dateLayout),
		"--template-name", req.TemplateName,
		"--template-path", filepath.Join(r.cfg.TemplatesDir, req.TemplateName),
		"--output-dir", req.OutputDir,
	)
	if r.cfg.DBPath != "" {
		args = append(args, "--db-path", r.cfg.DBPath)
	}
	return append(args, "--json")
}

func (r *SubprocessRenderer) Render(ctx context.Context, req models.RenderRequest) (*models.RenderedDocument, error) {
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", req.OutputDir, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, r.cfg.Command, r.args(req)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 2 * time.Second

	runErr := cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("document generator timed out after %s", r.cfg.Timeout)
	}

	var res generatorResult
	parseErr := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &res)
	if runErr != nil {
		if parseErr == nil && res.Error != "" {
			return nil, fmt.Errorf("document generator failed: %s", res.Error)
		}
		return nil, fmt.Errorf("document generator failed: %w: %s", runErr, strings.TrimSpace(stderr.String()))
	}
	if parseErr != nil {
		return nil, fmt.Errorf("invalid document generator output: %w", parseErr)
	}
	if !res.Success {
		return nil, fmt.Errorf("document generator failed: %s", res.Error)
	}
	if s := strings.TrimSpace(stderr.String()); s != "" {
		slog.Warn("Document generator wrote to stderr.", "partnerId", req.Partner.ID, "stderr", s)
	}

	out := res.PDFPath
	if out == "" {
		out = res.DocxPath
	}
	if out == "" {
		return nil, fmt.Errorf("document generator reported no output file")
	}
	return inspect(out)
}

// inspect hashes the produced file and, for PDFs, validates it and counts pages.
func inspect(path string) (*models.RenderedDocument, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("generated file %s is missing: %w", path, err)
	}
	hash, err := services.CalculateFileHash(path)
	if err != nil {
		return nil, err
	}
	doc := &models.RenderedDocument{Path: path, Hash: hash, Size: info.Size()}

	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		conf := model.NewDefaultConfiguration()
		conf.ValidationMode = model.ValidationRelaxed
		if err := api.ValidateFile(path, conf); err != nil {
			return nil, fmt.Errorf("generated PDF %s is invalid: %w", path, err)
		}
		pages, err := api.PageCountFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to count pages of %s: %w", path, err)
		}
		doc.PageCount = pages
	}
	return doc, nil
}
