package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Lllllllleong/balanceconfirmflow/internal/models"
	"github.com/Lllllllleong/balanceconfirmflow/internal/storage/memory"
	"github.com/stretchr/testify/require"
)

// fileRenderer writes a small file per request, named like the real documents.
type fileRenderer struct {
	mu    sync.Mutex
	calls []models.RenderRequest
	fail  map[string]error
}

func (r *fileRenderer) Render(ctx context.Context, req models.RenderRequest) (*models.RenderedDocument, error) {
	r.mu.Lock()
	r.calls = append(r.calls, req)
	err := r.fail[req.Partner.ID]
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(req.OutputDir, DocumentName(req.RegistrationNumber, req.BalanceDate, req.Partner.Name))
	content := fmt.Sprintf("original|%s|%d|%s", req.Partner.ID, req.RegistrationNumber, req.TemplateName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, err
	}
	return &models.RenderedDocument{Path: path}, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	batches []FinalizeResult
}

func (n *recordingNotifier) NotifyBatchFinalized(ctx context.Context, sessionID string, result FinalizeResult) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.batches = append(n.batches, result)
	return nil
}

type recordingArchiver struct {
	mu       sync.Mutex
	archived []int64
}

func (a *recordingArchiver) ArchiveDocument(ctx context.Context, reg models.Registration, localPath string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archived = append(a.archived, reg.Number)
	return nil
}

type fixture struct {
	store     *memory.Store
	counter   *memory.Counter
	mailbox   *memory.Mailbox
	renderer  *fileRenderer
	outDir    string
	signedDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     memory.NewStore(),
		counter:   memory.NewCounter(1),
		mailbox:   memory.NewMailbox(),
		renderer:  &fileRenderer{fail: map[string]error{}},
		outDir:    t.TempDir(),
		signedDir: t.TempDir(),
	}
	for _, p := range []models.Partner{
		{ID: "p1", Name: "Alfa Construct SRL", Email: "office@alfa.ro", CUI: "RO111", ClientDUC: true, Active: true},
		{ID: "p2", Name: "Beta Distributie SRL", Email: "contabilitate@beta.ro", CUI: "RO222", ClientDUC: true, Active: true},
		{ID: "p3", Name: "Gama Servicii SRL", Email: "gama@gama.ro", CUI: "RO333", ClientDUC: true, Active: true},
		{ID: "old", Name: "Vechi SRL", Email: "vechi@vechi.ro", ClientDUC: true, Active: false},
		{ID: "f1", Name: "Furnizor Logistic SA", Email: "f@logistic.ro", FurnizorDL: true, Active: true},
		{ID: "nomail", Name: "Fara Email SRL", ClientDUC: true, Active: true},
	} {
		f.store.PutPartner(p)
	}
	f.store.PutTemplate(models.EmailTemplate{
		ID: "tpl-client", Name: "Client", Kind: models.TemplateKindEmail, Category: models.BucketClient, Active: true,
		Subject: "Confirmare sold",
		Body:    "<p>Stimate {NUME_PARTENER},</p><p>Va rugam confirmati soldul la [DATA_SOLD] conform documentului Nr. {NR_DOCUMENT}.</p>",
	})
	return f
}

func (f *fixture) input(ids ...string) models.SessionInput {
	return models.SessionInput{
		User:         models.UserContext{ID: "u1", Name: "Ana Pop", Email: "ana@firma.ro", Role: "Contabil"},
		PartnerIDs:   ids,
		Category:     models.PartnerClientDUC,
		BalanceDate:  "2024-12-31",
		EmailSubject: "Confirmare sold {NUME_PARTENER}",
		OutputFolder: f.outDir,
	}
}

func (f *fixture) deps(policy SecurityPolicy) WorkflowDeps {
	return WorkflowDeps{
		Partners:      f.store,
		Counter:       f.counter,
		Renderer:      f.renderer,
		Registrations: f.store,
		Requests:      f.store,
		EmailLog:      f.store,
		Sender:        f.mailbox,
		Templates:     f.store,
		Policy:        policy,
		CompanyName:   "Firma Mea SRL",
	}
}

func (f *fixture) workflow(t *testing.T, policy SecurityPolicy) *Workflow {
	t.Helper()
	wf, err := NewWorkflow(f.deps(policy))
	require.NoError(t, err)
	return wf
}

func (f *fixture) resolver(t *testing.T) *TemplateResolver {
	t.Helper()
	r, err := NewTemplateResolver(TemplateCatalog{}, f.store)
	require.NoError(t, err)
	return r
}

// generate runs initialize and generate for ids.
func (f *fixture) generate(t *testing.T, wf *Workflow, ids ...string) (*models.Session, []models.DocumentRecord) {
	t.Helper()
	ctx := context.Background()
	session, reserved, err := wf.InitializeSession(ctx, f.input(ids...))
	require.NoError(t, err)
	gen, err := wf.GenerateDocuments(ctx, session, reserved)
	require.NoError(t, err)
	return session, gen.Documents
}

// sign drops a signed copy of doc into the signed folder.
func (f *fixture) sign(t *testing.T, doc models.DocumentRecord) string {
	t.Helper()
	base := strings.TrimSuffix(doc.DocumentName, filepath.Ext(doc.DocumentName))
	path := filepath.Join(f.signedDir, base+" semnat.pdf")
	require.NoError(t, os.WriteFile(path, []byte("signed|"+doc.PartnerID), 0o644))
	return path
}

// copyUnsigned drops the byte-identical original into the signed folder.
func (f *fixture) copyUnsigned(t *testing.T, doc models.DocumentRecord) string {
	t.Helper()
	data, err := os.ReadFile(doc.GeneratedPath)
	require.NoError(t, err)
	base := strings.TrimSuffix(doc.DocumentName, filepath.Ext(doc.DocumentName))
	path := filepath.Join(f.signedDir, base+" semnat.pdf")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
