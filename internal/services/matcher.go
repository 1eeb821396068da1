package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Lllllllleong/balanceconfirmflow/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MatchResult splits generated records into those paired with a signed file and the rest.
type MatchResult struct {
	Matched   []models.DocumentRecord `json:"matched"`
	Unmatched []models.DocumentRecord `json:"unmatched"`
	// Warnings lists files paired with more than one document.
	Warnings []string `json:"warnings,omitempty"`
}

// signedFile is a folder entry prepared for comparison.
type signedFile struct {
	name    string
	lower   string
	compact string
}

// matchTarget is a generated record prepared for comparison.
type matchTarget struct {
	base    string
	number  string
	partner string
}

type matchStrategy struct {
	name    string
	matches func(f signedFile, t matchTarget) bool
}

const namePrefixLength = 10

// matchStrategies run in this order; within a strategy the first file in name order wins.
var matchStrategies = []matchStrategy{
	{"document-name", func(f signedFile, t matchTarget) bool {
		return t.base != "" && strings.Contains(f.lower, t.base)
	}},
	{"number-signed", func(f signedFile, t matchTarget) bool {
		return (strings.Contains(f.lower, "nr"+t.number) || strings.Contains(f.lower, "no"+t.number)) && hasSignedMarker(f.lower)
	}},
	{"partner-number-signed", func(f signedFile, t matchTarget) bool {
		return t.partner != "" && strings.Contains(f.compact, t.partner) && strings.Contains(f.lower, t.number) && hasSignedMarker(f.lower)
	}},
	{"request-partner-signed", func(f signedFile, t matchTarget) bool {
		return strings.Contains(f.lower, "cerere") && strings.Contains(f.lower, "sold") &&
			t.partner != "" && strings.Contains(f.compact, t.partner) && hasSignedMarker(f.lower)
	}},
	{"name-prefix-signed", func(f signedFile, t matchTarget) bool {
		if utf8.RuneCountInString(t.base) < namePrefixLength {
			return false
		}
		prefix := string([]rune(t.base)[:namePrefixLength])
		return strings.Contains(f.lower, prefix) && hasSignedMarker(f.lower)
	}},
	// Every file this accepts already satisfies document-name, so it never
	// decides a match. It stays last to keep the historical order.
	{"legacy-semnat", func(f signedFile, t matchTarget) bool {
		return t.base != "" && strings.Contains(f.lower, t.base) && strings.Contains(f.lower, "semnat")
	}},
}

func hasSignedMarker(lower string) bool {
	return strings.Contains(lower, "semnat") || strings.Contains(lower, "signed")
}

var diacriticFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName folds diacritics, lowercases and drops everything that is not
// a letter or a digit, so "S.C. Țară & Co" becomes "sctaraco".
func NormalizeName(s string) string {
	folded, _, err := transform.String(diacriticFolder, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func newMatchTarget(rec models.DocumentRecord) matchTarget {
	base := strings.TrimSuffix(rec.DocumentName, filepath.Ext(rec.DocumentName))
	return matchTarget{
		base:    strings.ToLower(base),
		number:  strconv.FormatInt(rec.RegistrationNumber, 10),
		partner: NormalizeName(rec.PartnerName),
	}
}

// SignedDocumentMatcher pairs generated documents with the signed files a user
// dropped into a folder.
type SignedDocumentMatcher struct {
	strategies []matchStrategy
}

func NewSignedDocumentMatcher() *SignedDocumentMatcher {
	return &SignedDocumentMatcher{strategies: matchStrategies}
}

// MatchSignedDocuments scans folder and pairs each generated record with at
// most one file. OriginalHash is never modified; the matched file's digest goes
// to SignedHash. Calling it twice on the same inputs gives the same result.
func (m *SignedDocumentMatcher) MatchSignedDocuments(ctx context.Context, generated []models.DocumentRecord, folder string) (*MatchResult, error) {
	ctx, span := tracer.Start(ctx, "MatchSignedDocuments")
	defer span.End()

	logCtx := slog.With("folder", folder)
	files, err := listSignedFiles(folder)
	if err != nil {
		return nil, err
	}
	logCtx.Info("Matching signed documents.", "documents", len(generated), "files", len(files))

	result := &MatchResult{}
	claimed := make(map[string]string, len(generated))
	for _, rec := range generated {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		file, strategy, ok := m.find(files, newMatchTarget(rec))
		if !ok {
			logCtx.Warn("No signed file found.", "partnerId", rec.PartnerID, "documentName", rec.DocumentName)
			result.Unmatched = append(result.Unmatched, rec)
			continue
		}

		path := filepath.Join(folder, file.name)
		hash, err := CalculateFileHash(path)
		if err != nil {
			logCtx.Error("Failed to hash signed file.", "path", path, "error", err)
			result.Unmatched = append(result.Unmatched, rec)
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			logCtx.Error("Failed to stat signed file.", "path", path, "error", err)
			result.Unmatched = append(result.Unmatched, rec)
			continue
		}

		if owner, ok := claimed[file.name]; ok {
			msg := fmt.Sprintf("%s: file %s was already matched to partner %s", rec.PartnerName, file.name, owner)
			logCtx.Warn("Signed file matched to more than one document.", "partnerId", rec.PartnerID, "file", file.name, "strategy", strategy, "firstPartnerId", owner)
			result.Warnings = append(result.Warnings, msg)
		} else {
			claimed[file.name] = rec.PartnerID
		}

		matched := rec
		matched.SignedPath = path
		matched.SignedHash = hash
		matched.Size = info.Size()
		matched.Status = models.StatusMatched
		logCtx.Info("Signed file matched.", "partnerId", rec.PartnerID, "file", file.name, "strategy", strategy, "signedHash", hash)
		result.Matched = append(result.Matched, matched)
	}

	span.SetAttributes(attribute.Int("documents.matched", len(result.Matched)), attribute.Int("documents.unmatched", len(result.Unmatched)))
	return result, nil
}

func (m *SignedDocumentMatcher) find(files []signedFile, target matchTarget) (signedFile, string, bool) {
	for _, s := range m.strategies {
		for _, f := range files {
			if s.matches(f, target) {
				return f, s.name, true
			}
		}
	}
	return signedFile{}, "", false
}

func listSignedFiles(folder string) ([]signedFile, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("failed to read signed documents folder %s: %w", folder, err)
	}
	files := make([]signedFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, signedFile{
			name:    e.Name(),
			lower:   strings.ToLower(e.Name()),
			compact: NormalizeName(e.Name()),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })
	return files, nil
}
