package services

// AuditStatus is the overall verdict on a document's hash chain.
type AuditStatus string

const (
	AuditValid   AuditStatus = "VALID"
	AuditSuspect AuditStatus = "SUSPECT"
	AuditCorrupt AuditStatus = "CORRUPT"
)

// AuditSeverity grades a single finding.
type AuditSeverity string

const (
	SeverityInfo    AuditSeverity = "info"
	SeveritySuspect AuditSeverity = "suspect"
	SeverityCorrupt AuditSeverity = "corrupt"
)

// AuditFinding is one rule's observation.
type AuditFinding struct {
	Rule     string        `json:"rule"`
	Severity AuditSeverity `json:"severity"`
	Message  string        `json:"message"`
}

// AuditRule inspects the three hashes and reports a finding when it applies.
type AuditRule struct {
	Name  string
	Check func(original, signed, returned string) (AuditFinding, bool)
}

// AuditReport is the result of AuditHashes.
type AuditReport struct {
	Status         AuditStatus    `json:"status"`
	Findings       []AuditFinding `json:"findings"`
	Warnings       []string       `json:"warnings"`
	Recommendation string         `json:"recommendation"`
}

func sameHash(a, b string) bool { return a != "" && a == b }

// DefaultAuditRules compares each pair of hashes.
func DefaultAuditRules() []AuditRule {
	return []AuditRule{
		{Name: "original-equals-signed", Check: func(original, signed, _ string) (AuditFinding, bool) {
			return AuditFinding{Severity: SeveritySuspect, Message: "signed file equals the generated original: user did not actually sign"}, sameHash(original, signed)
		}},
		{Name: "signed-equals-returned", Check: func(_, signed, returned string) (AuditFinding, bool) {
			return AuditFinding{Severity: SeverityInfo, Message: "returned file is the signed file, unmodified by the partner"}, sameHash(signed, returned)
		}},
		{Name: "original-equals-returned", Check: func(original, _, returned string) (AuditFinding, bool) {
			return AuditFinding{Severity: SeveritySuspect, Message: "returned file equals the unsigned original: partner may have signed the wrong document"}, sameHash(original, returned)
		}},
	}
}

// HashAuditor grades the original, signed and returned hashes of a document.
// It has no side effects.
type HashAuditor struct {
	rules []AuditRule
}

// NewHashAuditor returns an auditor running the default rules followed by extra.
func NewHashAuditor(extra ...AuditRule) *HashAuditor {
	return &HashAuditor{rules: append(DefaultAuditRules(), extra...)}
}

func (a *HashAuditor) AuditHashes(original, signed, returned string) AuditReport {
	report := AuditReport{Status: AuditValid, Findings: []AuditFinding{}, Warnings: []string{}}
	for _, rule := range a.rules {
		finding, ok := rule.Check(original, signed, returned)
		if !ok {
			continue
		}
		finding.Rule = rule.Name
		report.Findings = append(report.Findings, finding)
		switch finding.Severity {
		case SeverityCorrupt:
			report.Status = AuditCorrupt
			report.Warnings = append(report.Warnings, finding.Message)
		case SeveritySuspect:
			if report.Status != AuditCorrupt {
				report.Status = AuditSuspect
			}
			report.Warnings = append(report.Warnings, finding.Message)
		}
	}

	switch report.Status {
	case AuditCorrupt:
		report.Recommendation = "Do not rely on this document; request a new signed copy."
	case AuditSuspect:
		report.Recommendation = "Review the document manually before accepting the confirmation."
	default:
		report.Recommendation = "Hash chain is consistent; no action needed."
	}
	return report
}
