package services

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func toLower(s string) string { return strings.ToLower(s) }

func TestApplyPlaceholders(t *testing.T) {
	v := PlaceholderValues{
		PartnerName:        "Alfa SRL",
		PartnerCUI:         "RO111",
		BalanceDate:        time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		RegistrationNumber: 42,
		SenderName:         "Ana Pop",
		CompanyName:        "Firma Mea SRL",
		CurrentDate:        time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
	}
	tests := []struct {
		in   string
		want string
	}{
		{"{NUME_PARTENER}", "Alfa SRL"},
		{"[NUME_PARTENER]", "Alfa SRL"},
		{"{DENUMIRE_PARTENER} / {COD_FISCAL}", "Alfa SRL / RO111"},
		{"{DATA_SOLD} {DATĂ_SOLD} [PERIOADA] {PERIOADĂ_CONFIRMARE}", "31.12.2024 31.12.2024 31.12.2024 31.12.2024"},
		{"Nr. {NR_DOCUMENT} / [NUMĂR_ÎNREGISTRARE]", "Nr. 42 / 42"},
		{"{NUME_COMPANIE}", "Firma Mea SRL"},
		{"{DATA} {DATA_CURENTA}", "10.01.2025 10.01.2025"},
		{"{NECUNOSCUT} stays", "{NECUNOSCUT} stays"},
		{"{ADRESA_PARTENER}", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ApplyPlaceholders(tt.in, v), tt.in)
	}
}

func TestHTMLToText(t *testing.T) {
	in := "<p>Stimate <b>partener</b>,</p><p>Va rugam   confirmati.</p><br/><ul><li>unu</li><li>doi</li></ul>"
	assert.Equal(t, "Stimate partener,\nVa rugam confirmati.\nunu\ndoi", HTMLToText(in))
	assert.Equal(t, "text simplu", HTMLToText("text   simplu"))
	assert.Equal(t, "a & b", HTMLToText("a &amp; b"))
}

func TestDocumentName(t *testing.T) {
	date := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "CERERE DE CONFIRMARE DE SOLD Nr. 42 31.12.2024 - ACME SRL.pdf", DocumentName(42, date, "ACME SRL"))
	assert.Equal(t, "CERERE DE CONFIRMARE DE SOLD Nr. 7 31.12.2024 - A B C D.pdf", DocumentName(7, date, `A/B:C  "D"`))
}
