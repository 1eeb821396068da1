package services

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const displayDateLayout = "02.01.2006"

// PlaceholderValues are the values substituted into email templates.
type PlaceholderValues struct {
	PartnerName        string
	PartnerCUI         string
	PartnerAddress     string
	Representative     string
	BalanceDate        time.Time
	RegistrationNumber int64
	DocumentName       string
	SenderName         string
	SenderEmail        string
	SenderRole         string
	CompanyName        string
	CurrentDate        time.Time
}

type placeholder struct {
	names []string
	value func(v PlaceholderValues) string
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(displayDateLayout)
}

// placeholders lists every accepted token name. Romanian names with
// diacritics and their ASCII spellings resolve to the same value.
var placeholders = []placeholder{
	{[]string{"NUME_PARTENER", "DENUMIRE_PARTENER"}, func(v PlaceholderValues) string { return v.PartnerName }},
	{[]string{"CUI_PARTENER", "COD_FISCAL"}, func(v PlaceholderValues) string { return v.PartnerCUI }},
	{[]string{"ADRESA_PARTENER", "ADRESĂ_PARTENER"}, func(v PlaceholderValues) string { return v.PartnerAddress }},
	{[]string{"REPREZENTANT_PARTENER"}, func(v PlaceholderValues) string { return v.Representative }},
	{[]string{"DATA_SOLD", "DATĂ_SOLD", "PERIOADA", "PERIOADĂ", "PERIOADA_CONFIRMARE", "PERIOADĂ_CONFIRMARE"}, func(v PlaceholderValues) string { return formatDate(v.BalanceDate) }},
	{[]string{"NR_DOCUMENT", "NUMAR_DOCUMENT", "NUMĂR_DOCUMENT", "NUMAR_INREGISTRARE", "NUMĂR_ÎNREGISTRARE"}, func(v PlaceholderValues) string {
		if v.RegistrationNumber == 0 {
			return ""
		}
		return strconv.FormatInt(v.RegistrationNumber, 10)
	}},
	{[]string{"NUME_DOCUMENT"}, func(v PlaceholderValues) string { return v.DocumentName }},
	{[]string{"NUME_EXPEDITOR", "NUME_UTILIZATOR"}, func(v PlaceholderValues) string { return v.SenderName }},
	{[]string{"EMAIL_EXPEDITOR"}, func(v PlaceholderValues) string { return v.SenderEmail }},
	{[]string{"FUNCTIE_EXPEDITOR", "FUNCȚIE_EXPEDITOR"}, func(v PlaceholderValues) string { return v.SenderRole }},
	{[]string{"NUME_COMPANIE"}, func(v PlaceholderValues) string { return v.CompanyName }},
	{[]string{"DATA_CURENTA", "DATĂ_CURENTĂ", "DATA"}, func(v PlaceholderValues) string { return formatDate(v.CurrentDate) }},
}

// ApplyPlaceholders replaces {TOKEN} and [TOKEN] occurrences of every known
// placeholder. Unknown tokens are left as they are.
func ApplyPlaceholders(s string, v PlaceholderValues) string {
	var pairs []string
	for _, p := range placeholders {
		value := p.value(v)
		for _, name := range p.names {
			pairs = append(pairs, "{"+name+"}", value, "["+name+"]", value)
		}
	}
	return strings.NewReplacer(pairs...).Replace(s)
}

var blockTags = map[string]bool{
	"p": true, "br": true, "div": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// HTMLToText derives a plain-text body from an HTML one by dropping markup.
func HTMLToText(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return tidyText(b.String())
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if blockTags[string(name)] {
				b.WriteByte('\n')
			}
		}
	}
}

func tidyText(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
