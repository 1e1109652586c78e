package template

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/alenia-group/quotation-cli/internal/model"
)

// Fields maps placeholder names to their replacement values. Placeholders
// appear in templates as {{NAME}}.
type Fields map[string]string

// FieldsFor builds the placeholder set for one quotation and its assigned
// BoondManager reference.
func FieldsFor(q model.Quotation, reference string) Fields {
	return Fields{
		"REFERENCE":      reference,
		"RESOURCE_NAME":  q.ResourceName,
		"TRIGRAMME":      q.ResourceTrigramme,
		"TJM":            fmt.Sprintf("%.2f", q.TJM),
		"QUANTITY":       fmt.Sprintf("%.1f", q.Quantity),
		"TOTAL_HT":       fmt.Sprintf("%.2f", q.TotalHT),
		"TOTAL_TTC":      fmt.Sprintf("%.2f", q.TotalTTC),
		"PERIOD_START":   q.Period.Start.Format("02/01/2006"),
		"PERIOD_END":     q.Period.End.Format("02/01/2006"),
		"MAX_PRICE":      fmt.Sprintf("%.2f", q.MaxPrice),
		"COMPLEXITY":     q.Complexity,
		"DOMAIN_CODE":    q.DomainCode,
		"ACTIVITY_CODE":  q.ActivityCode,
		"SOW_REFERENCE":  q.SowReference,
		"COMMENTS":       q.Comments,
	}
}

// Fill replaces placeholders in a template, in memory. DOCX templates are
// rewritten entry by entry (document body, headers and footers); anything
// else is treated as plain text.
func Fill(templateData []byte, fileName string, fields Fields) ([]byte, error) {
	if filepath.Ext(fileName) == ".docx" {
		return fillDocx(templateData, fields)
	}
	return []byte(replaceAll(string(templateData), fields, false)), nil
}

func fillDocx(data []byte, fields Fields) ([]byte, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, eris.Wrap(err, "template: open docx")
	}

	var out bytes.Buffer
	writer := zip.NewWriter(&out)

	for _, f := range reader.File {
		rc, err := f.Open()
		if err != nil {
			return nil, eris.Wrapf(err, "template: open entry %s", f.Name)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, eris.Wrapf(err, "template: read entry %s", f.Name)
		}

		if isDocxTextPart(f.Name) {
			content = []byte(replaceAll(string(content), fields, true))
		}

		w, err := writer.CreateHeader(&zip.FileHeader{
			Name:   f.Name,
			Method: f.Method,
		})
		if err != nil {
			return nil, eris.Wrapf(err, "template: create entry %s", f.Name)
		}
		if _, err := w.Write(content); err != nil {
			return nil, eris.Wrapf(err, "template: write entry %s", f.Name)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, eris.Wrap(err, "template: close docx")
	}
	return out.Bytes(), nil
}

// isDocxTextPart reports whether a docx archive entry carries visible text.
func isDocxTextPart(name string) bool {
	if name == "word/document.xml" {
		return true
	}
	base := filepath.Base(name)
	return filepath.Dir(name) == "word" &&
		(strings.HasPrefix(base, "header") || strings.HasPrefix(base, "footer")) &&
		strings.HasSuffix(base, ".xml")
}

func replaceAll(content string, fields Fields, escapeXML bool) string {
	pairs := make([]string, 0, len(fields)*2)
	for name, value := range fields {
		if escapeXML {
			value = xmlEscape(value)
		}
		pairs = append(pairs, "{{"+name+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(content)
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func xmlEscape(s string) string {
	return xmlEscaper.Replace(s)
}

// SafeFileName turns a resource name into a filesystem-safe ASCII slug:
// diacritics are stripped and separators collapse to underscores.
func SafeFileName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	ascii, _, err := transform.String(t, name)
	if err != nil {
		ascii = name
	}

	var b strings.Builder
	lastUnderscore := false
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}
