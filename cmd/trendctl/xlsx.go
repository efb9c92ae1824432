package main

import (
	"archive/zip"
	"fmt"
	"os"
	"strconv"
	"strings"

	"trendaggr/internal/trend"
)

// encodeXLSX writes a minimal single-sheet OOXML spreadsheet: just
// enough of the format (content types, relationships, workbook,
// worksheet XML) for a real spreadsheet application to open it, with
// no styling. No example repo in the pack imports a spreadsheet
// library, so this is written against archive/zip + manual XML rather
// than pulling in a new dependency for one CLI output format.
func encodeXLSX(f *os.File, ranked []trend.FusedKeyword) error {
	zw := zip.NewWriter(f)

	files := map[string]string{
		"[Content_Types].xml": contentTypesXML,
		"_rels/.rels":         relsXML,
		"xl/workbook.xml":     workbookXML,
		"xl/_rels/workbook.xml.rels": workbookRelsXML,
		"xl/worksheets/sheet1.xml":   sheetXML(ranked),
	}

	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("xlsx: create entry %s: %w", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			return fmt.Errorf("xlsx: write entry %s: %w", name, err)
		}
	}

	return zw.Close()
}

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
  <Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
  <Default Extension="xml" ContentType="application/xml"/>
  <Override PartName="/xl/workbook.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.sheet.main+xml"/>
  <Override PartName="/xl/worksheets/sheet1.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.worksheet+xml"/>
</Types>`

const relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="xl/workbook.xml"/>
</Relationships>`

const workbookXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
  <sheets>
    <sheet name="Trends" sheetId="1" r:id="rId1"/>
  </sheets>
</workbook>`

const workbookRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="worksheets/sheet1.xml"/>
</Relationships>`

func sheetXML(ranked []trend.FusedKeyword) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	b.WriteString(`<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>` + "\n")

	writeRow(&b, 1, []string{"rank", "keyword", "score", "sources"})
	for i, fk := range ranked {
		writeRow(&b, i+2, []string{
			strconv.Itoa(fk.Rank),
			fk.Keyword,
			strconv.Itoa(fk.Score),
			strconv.Itoa(len(fk.Sources)),
		})
	}

	b.WriteString(`</sheetData></worksheet>`)
	return b.String()
}

func writeRow(b *strings.Builder, rowIndex int, cells []string) {
	fmt.Fprintf(b, `<row r="%d">`, rowIndex)
	for i, cell := range cells {
		col := string(rune('A' + i))
		fmt.Fprintf(b, `<c r="%s%d" t="inlineStr"><is><t>%s</t></is></c>`, col, rowIndex, xmlEscape(cell))
	}
	b.WriteString(`</row>`)
}

func xmlEscape(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return replacer.Replace(s)
}
