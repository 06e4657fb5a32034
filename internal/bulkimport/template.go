package bulkimport

import (
	"bytes"
	"encoding/csv"
	"strings"
)

// templateInstructions renders as comment lines above the header so the
// downloaded file explains itself and still feeds straight back into ParseCSV.
var templateInstructions = []string{
	"# Product import template.",
	"# Required columns: sku, name, price. All other columns may be left empty.",
	"# tags, images, colors and sizes take comma-separated values inside one quoted cell.",
	"# Keep the header row; delete the example row before importing your data.",
}

// templateExample is one filled-in row demonstrating every column.
var templateExample = []string{
	"SHOE-TRAIL-01",
	"Trail Running Shoe",
	"89.99",
	"Lightweight trail shoe with a grippy outsole",
	"Summit",
	"Footwear",
	"Running",
	"Trail",
	"Shoes",
	"trail, running, outdoor",
	"https://cdn.example.com/shoe-trail-01.jpg",
	"black, red",
	"8, 9, 10, 11",
}

// TemplateCSV renders the import template: instruction comments, the header
// row, and one example row.
func TemplateCSV() []byte {
	var buf bytes.Buffer
	buf.WriteString(strings.Join(templateInstructions, "\n"))
	buf.WriteByte('\n')

	writer := csv.NewWriter(&buf)
	_ = writer.Write(csvColumns)
	_ = writer.Write(templateExample)
	writer.Flush()

	return buf.Bytes()
}

// TemplateFilename is the suggested download name for the template.
const TemplateFilename = "product-import-template.csv"
