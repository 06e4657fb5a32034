package bulkimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aioutlet/product-service/internal/catalog"
)

// Import files carry a fixed column set. The header row names the columns in
// any order and any letter case; unknown columns are rejected so a typo in a
// header cannot silently drop the data under it. Lines starting with '#' are
// instruction comments and are skipped, which lets the downloadable template
// round-trip through the parser unchanged.
const (
	colSKU         = "sku"
	colName        = "name"
	colPrice       = "price"
	colDescription = "description"
	colBrand       = "brand"
	colDepartment  = "department"
	colCategory    = "category"
	colSubcategory = "subcategory"
	colProductType = "producttype"
	colTags        = "tags"
	colImages      = "images"
	colColors      = "colors"
	colSizes       = "sizes"
)

// csvColumns is the canonical header order used by the template.
var csvColumns = []string{
	"sku", "name", "price", "description", "brand",
	"department", "category", "subcategory", "productType",
	"tags", "images", "colors", "sizes",
}

// requiredColumns must appear in the header and be non-empty in every row.
var requiredColumns = []string{colSKU, colName, colPrice}

// ParseResult is the outcome of validating an import file. Rows holds the
// rows that passed every cell check; RowErrors holds one entry per bad cell.
// A row with any error is excluded from Rows, so InvalidRows can be smaller
// than len(RowErrors).
type ParseResult struct {
	Rows        []Row
	RowErrors   []RowError
	TotalRows   int
	InvalidRows int
}

// ParseCSV reads and validates an import file. Structural problems that make
// the rest of the file untrustworthy (unreadable header, unknown or missing
// columns, malformed quoting) fail the whole parse with ErrValidation;
// per-cell problems become RowErrors and the parse continues.
func ParseCSV(r io.Reader) (*ParseResult, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: file is empty", catalog.ErrValidation)
		}
		return nil, fmt.Errorf("%w: unreadable header row: %v", catalog.ErrValidation, err)
	}

	columns, err := mapHeader(header)
	if err != nil {
		return nil, err
	}

	validator := catalog.NewValidator()
	result := &ParseResult{}
	seenSKUs := make(map[string]int)

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) && errors.Is(parseErr.Err, csv.ErrFieldCount) {
				result.TotalRows++
				result.InvalidRows++
				result.RowErrors = append(result.RowErrors, RowError{
					RowNumber:   parseErr.Line,
					Description: fmt.Sprintf("row has %d cells, header has %d", len(record), len(header)),
					Suggestion:  "match the column count of the header row",
				})
				continue
			}
			return nil, fmt.Errorf("%w: malformed csv: %v", catalog.ErrValidation, err)
		}

		if blankRecord(record) {
			continue
		}

		// Physical file line of this record, counting the header as line 1.
		line, _ := reader.FieldPos(0)

		result.TotalRows++
		row, rowErrs := validateRecord(validator, columns, record, line)

		if len(rowErrs) == 0 {
			if prior, dup := seenSKUs[strings.ToLower(row.SKU)]; dup {
				rowErrs = append(rowErrs, RowError{
					RowNumber:    line,
					FieldName:    "sku",
					Description:  fmt.Sprintf("sku repeats row %d of this file", prior),
					Suggestion:   "give every row a distinct sku",
					CurrentValue: row.SKU,
				})
			} else {
				seenSKUs[strings.ToLower(row.SKU)] = line
			}
		}

		if len(rowErrs) > 0 {
			result.InvalidRows++
			result.RowErrors = append(result.RowErrors, rowErrs...)
			continue
		}

		result.Rows = append(result.Rows, row)
	}

	return result, nil
}

// mapHeader resolves each header cell to a known column, case-insensitively.
func mapHeader(header []string) (map[string]int, error) {
	known := map[string]bool{
		colSKU: true, colName: true, colPrice: true,
		colDescription: true, colBrand: true,
		colDepartment: true, colCategory: true, colSubcategory: true,
		colProductType: true, colTags: true, colImages: true,
		colColors: true, colSizes: true,
	}

	columns := make(map[string]int, len(header))
	for i, cell := range header {
		name := strings.ToLower(strings.TrimSpace(cell))
		if !known[name] {
			return nil, fmt.Errorf("%w: unknown column %q in header", catalog.ErrValidation, strings.TrimSpace(cell))
		}
		if _, dup := columns[name]; dup {
			return nil, fmt.Errorf("%w: column %q appears twice in header", catalog.ErrValidation, name)
		}
		columns[name] = i
	}

	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("%w: header is missing required column %q", catalog.ErrValidation, name)
		}
	}

	return columns, nil
}

// validateRecord checks every cell of one data row and assembles the row on
// success. All cells are checked even after the first failure so the error
// report names every problem in one pass.
func validateRecord(validator *catalog.Validator, columns map[string]int, record []string, line int) (Row, []RowError) {
	cell := func(name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var rowErrs []RowError

	sku := cell(colSKU)
	if sku == "" {
		rowErrs = append(rowErrs, RowError{
			RowNumber:   line,
			FieldName:   "sku",
			Description: "sku is required",
			Suggestion:  "fill in a unique sku of letters, digits, '.', '_' or '-'",
		})
	} else if err := validator.ValidateSKU(sku); err != nil {
		rowErrs = append(rowErrs, RowError{
			RowNumber:    line,
			FieldName:    "sku",
			Description:  trimSentinel(err),
			Suggestion:   "use only letters, digits, '.', '_' and '-', at most 100 characters",
			CurrentValue: sku,
		})
	}

	name := cell(colName)
	switch {
	case name == "":
		rowErrs = append(rowErrs, RowError{
			RowNumber:   line,
			FieldName:   "name",
			Description: "name is required",
			Suggestion:  "fill in the product name",
		})
	case len(name) > 500:
		rowErrs = append(rowErrs, RowError{
			RowNumber:   line,
			FieldName:   "name",
			Description: fmt.Sprintf("name is %d characters, the limit is 500", len(name)),
			Suggestion:  "shorten the product name",
		})
	}

	var price float64
	priceCell := cell(colPrice)
	switch {
	case priceCell == "":
		rowErrs = append(rowErrs, RowError{
			RowNumber:   line,
			FieldName:   "price",
			Description: "price is required",
			Suggestion:  "fill in a non-negative amount, e.g. 19.99",
		})
	default:
		parsed, err := strconv.ParseFloat(priceCell, 64)
		switch {
		case err != nil:
			rowErrs = append(rowErrs, RowError{
				RowNumber:    line,
				FieldName:    "price",
				Description:  "price is not a number",
				Suggestion:   "use digits with an optional decimal point, e.g. 19.99",
				CurrentValue: priceCell,
			})
		case parsed < 0:
			rowErrs = append(rowErrs, RowError{
				RowNumber:    line,
				FieldName:    "price",
				Description:  "price cannot be negative",
				Suggestion:   "use zero or a positive amount",
				CurrentValue: priceCell,
			})
		default:
			price = parsed
		}
	}

	row := Row{
		RowNumber:   line,
		SKU:         sku,
		Name:        name,
		Price:       price,
		Description: cell(colDescription),
		Brand:       cell(colBrand),
		Department:  cell(colDepartment),
		Category:    cell(colCategory),
		Subcategory: cell(colSubcategory),
		ProductType: cell(colProductType),
		Tags:        splitList(cell(colTags)),
		Images:      splitList(cell(colImages)),
		Colors:      splitList(cell(colColors)),
		Sizes:       splitList(cell(colSizes)),
	}

	return row, rowErrs
}

// splitList turns a comma-separated cell into trimmed entries, dropping
// empties.
func splitList(cell string) []string {
	if cell == "" {
		return nil
	}

	parts := strings.Split(cell, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}

	if len(out) == 0 {
		return nil
	}

	return out
}

// blankRecord reports whether every cell is empty. Spreadsheet exports often
// end with rows of bare separators.
func blankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// trimSentinel strips the leading classification prefix from a validator
// error so row reports read as plain sentences.
func trimSentinel(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, ": "); idx >= 0 {
		return msg[idx+2:]
	}
	return msg
}
