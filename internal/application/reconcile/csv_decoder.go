package reconcile

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	domain "github.com/mohammadpnp/account-reconcile/internal/domain/reconcile"
)

var requiredColumns = []string{"action", "email"}

var knownColumns = map[string]struct{}{
	"action": {}, "email": {}, "username": {}, "groups_mode": {}, "groups": {},
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeCSV turns an uploaded file into desired rows. Any schema or syntax problem rejects
// the whole file with a *domain.ValidationError; no partial result is returned.
func DecodeCSV(raw []byte) ([]domain.DesiredRow, error) {
	text := bytes.ToValidUTF8(bytes.TrimPrefix(raw, utf8BOM), []byte("\uFFFD"))

	r := csv.NewReader(bytes.NewReader(text))
	r.FieldsPerRecord = -1
	// Quotes inside unquoted cells are literal text, e.g. John "JJ" Doe.
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, domain.NewMissingColumnsError(requiredColumns, requiredColumns)
		}
		return nil, &domain.ValidationError{Message: fmt.Sprintf("malformed CSV header: %v", err)}
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}

	missing := make([]string, 0, len(requiredColumns))
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, domain.NewMissingColumnsError(missing, requiredColumns)
	}

	rows := make([]domain.DesiredRow, 0)
	for index := 0; ; index++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &domain.ValidationError{Message: fmt.Sprintf("malformed CSV: %v", err)}
		}

		cell := func(name string) string {
			i, ok := columns[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		row := domain.DesiredRow{
			RowNumber:  index + 2,
			Action:     cell("action"),
			Email:      domain.NormalizeEmail(cell("email")),
			Username:   cell("username"),
			GroupsMode: cell("groups_mode"),
			GroupsCell: cell("groups"),
		}
		for name := range columns {
			if _, known := knownColumns[name]; known {
				continue
			}
			if row.Extra == nil {
				row.Extra = map[string]string{}
			}
			row.Extra[name] = cell(name)
		}
		rows = append(rows, row)
	}

	return rows, nil
}
