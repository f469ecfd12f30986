package factory

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/warp/appropriation-engine/core"
)

// AliasImport is the content of an account alias sheet.
type AliasImport struct {
	Aliases []core.AccountAlias
	// Duplicates lists "main-activity" keys that occur more than once. The
	// last row wins.
	Duplicates []string
}

// ReadAccountAliases reads the first sheet of an XLSX workbook. The first
// row is a header; each following row holds main account number, activity
// number and alias. Rows with an empty cell are skipped.
func ReadAccountAliases(r io.Reader) (*AliasImport, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open alias workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	out := &AliasImport{}
	index := map[string]int{}
	for i, row := range rows {
		if i == 0 || len(row) < 3 {
			continue
		}
		alias := core.AccountAlias{
			MainAccountNumber: strings.TrimSpace(row[0]),
			ActivityNumber:    strings.TrimSpace(row[1]),
			Alias:             strings.TrimSpace(row[2]),
		}
		if alias.MainAccountNumber == "" || alias.ActivityNumber == "" || alias.Alias == "" {
			continue
		}
		key := alias.MainAccountNumber + "-" + alias.ActivityNumber
		if at, ok := index[key]; ok {
			out.Aliases[at] = alias
			out.Duplicates = append(out.Duplicates, key)
			continue
		}
		index[key] = len(out.Aliases)
		out.Aliases = append(out.Aliases, alias)
	}
	return out, nil
}
