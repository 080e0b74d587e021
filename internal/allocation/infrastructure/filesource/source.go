package filesource

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	allocation "netgen-allocation/internal/allocation/domain"
)

// ErrNoTables is returned when none of the input tables can be found.
var ErrNoTables = errors.New("allocation filesource: no input tables found")

// CSVSource reads <dir>/<table>.csv for every input table. Missing files are
// treated as empty tables.
type CSVSource struct {
	Dir string
}

// NewCSVSource constructs a CSVSource.
func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{Dir: dir}
}

// Load parses the tables and restricts them to scope.
func (s *CSVSource) Load(ctx context.Context, scope allocation.Scope) (allocation.Inputs, error) {
	_ = ctx
	tables := make(map[string]*table, len(TableNames))
	for _, name := range TableNames {
		records, err := readCSV(filepath.Join(s.Dir, name+".csv"))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return allocation.Inputs{}, fmt.Errorf("%s: %w", name, err)
		}
		t, err := newTable(name, records)
		if err != nil {
			return allocation.Inputs{}, err
		}
		tables[name] = t
	}
	if len(tables) == 0 {
		return allocation.Inputs{}, fmt.Errorf("%w in %s", ErrNoTables, s.Dir)
	}
	in, err := parseInputs(tables)
	if err != nil {
		return allocation.Inputs{}, err
	}
	return scope.Filter(in), nil
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	return reader.ReadAll()
}

// WorkbookSource reads one sheet per input table from an XLSX workbook.
// Sheets are named after the tables; missing sheets are empty tables.
type WorkbookSource struct {
	Path string
}

// NewWorkbookSource constructs a WorkbookSource.
func NewWorkbookSource(path string) *WorkbookSource {
	return &WorkbookSource{Path: path}
}

// Load parses the sheets and restricts them to scope.
func (s *WorkbookSource) Load(ctx context.Context, scope allocation.Scope) (allocation.Inputs, error) {
	_ = ctx
	f, err := excelize.OpenFile(s.Path)
	if err != nil {
		return allocation.Inputs{}, err
	}
	defer f.Close()

	present := make(map[string]bool)
	for _, sheet := range f.GetSheetList() {
		present[sheet] = true
	}
	tables := make(map[string]*table, len(TableNames))
	for _, name := range TableNames {
		if !present[name] {
			continue
		}
		records, err := f.GetRows(name)
		if err != nil {
			return allocation.Inputs{}, fmt.Errorf("%s: %w", name, err)
		}
		t, err := newTable(name, records)
		if err != nil {
			return allocation.Inputs{}, err
		}
		tables[name] = t
	}
	if len(tables) == 0 {
		return allocation.Inputs{}, fmt.Errorf("%w in %s", ErrNoTables, s.Path)
	}
	in, err := parseInputs(tables)
	if err != nil {
		return allocation.Inputs{}, err
	}
	return scope.Filter(in), nil
}

// Loader loads the input tables of a scope.
type Loader interface {
	Load(ctx context.Context, scope allocation.Scope) (allocation.Inputs, error)
}

// Open picks a CSVSource for a directory and a WorkbookSource for a file.
func Open(path string) (Loader, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return NewCSVSource(path), nil
	}
	return NewWorkbookSource(path), nil
}
