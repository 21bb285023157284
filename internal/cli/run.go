package cli

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tably/tably/internal/engine"
	"github.com/tably/tably/internal/expr"
	"github.com/tably/tably/internal/shape"
	"github.com/tably/tably/internal/stream"
)

// QueryFile is the YAML description of one query: named CSV-backed
// tables and an operation pipeline over one of them.
type QueryFile struct {
	Tables map[string]TableSource `yaml:"tables"`
	Query  Pipeline               `yaml:"query"`
}

// TableSource binds a table name to a schema and a CSV file.
type TableSource struct {
	Schema string `yaml:"schema"`
	CSV    string `yaml:"csv"`
}

// Pipeline is an ordered list of operations applied to a source table.
type Pipeline struct {
	From string   `yaml:"from"`
	Ops  []OpSpec `yaml:"ops"`
}

// OpSpec is one pipeline step. Exactly one of the fields may be set.
type OpSpec struct {
	Project  []string    `yaml:"project,omitempty"`
	Filter   *FilterSpec `yaml:"filter,omitempty"`
	Sort     *SortSpec   `yaml:"sort,omitempty"`
	Head     *int64      `yaml:"head,omitempty"`
	Distinct bool        `yaml:"distinct,omitempty"`
}

// FilterSpec compares a column against a constant.
type FilterSpec struct {
	Field string `yaml:"field"`
	Op    string `yaml:"op"`
	Value any    `yaml:"value"`
}

// SortSpec orders rows by named columns.
type SortSpec struct {
	By         []string `yaml:"by"`
	Descending bool     `yaml:"descending"`
}

// QueryResult is the JSON payload of a run: column names and rows in
// result order.
type QueryResult struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <query.yaml>",
		Short: "Run a query pipeline over CSV data",
		Long: `Run a YAML query description: load the CSV tables it names, build
the expression pipeline, evaluate it on the stream backend, and print
the result.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(rootOpts, args[0], cmd)
		},
	}
}

func runQuery(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("reading query file: %v", err), nil)
		return WrapExitError(ExitCommandError, "reading query file", err)
	}
	var qf QueryFile
	if err := yaml.Unmarshal(raw, &qf); err != nil {
		_ = formatter.Error(ErrCodeBadQuery, fmt.Sprintf("parsing query file: %v", err), nil)
		return WrapExitError(ExitCommandError, "parsing query file", err)
	}

	src, ok := qf.Tables[qf.Query.From]
	if !ok {
		msg := fmt.Sprintf("query source %q is not a declared table", qf.Query.From)
		_ = formatter.Error(ErrCodeBadQuery, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	sym, err := expr.TableSymbol(qf.Query.From, src.Schema)
	if err != nil {
		_ = formatter.Error(ErrCodeBadSchema, fmt.Sprintf("table %q: %v", qf.Query.From, err), nil)
		return WrapExitError(ExitFailure, "invalid schema", err)
	}
	rec := mustRowRecord(sym)

	e, err := buildPipeline(sym, qf.Query.Ops)
	if err != nil {
		_ = formatter.Error(ErrCodeBadExpression, err.Error(), nil)
		return WrapExitError(ExitFailure, "building pipeline", err)
	}
	formatter.VerboseLog("Expression: %s", e)

	rows, err := readCSV(resolvePath(path, src.CSV), rec)
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "reading CSV", err)
	}
	formatter.VerboseLog("Loaded %d row(s) from %s", len(rows), src.CSV)

	eng := stream.NewEngine()
	v, err := eng.Compute(e, map[expr.Expr]any{sym: engine.NewTable(rows...)})
	if err != nil {
		_ = formatter.Error(ErrCodeQueryFailed, err.Error(), nil)
		return WrapExitError(ExitFailure, "evaluating query", err)
	}

	ds, ok := v.(engine.Dataset)
	if !ok {
		msg := fmt.Sprintf("query produced %T, want a table", v)
		_ = formatter.Error(ErrCodeQueryFailed, msg, nil)
		return NewExitError(ExitFailure, msg)
	}
	out, err := engine.Rows(ds)
	if err != nil {
		_ = formatter.Error(ErrCodeQueryFailed, err.Error(), nil)
		return WrapExitError(ExitFailure, "draining result", err)
	}

	result := QueryResult{Columns: expr.Names(e)}
	for _, r := range out {
		result.Rows = append(result.Rows, r.([]any))
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	renderText(formatter.Writer, result)
	return nil
}

// buildPipeline folds the operation list over the source symbol.
func buildPipeline(sym *expr.Symbol, ops []OpSpec) (expr.Expr, error) {
	var cur expr.Expr = sym
	for i, op := range ops {
		next, err := applyOp(cur, op)
		if err != nil {
			return nil, fmt.Errorf("op %d: %w", i+1, err)
		}
		cur = next
	}
	return cur, nil
}

func applyOp(cur expr.Expr, op OpSpec) (expr.Expr, error) {
	switch {
	case len(op.Project) > 0:
		return expr.NewProjection(cur, op.Project...)

	case op.Filter != nil:
		o, ok := expr.ParseOp(op.Filter.Op)
		if !ok {
			return nil, fmt.Errorf("unknown operator %q", op.Filter.Op)
		}
		field, err := expr.NewField(cur, op.Filter.Field)
		if err != nil {
			return nil, err
		}
		lit, err := expr.NewLiteral(normalizeYAML(op.Filter.Value))
		if err != nil {
			return nil, err
		}
		pred, err := expr.NewBroadcast(o, field, lit)
		if err != nil {
			return nil, err
		}
		return expr.NewSelection(cur, pred)

	case op.Sort != nil:
		return expr.NewSort(cur, !op.Sort.Descending, op.Sort.By...)

	case op.Head != nil:
		return expr.NewHead(cur, *op.Head)

	case op.Distinct:
		return expr.NewDistinct(cur)
	}
	return nil, fmt.Errorf("empty pipeline step")
}

// normalizeYAML widens decoded YAML numbers so literal construction
// sees supported kinds.
func normalizeYAML(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case float32:
		return float64(n)
	}
	return v
}

// readCSV loads a headered CSV file, converting each cell to the
// record's field type. Header order may differ from schema order.
func readCSV(path string, rec shape.Record) ([]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening CSV: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	colFor := make([]int, len(rec.Fields))
	for i, field := range rec.Fields {
		colFor[i] = -1
		for j, h := range header {
			if strings.TrimSpace(h) == field.Name {
				colFor[i] = j
				break
			}
		}
		if colFor[i] < 0 {
			return nil, fmt.Errorf("CSV is missing column %q", field.Name)
		}
	}

	var rows []any
	for line := 2; ; line++ {
		cells, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV: %w", err)
		}
		row := make([]any, len(rec.Fields))
		for i, field := range rec.Fields {
			v, err := convertCell(cells[colFor[i]], field.Type)
			if err != nil {
				return nil, fmt.Errorf("line %d, column %q: %w", line, field.Name, err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func convertCell(cell string, typ shape.Shape) (any, error) {
	switch shape.Unwrap(typ) {
	case shape.Int:
		return strconv.ParseInt(cell, 10, 64)
	case shape.Float:
		return strconv.ParseFloat(cell, 64)
	case shape.Bool:
		return strconv.ParseBool(cell)
	case shape.DateTime:
		return time.Parse(time.RFC3339, cell)
	default:
		return cell, nil
	}
}

func renderText(w io.Writer, result QueryResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(result.Columns, "\t"))
	for _, row := range result.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprintf("%v", v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
	fmt.Fprintf(w, "(%d row(s))\n", len(result.Rows))
}

// resolvePath resolves a data path relative to the query file.
func resolvePath(queryPath, dataPath string) string {
	if filepath.IsAbs(dataPath) {
		return dataPath
	}
	return filepath.Join(filepath.Dir(queryPath), dataPath)
}

// mustRowRecord extracts the row record of a table symbol. TableSymbol
// always produces one.
func mustRowRecord(sym *expr.Symbol) shape.Record {
	row, _ := shape.RowOf(sym.Shape())
	rec, _ := shape.Unwrap(row).(shape.Record)
	return rec
}
