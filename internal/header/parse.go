// Package header reads and writes the C coefficient headers that the
// firmware includes (model_coef*.h).
package header

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"

	"weather-coef/internal/coef"
)

// Constant names declared by generated headers
const (
	nameTempIntercept = "temp_intercept"
	nameTempCoef      = "temp_coef"
	nameHumIntercept  = "hum_intercept"
	nameHumCoef       = "hum_coef"
	nameFeatureMeans  = "feature_means"
	nameFeatureScales = "feature_scales"
	nameNumFeatures   = "NUM_FEATURES"
)

// TimestampLayout is the layout of the generation time comment.
const TimestampLayout = "2006-01-02 15:04:05"

// IDLayout formats a generation time into a table ID (matches the
// model_coef_YYYYMMDD_HHMMSS.h file names).
const IDLayout = "20060102_150405"

var (
	ErrSyntax     = errors.New("header has syntax errors")
	ErrIncomplete = errors.New("header is missing required constants")
)

var (
	timestampRe    = regexp.MustCompile(`(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})`)
	samplesRe      = regexp.MustCompile(`(?i)(?:dựa trên|trained on|based on)\s+(\d+)`)
	featureOrderRe = regexp.MustCompile(`(?i)(?:thứ tự các đặc trưng|feature order)`)
	fallbackRe     = regexp.MustCompile(`(?i)fall-?back`)
)

// declarations collected from one header
type parsed struct {
	scalars  map[string]float64
	arrays   map[string][]float64
	comments []string
}

// ParseFile reads and parses the header at path. The table ID is derived
// from the generation timestamp, or from the file name when the header
// carries none.
func ParseFile(ctx context.Context, path string) (*coef.Table, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	table, err := Parse(ctx, name, src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	table.Meta.Source = path
	return table, nil
}

// Parse builds a coefficient table from header source. name is used as
// the table ID when the header has no generation timestamp.
func Parse(ctx context.Context, name string, src []byte) (*coef.Table, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(c.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, ErrSyntax
	}

	p := &parsed{
		scalars: make(map[string]float64),
		arrays:  make(map[string][]float64),
	}
	if err := p.walk(root, src); err != nil {
		return nil, err
	}
	return p.table(name)
}

// walk visits nodes in document order so comments keep their sequence.
func (p *parsed) walk(node *sitter.Node, src []byte) error {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)

		switch child.Type() {
		case "comment":
			p.comments = append(p.comments, commentText(child.Content(src)))
		case "declaration":
			if err := p.declaration(child, src); err != nil {
				return err
			}
		default:
			if err := p.walk(child, src); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *parsed) declaration(node *sitter.Node, src []byte) error {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		decl := node.NamedChild(i)
		if decl.Type() != "init_declarator" {
			continue
		}

		declarator := decl.ChildByFieldName("declarator")
		value := decl.ChildByFieldName("value")
		if declarator == nil || value == nil {
			continue
		}
		name := identifier(declarator, src)

		switch value.Type() {
		case "initializer_list":
			values := make([]float64, 0, value.NamedChildCount())
			for j := 0; j < int(value.NamedChildCount()); j++ {
				element := value.NamedChild(j)
				if element.Type() == "comment" {
					continue
				}
				v, err := parseNumber(element.Content(src))
				if err != nil {
					return fmt.Errorf("%s[%d]: %w", name, j, err)
				}
				values = append(values, v)
			}
			p.arrays[name] = values
		default:
			v, err := parseNumber(value.Content(src))
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			p.scalars[name] = v
		}
	}
	return nil
}

func (p *parsed) table(name string) (*coef.Table, error) {
	var missing []string
	for _, n := range []string{nameTempIntercept, nameHumIntercept} {
		if _, ok := p.scalars[n]; !ok {
			missing = append(missing, n)
		}
	}
	for _, n := range []string{nameTempCoef, nameHumCoef} {
		if _, ok := p.arrays[n]; !ok {
			missing = append(missing, n)
		}
	}
	means, hasMeans := p.arrays[nameFeatureMeans]
	scales, hasScales := p.arrays[nameFeatureScales]
	if hasMeans != hasScales {
		if hasMeans {
			missing = append(missing, nameFeatureScales)
		} else {
			missing = append(missing, nameFeatureMeans)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrIncomplete, strings.Join(missing, ", "))
	}

	table := &coef.Table{
		ID: name,
		Temperature: coef.Model{
			Name:         coef.ModelTemperature,
			Intercept:    p.scalars[nameTempIntercept],
			Coefficients: p.arrays[nameTempCoef],
		},
		Humidity: coef.Model{
			Name:         coef.ModelHumidity,
			Intercept:    p.scalars[nameHumIntercept],
			Coefficients: p.arrays[nameHumCoef],
		},
	}
	if hasMeans {
		table.Normalization = &coef.Normalization{Means: means, Scales: scales}
	}
	if n, ok := p.scalars[nameNumFeatures]; ok {
		if n < 1 || n != math.Trunc(n) || n > math.MaxInt32 {
			return nil, fmt.Errorf("%w %q: %s must be a positive whole number, got %v", coef.ErrInvalidTable, name, nameNumFeatures, n)
		}
		table.DeclaredFeatures = int(n)
	}

	p.applyComments(table)
	if !table.Meta.GeneratedAt.IsZero() {
		table.ID = TableID(table.Meta.GeneratedAt, table.Meta.Fallback)
	}
	return table, nil
}

func (p *parsed) applyComments(table *coef.Table) {
	for i, text := range p.comments {
		if table.Meta.GeneratedAt.IsZero() {
			if m := timestampRe.FindStringSubmatch(text); m != nil {
				if ts, err := time.Parse(TimestampLayout, m[1]); err == nil {
					table.Meta.GeneratedAt = ts
				}
			}
		}
		if table.Meta.Samples == 0 {
			if m := samplesRe.FindStringSubmatch(text); m != nil {
				table.Meta.Samples, _ = strconv.Atoi(m[1])
			}
		}
		if fallbackRe.MatchString(text) {
			table.Meta.Fallback = true
		}
		if table.FeatureNames == nil && featureOrderRe.MatchString(text) && i+1 < len(p.comments) {
			table.FeatureNames = splitFeatureNames(p.comments[i+1])
		}
	}
}

// TableID formats the ID a generated header is registered under.
func TableID(generatedAt time.Time, fallback bool) string {
	id := generatedAt.Format(IDLayout)
	if fallback {
		id += "_fallback"
	}
	return id
}

func identifier(node *sitter.Node, src []byte) string {
	for node != nil && node.Type() != "identifier" {
		node = node.ChildByFieldName("declarator")
	}
	if node == nil {
		return ""
	}
	return node.Content(src)
}

func parseNumber(text string) (float64, error) {
	text = strings.Join(strings.Fields(text), "")
	text = strings.TrimRight(text, "fF")
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", text, err)
	}
	return v, nil
}

func commentText(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "//"):
		raw = strings.TrimPrefix(raw, "//")
	case strings.HasPrefix(raw, "/*"):
		raw = strings.TrimSuffix(strings.TrimPrefix(raw, "/*"), "*/")
	}
	return strings.TrimSpace(raw)
}

func splitFeatureNames(line string) []string {
	parts := strings.Split(line, ",")
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}
