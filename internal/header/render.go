package header

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"weather-coef/internal/coef"
)

const includeGuard = "MODEL_COEF_H"

// Render writes t as a C header in the layout produced by the training
// pipeline. Floats use six decimals with an f suffix.
func Render(w io.Writer, t *coef.Table) error {
	if err := t.Validate(); err != nil {
		return err
	}

	var b bytes.Buffer
	title := "// Weather prediction model coefficients"
	if t.Meta.Fallback {
		title += " (fall-back)"
	}
	b.WriteString(title + "\n")
	b.WriteString("// Generated by coefctl\n")
	if !t.Meta.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "// Generated: %s\n", t.Meta.GeneratedAt.Format(TimestampLayout))
	}
	if t.Meta.Samples > 0 {
		fmt.Fprintf(&b, "// Trained on %d samples\n", t.Meta.Samples)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "#ifndef %s\n#define %s\n\n", includeGuard, includeGuard)

	if n := t.Normalization; n != nil {
		b.WriteString("// Feature normalization\n")
		writeArray(&b, nameFeatureMeans, n.Means)
		b.WriteString("\n")
		writeArray(&b, nameFeatureScales, n.Scales)
		b.WriteString("\n")
	}

	b.WriteString("// Temperature model\n")
	writeModel(&b, t.Temperature)
	b.WriteString("\n")

	b.WriteString("// Humidity model\n")
	writeModel(&b, t.Humidity)
	b.WriteString("\n")

	if len(t.FeatureNames) > 0 {
		b.WriteString("// Feature order\n")
		fmt.Fprintf(&b, "// %s\n\n", strings.Join(t.FeatureNames, ", "))
	}

	if t.DeclaredFeatures > 0 {
		b.WriteString("// Number of features\n")
		fmt.Fprintf(&b, "const int %s = %d;\n\n", nameNumFeatures, t.DeclaredFeatures)
	}

	fmt.Fprintf(&b, "#endif // %s\n", includeGuard)

	if _, err := w.Write(b.Bytes()); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

// RenderBytes is Render into a byte slice.
func RenderBytes(t *coef.Table) ([]byte, error) {
	var b bytes.Buffer
	if err := Render(&b, t); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// FileName returns the conventional file name for t.
func FileName(t *coef.Table) string {
	if t.Meta.GeneratedAt.IsZero() {
		return "model_coef.h"
	}
	if t.Meta.Fallback {
		return "model_coef_fallback_" + t.Meta.GeneratedAt.Format(IDLayout) + ".h"
	}
	return "model_coef_" + t.Meta.GeneratedAt.Format(IDLayout) + ".h"
}

func writeModel(b *bytes.Buffer, m coef.Model) {
	fmt.Fprintf(b, "const float %s_intercept = %s;\n", m.Name, FormatFloat(m.Intercept))
	writeArray(b, m.Name+"_coef", m.Coefficients)
}

func writeArray(b *bytes.Buffer, name string, values []float64) {
	formatted := make([]string, len(values))
	for i, v := range values {
		formatted[i] = FormatFloat(v)
	}
	fmt.Fprintf(b, "const float %s[] = {%s};\n", name, strings.Join(formatted, ", "))
}

// FormatFloat renders v the way the header generator does: %.6f plus an
// f suffix.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64) + "f"
}
