package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"weather-coef/internal/coef"
	"weather-coef/internal/header"
)

const timeLayout = "2006-01-02 15:04:05"

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the built-in coefficient tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			active, err := a.registry.Active()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ACTIVE\tID\tGENERATED\tSAMPLES\tFEATURES\tNORMALIZED\tSTABLE")
			for _, t := range a.registry.List() {
				marker := ""
				if t.ID == active.ID {
					marker = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%t\t%t\n",
					marker, t.ID, generated(t), samples(t), t.NumFeatures(), t.Normalized(), !t.Unstable())
			}
			return w.Flush()
		},
	}
}

func generated(t *coef.Table) string {
	if t.Meta.GeneratedAt.IsZero() {
		return "-"
	}
	return t.Meta.GeneratedAt.Format(timeLayout)
}

func samples(t *coef.Table) string {
	if t.Meta.Samples == 0 {
		return "-"
	}
	return strconv.Itoa(t.Meta.Samples)
}

func (a *app) inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <id|file.h>",
		Short: "Show one coefficient table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.table(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return describe(cmd.OutOrStdout(), t)
		},
	}
}

func describe(out io.Writer, t *coef.Table) error {
	fmt.Fprintf(out, "ID:          %s\n", t.ID)
	fmt.Fprintf(out, "Generated:   %s\n", generated(t))
	fmt.Fprintf(out, "Samples:     %s\n", samples(t))
	fmt.Fprintf(out, "Features:    %d\n", t.NumFeatures())
	fmt.Fprintf(out, "Normalized:  %t\n", t.Normalized())
	fmt.Fprintf(out, "Fallback:    %t\n", t.Meta.Fallback)
	fmt.Fprintf(out, "Max |coef|:  %g\n", t.MaxAbsCoefficient())
	if t.Unstable() {
		fmt.Fprintf(out, "Warning:     coefficients exceed %g, predictions are not trustworthy\n", coef.LargeCoefficientLimit)
	}
	fmt.Fprintf(out, "Intercepts:  temp=%g hum=%g\n\n", t.Temperature.Intercept, t.Humidity.Intercept)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if t.Normalized() {
		fmt.Fprintln(w, "#\tFEATURE\tMEAN\tSCALE\tTEMP\tHUM")
	} else {
		fmt.Fprintln(w, "#\tFEATURE\tTEMP\tHUM")
	}
	for i := range t.Temperature.Coefficients {
		name := "?"
		if i < len(t.FeatureNames) {
			name = t.FeatureNames[i]
		}
		if n := t.Normalization; n != nil {
			fmt.Fprintf(w, "%d\t%s\t%g\t%g\t%g\t%g\n", i, name, n.Means[i], n.Scales[i], t.Temperature.Coefficients[i], t.Humidity.Coefficients[i])
		} else {
			fmt.Fprintf(w, "%d\t%s\t%g\t%g\n", i, name, t.Temperature.Coefficients[i], t.Humidity.Coefficients[i])
		}
	}
	return w.Flush()
}

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file.h>...",
		Short: "Parse and validate coefficient headers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			var errs error
			for _, path := range args {
				t, err := a.table(cmd.Context(), path)
				if err != nil {
					fmt.Fprintf(out, "FAIL  %s: %v\n", path, err)
					errs = multierr.Append(errs, err)
					continue
				}
				note := ""
				if t.Unstable() {
					note = " (unstable)"
				}
				fmt.Fprintf(out, "OK    %s: %s, %d features%s\n", path, t.ID, t.NumFeatures(), note)
			}
			if errs != nil {
				return fmt.Errorf("%d of %d headers failed validation", len(multierr.Errors(errs)), len(args))
			}
			return nil
		},
	}
}

func (a *app) predictCmd() *cobra.Command {
	var model string

	cmd := &cobra.Command{
		Use:   "predict [name=value...] | [value...]",
		Short: "Evaluate a table on one feature vector",
		Long: `Evaluates both models of a table. Features are given either as
name=value pairs in any order, or as bare values in the table's feature
order. Values are raw readings; normalized tables standardize them first.
Flags go before the values. When the first bare value is negative, put
"--" in front of the values.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.table(cmd.Context(), model)
			if err != nil {
				return err
			}

			raw, err := featureVector(t, args)
			if err != nil {
				return err
			}

			p, err := t.Predict(raw)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "model:       %s\n", t.ID)
			fmt.Fprintf(out, "temperature: %.2f\n", p.Temperature)
			fmt.Fprintf(out, "humidity:    %.2f\n", p.Humidity)
			if t.Unstable() {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: table has large coefficients")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "Table ID, \"latest\" or header path (default: active table)")
	// values such as -0.5 after the first one are not flags
	cmd.Flags().SetInterspersed(false)
	return cmd
}

// featureVector builds the raw vector from either name=value pairs or bare
// values
func featureVector(t *coef.Table, args []string) ([]float64, error) {
	if !strings.Contains(args[0], "=") {
		raw := make([]float64, len(args))
		for i, arg := range args {
			v, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid value %q: %w", arg, err)
			}
			raw[i] = v
		}
		return raw, nil
	}

	named := make(map[string]float64, len(args))
	for _, arg := range args {
		name, text, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("expected name=value, got %q", arg)
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", name, err)
		}
		named[name] = v
	}
	return t.Arrange(named)
}

func (a *app) renderCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "render <id|file.h>",
		Short: "Write a table as a C header",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.table(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			src, err := header.RenderBytes(t)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, src)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output file (- for stdout)")
	return cmd
}

func (a *app) exportCmd() *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export <id|file.h>",
		Short: "Dump a table as a YAML or JSON manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.table(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			data, err := encodeManifest(t, format)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, data)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Manifest format: yaml or json")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output file (- for stdout)")
	return cmd
}

func encodeManifest(t *coef.Table, format string) ([]byte, error) {
	switch format {
	case "yaml", "yml":
		data, err := yaml.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("failed to encode YAML: %w", err)
		}
		return data, nil
	case "json":
		data, err := json.MarshalIndent(t, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode JSON: %w", err)
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("unknown format %q (want yaml or json)", format)
	}
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
