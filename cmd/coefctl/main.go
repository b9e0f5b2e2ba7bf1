// Command coefctl inspects, validates, evaluates, renders and trains the
// weather coefficient tables.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"weather-coef/internal/coef"
	"weather-coef/internal/header"
)

// app carries the state shared by every subcommand
type app struct {
	logger   *zap.Logger
	registry *coef.Registry
	verbose  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{logger: zap.NewNop(), registry: coef.Builtin()}

	root := &cobra.Command{
		Use:   "coefctl",
		Short: "Manage weather prediction coefficient tables",
		Long: `coefctl works with the linear-regression coefficient tables used by the
weather predictor. Tables are referenced by ID (see "coefctl list"), by
"latest", or by the path of a generated model_coef*.h header.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !a.verbose {
				return nil
			}
			config := zap.NewDevelopmentConfig()
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			logger, err := config.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		a.listCmd(),
		a.inspectCmd(),
		a.validateCmd(),
		a.predictCmd(),
		a.renderCmd(),
		a.exportCmd(),
		a.trainCmd(),
		a.historyCmd(),
	)
	return root
}

// isHeaderRef reports whether ref names a header file rather than a
// registered table
func isHeaderRef(ref string) bool {
	if strings.HasSuffix(ref, ".h") {
		return true
	}
	info, err := os.Stat(ref)
	return err == nil && !info.IsDir()
}

// table resolves ref to a validated table
func (a *app) table(ctx context.Context, ref string) (*coef.Table, error) {
	if !isHeaderRef(ref) {
		return a.registry.Resolve(ref)
	}

	t, err := header.ParseFile(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	a.logger.Debug("parsed header", zap.String("path", ref), zap.String("model_id", t.ID))
	return t, nil
}
