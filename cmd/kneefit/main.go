// Package main provides the CLI entrypoint for kneefit.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/kneefit/internal/config"
	"github.com/verte-zerg/kneefit/internal/export"
	"github.com/verte-zerg/kneefit/internal/fit"
	"github.com/verte-zerg/kneefit/internal/logging"
	"github.com/verte-zerg/kneefit/internal/model"
	"github.com/verte-zerg/kneefit/internal/section"
	"github.com/verte-zerg/kneefit/internal/sectionui"
	"github.com/verte-zerg/kneefit/internal/stats"
	"github.com/verte-zerg/kneefit/internal/store"
	"github.com/verte-zerg/kneefit/internal/synth"
	"github.com/verte-zerg/kneefit/internal/trace"
)

const (
	defaultModel       = "single"
	defaultScope       = "whole"
	defaultCompression = store.CodecZstd
	defaultPlotHeight  = 12
	defaultImageWidth  = 1200
	defaultImageHeight = 600
)

var (
	rootDB          string
	rootCompression string
	rootLogLevel    string
	rootLogFile     string

	fitKnees       string
	fitModel       string
	fitScope       string
	fitMaxEval     int
	fitCrop        string
	fitInterpolate []string
	fitSmooth      int
	fitMedian      int
	fitExport      string
	fitProjectCSV  string
	fitPlot        string
	fitSave        string
	fitNoPlot      bool

	plotWidth       int
	plotHeight      int
	plotImageWidth  int
	plotImageHeight int

	tuiProject string
	tuiExport  string

	synthSeed  int64
	synthNoise float64
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "kneefit",
		Short:         "Fit exponential transients between knees of a sensor trace",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&rootDB, "db", "", "project database path (default: $XDG_DATA_HOME/kneefit/kneefit.db)")
	flags.StringVar(&rootCompression, "compression", defaultCompression, "trace compression for saved projects (zstd, lz4, none)")
	flags.StringVar(&rootLogLevel, "log-level", logging.DefaultLevel, "log level (debug, info, warn, error)")
	flags.StringVar(&rootLogFile, "log-file", "", "write logs to this file instead of stderr")

	rootCmd.AddCommand(newFitCmd())
	rootCmd.AddCommand(newTUICmd())
	rootCmd.AddCommand(newProjectsCmd())
	rootCmd.AddCommand(newShowCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newDeleteCmd())
	rootCmd.AddCommand(newSynthCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

func addPlotFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&plotWidth, "width", 0, "terminal plot width (default: terminal width)")
	cmd.Flags().IntVar(&plotHeight, "height", defaultPlotHeight, "terminal plot height in rows")
	cmd.Flags().IntVar(&plotImageWidth, "image-width", defaultImageWidth, "PNG plot width in pixels")
	cmd.Flags().IntVar(&plotImageHeight, "image-height", defaultImageHeight, "PNG plot height in pixels")
}

func newFitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fit <trace>",
		Short: "Fit every section of a trace and print the results",
		Args:  cobra.ExactArgs(1),
		RunE:  runFitCmd,
	}
	cmd.Flags().StringVar(&fitKnees, "knees", "", "section bounds as \"a;b;c\" (default: the trace ends)")
	cmd.Flags().StringVar(&fitModel, "model", defaultModel, "fit model (single, double, aux)")
	cmd.Flags().StringVar(&fitScope, "scope", defaultScope, "overlay scope (whole, section)")
	cmd.Flags().IntVar(&fitMaxEval, "max-evaluations", fit.DefaultMaxEvaluations, "fit evaluation budget per section")
	cmd.Flags().StringVar(&fitCrop, "crop", "", "keep only \"a;b\" before fitting")
	cmd.Flags().StringArrayVar(&fitInterpolate, "interpolate", nil, "replace \"a;b\" with a straight line (repeatable)")
	cmd.Flags().IntVar(&fitSmooth, "smooth", 0, "Savitzky-Golay window width applied before fitting")
	cmd.Flags().IntVar(&fitMedian, "median", 0, "median filter width applied before fitting")
	cmd.Flags().StringVar(&fitExport, "export", "", "export fits to a .csv, .xlsx or .yaml file")
	cmd.Flags().StringVar(&fitProjectCSV, "project-csv", "", "write the project table as CSV")
	cmd.Flags().StringVar(&fitPlot, "plot", "", "render the overlay to a PNG file")
	cmd.Flags().StringVar(&fitSave, "save", "", "save the project under this name")
	cmd.Flags().BoolVar(&fitNoPlot, "no-plot", false, "skip the terminal overlay")
	addPlotFlags(cmd)
	return cmd
}

func runFitCmd(cmd *cobra.Command, args []string) error {
	fileCfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyFitConfig(cmd, fileCfg)

	ft, err := model.ParseFitType(fitModel)
	if err != nil {
		return err
	}
	scope, err := stats.ParseScope(fitScope)
	if err != nil {
		return err
	}

	logger, cleanup, err := logging.Setup(rootLogLevel, rootLogFile)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer cleanup()

	sess, err := openTrace(args[0], ft, logger)
	if err != nil {
		return err
	}
	if err := prepareTrace(sess); err != nil {
		return err
	}
	if fitKnees != "" {
		knees, err := parseKnees(fitKnees, sess.Trace)
		if err != nil {
			return err
		}
		sess.SetKnees(knees)
	}
	if err := sess.BuildSections(); err != nil {
		return err
	}
	if err := sess.FitAll(); err != nil {
		return err
	}

	height := plotHeight
	if fitNoPlot {
		height = 0
	}
	report := stats.NewReport(fitSave, sess, scope)
	if err := stats.RenderReport(cmd.OutOrStdout(), report, plotWidth, height, false); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if err := writeOutputs(sess, scope, fitExport, fitProjectCSV, fitPlot); err != nil {
		return err
	}
	if fitSave != "" {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer closeStore(st)
		if err := st.SaveProject(context.Background(), fitSave, sess); err != nil {
			return fmt.Errorf("failed to save project: %w", err)
		}
		logErrf("Saved project %s\n", fitSave)
	}
	return nil
}

func openTrace(path string, ft model.FitType, logger logrus.FieldLogger) (*section.Session, error) {
	tr, err := trace.Load(path)
	if err != nil {
		return nil, err
	}
	coord := section.NewCoordinator(logger, fit.WithMaxEvaluations(fitMaxEval))
	return section.NewSession(tr, ft, coord)
}

// prepareTrace applies the crop, interpolation and filter flags in that order.
func prepareTrace(sess *section.Session) error {
	if fitCrop != "" {
		a, b, err := parseRange(fitCrop)
		if err != nil {
			return fmt.Errorf("invalid --crop: %w", err)
		}
		if err := sess.Crop(a, b); err != nil {
			return fmt.Errorf("failed to crop: %w", err)
		}
	}
	for _, bounds := range fitInterpolate {
		a, b, err := parseRange(bounds)
		if err != nil {
			return fmt.Errorf("invalid --interpolate: %w", err)
		}
		if err := sess.Interpolate(a, b); err != nil {
			return fmt.Errorf("failed to interpolate %s: %w", bounds, err)
		}
	}
	if fitSmooth > 0 {
		if err := sess.Filter(trace.FilterSmooth, fitSmooth, nil); err != nil {
			return fmt.Errorf("failed to smooth: %w", err)
		}
	}
	if fitMedian > 0 {
		if err := sess.Filter(trace.FilterMedian, fitMedian, nil); err != nil {
			return fmt.Errorf("failed to apply median filter: %w", err)
		}
	}
	return nil
}

func writeOutputs(sess *section.Session, scope stats.Scope, exportPath, projectCSV, plotPath string) error {
	if exportPath != "" {
		if err := export.ExportFits(exportPath, sess.Sections); err != nil {
			return fmt.Errorf("failed to export fits: %w", err)
		}
		logErrf("Wrote %s\n", exportPath)
	}
	if projectCSV != "" {
		if err := export.SaveProjectCSV(projectCSV, sess.Sections); err != nil {
			return fmt.Errorf("failed to write project CSV: %w", err)
		}
		logErrf("Wrote %s\n", projectCSV)
	}
	if plotPath != "" {
		opts := export.PlotOptions{
			Scope:  scope,
			Knees:  sess.Knees,
			Title:  filepath.Base(plotPath),
			Width:  plotImageWidth,
			Height: plotImageHeight,
		}
		if err := export.SaveOverlayPNG(plotPath, sess.Trace, sess.Sections, opts); err != nil {
			return fmt.Errorf("failed to write plot: %w", err)
		}
		logErrf("Wrote %s\n", plotPath)
	}
	return nil
}

func newTUICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tui [trace]",
		Short: "Browse and fit sections interactively",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runTUICmd,
	}
	cmd.Flags().StringVar(&tuiProject, "project", "", "open a saved project instead of a trace")
	cmd.Flags().StringVar(&fitKnees, "knees", "", "section bounds as \"a;b;c\" (default: the trace ends)")
	cmd.Flags().StringVar(&fitModel, "model", defaultModel, "fit model (single, double, aux)")
	cmd.Flags().StringVar(&fitScope, "scope", defaultScope, "overlay scope (whole, section)")
	cmd.Flags().IntVar(&fitMaxEval, "max-evaluations", fit.DefaultMaxEvaluations, "fit evaluation budget per section")
	cmd.Flags().StringVar(&tuiExport, "export", "", "default export path")
	return cmd
}

func runTUICmd(cmd *cobra.Command, args []string) error {
	if (len(args) == 1) == (tuiProject != "") {
		return fmt.Errorf("pass either a trace path or --project")
	}
	fileCfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyFitConfig(cmd, fileCfg)

	ft, err := model.ParseFitType(fitModel)
	if err != nil {
		return err
	}
	scope, err := stats.ParseScope(fitScope)
	if err != nil {
		return err
	}

	logger, cleanup, err := logging.SetupTUI(rootLogLevel, rootLogFile)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer cleanup()

	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	var sess *section.Session
	if tuiProject != "" {
		sess, err = st.LoadProject(context.Background(), tuiProject)
		if err != nil {
			return fmt.Errorf("failed to load project: %w", err)
		}
		sess.SetFitter(section.NewCoordinator(logger, fit.WithMaxEvaluations(fitMaxEval)))
		if cmd.Flags().Changed("model") {
			sess.Selected = ft
		}
	} else {
		sess, err = openTrace(args[0], ft, logger)
		if err != nil {
			return err
		}
		if fitKnees != "" {
			knees, err := parseKnees(fitKnees, sess.Trace)
			if err != nil {
				return err
			}
			sess.SetKnees(knees)
		}
		if err := sess.BuildSections(); err != nil {
			return err
		}
	}

	m := sectionui.NewModel(sess, sectionui.Options{
		Name:       tuiProject,
		ExportPath: tuiExport,
		Scope:      scope,
		Store:      st,
		Log:        logger,
	})
	program := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

func newProjectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List saved projects",
		Args:  cobra.NoArgs,
		RunE:  runProjectsCmd,
	}
}

func runProjectsCmd(cmd *cobra.Command, _ []string) error {
	if _, err := loadConfig(cmd); err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	projects, err := st.ListProjects(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list projects: %w", err)
	}
	if err := stats.RenderProjectList(cmd.OutOrStdout(), projects); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Print a saved project",
		Args:  cobra.ExactArgs(1),
		RunE:  runShowCmd,
	}
	cmd.Flags().StringVar(&fitScope, "scope", defaultScope, "overlay scope (whole, section)")
	cmd.Flags().BoolVar(&fitNoPlot, "no-plot", false, "skip the terminal overlay")
	addPlotFlags(cmd)
	return cmd
}

func runShowCmd(cmd *cobra.Command, args []string) error {
	fileCfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyFitConfig(cmd, fileCfg)
	scope, err := stats.ParseScope(fitScope)
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	report, err := stats.BuildReport(context.Background(), st, args[0], scope)
	if err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}
	height := plotHeight
	if fitNoPlot {
		height = 0
	}
	if err := stats.RenderReport(cmd.OutOrStdout(), report, plotWidth, height, false); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <name> <path>",
		Short: "Export a saved project's fits (.csv, .xlsx, .yaml or .png)",
		Args:  cobra.ExactArgs(2),
		RunE:  runExportCmd,
	}
	cmd.Flags().StringVar(&fitScope, "scope", defaultScope, "overlay scope for .png output")
	addPlotFlags(cmd)
	return cmd
}

func runExportCmd(cmd *cobra.Command, args []string) error {
	fileCfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyFitConfig(cmd, fileCfg)
	scope, err := stats.ParseScope(fitScope)
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	sess, err := st.LoadProject(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}
	path := args[1]
	if strings.EqualFold(filepath.Ext(path), ".png") {
		return writeOutputs(sess, scope, "", "", path)
	}
	return writeOutputs(sess, scope, path, "", "")
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a saved project",
		Args:  cobra.ExactArgs(1),
		RunE:  runDeleteCmd,
	}
}

func runDeleteCmd(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(cmd); err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	if err := st.DeleteProject(context.Background(), args[0]); err != nil {
		if errors.Is(err, store.ErrProjectNotFound) {
			logErrln("Run: kneefit projects")
		}
		return fmt.Errorf("failed to delete project: %w", err)
	}
	logErrf("Deleted project %s\n", args[0])
	return nil
}

func newSynthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "synth <out.csv>",
		Short: "Write a synthetic trace with known knees",
		Args:  cobra.ExactArgs(1),
		RunE:  runSynthCmd,
	}
	cmd.Flags().Int64Var(&synthSeed, "seed", 0, "noise seed (default: random)")
	cmd.Flags().Float64Var(&synthNoise, "noise", synth.Default().Noise, "noise standard deviation")
	return cmd
}

func runSynthCmd(cmd *cobra.Command, args []string) error {
	if synthNoise < 0 {
		return fmt.Errorf("--noise must be >= 0")
	}
	gen := synth.New()
	if cmd.Flags().Changed("seed") {
		gen = synth.NewSeeded(synthSeed)
	}
	spec := synth.Default()
	spec.Noise = synthNoise
	tr, knees, err := gen.Generate(spec)
	if err != nil {
		return err
	}
	if err := trace.Save(args[0], tr); err != nil {
		return err
	}
	logErrf("Wrote %s (%d samples)\n", args[0], tr.Len())
	if _, err := fmt.Fprintf(cmd.OutOrStdout(), "--knees %q\n", formatKnees(knees)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func loadConfig(cmd *cobra.Command) (config.FileConfig, error) {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return config.FileConfig{}, fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "compression", &rootCompression, fileCfg.Store.Compression)
	applyStringConfig(cmd, "db", &rootDB, fileCfg.Store.Path)
	applyStringConfig(cmd, "log-level", &rootLogLevel, fileCfg.Log.Level)
	applyStringConfig(cmd, "log-file", &rootLogFile, fileCfg.Log.File)
	return fileCfg, nil
}

// applyFitConfig fills the command's fit and plot flags from the file. Flags
// a command does not define are left alone.
func applyFitConfig(cmd *cobra.Command, fileCfg config.FileConfig) {
	applyStringConfig(cmd, "model", &fitModel, fileCfg.Fit.Model)
	applyIntConfig(cmd, "max-evaluations", &fitMaxEval, fileCfg.Fit.MaxEvaluations)
	applyStringConfig(cmd, "scope", &fitScope, fileCfg.Fit.Scope)
	applyIntConfig(cmd, "width", &plotWidth, fileCfg.Plot.Width)
	applyIntConfig(cmd, "height", &plotHeight, fileCfg.Plot.Height)
	applyIntConfig(cmd, "image-width", &plotImageWidth, fileCfg.Plot.ImageWidth)
	applyIntConfig(cmd, "image-height", &plotImageHeight, fileCfg.Plot.ImageHeight)
}

func openStore() (*store.Store, error) {
	path := rootDB
	if path == "" {
		path = config.DefaultDBPath()
	}
	st, err := store.Open(path, rootCompression)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	return st, nil
}

func closeStore(st *store.Store) {
	if cerr := st.Close(); cerr != nil {
		logErrf("failed to close db: %v\n", cerr)
	}
}

func splitBounds(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ';' || r == ',' || r == ' ' || r == '\t'
	})
}

// parseKnees reads "a;b;c" and checks every knee lies on the trace.
func parseKnees(s string, tr *model.Trace) ([]float64, error) {
	parts := splitBounds(s)
	if len(parts) < 2 {
		return nil, fmt.Errorf("--knees needs at least two values, got %q", s)
	}
	knees := make([]float64, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid knee %q", part)
		}
		if tr != nil && !tr.Contains(v) {
			lo, hi := tr.Domain()
			return nil, fmt.Errorf("knee %g outside the trace [%g, %g]", v, lo, hi)
		}
		knees = append(knees, v)
	}
	return knees, nil
}

func parseRange(s string) (float64, float64, error) {
	parts := splitBounds(s)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected \"a;b\", got %q", s)
	}
	a, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid bound %q", parts[0])
	}
	b, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid bound %q", parts[1])
	}
	return a, b, nil
}

func formatKnees(knees model.Knees) string {
	parts := make([]string, 0, len(knees))
	for _, k := range knees {
		parts = append(parts, model.FormatCoord(k))
	}
	return strings.Join(parts, ";")
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if flagChanged(cmd, name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if flagChanged(cmd, name) {
		return
	}
	*target = *value
}

// flagChanged also reports true for flags the command does not define, so
// config values never leak into another command's variables.
func flagChanged(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	return f == nil || f.Changed
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# kneefit configuration
# Uncomment a value to enable it. CLI flags override config values.

[fit]
# model = %q              # Fit model: single, double or aux
# max-evaluations = %d    # Fit evaluation budget per section
# scope = %q              # Overlay scope: whole or section

[store]
# path = ""                 # Project database (default under $XDG_DATA_HOME)
# compression = %q          # Trace compression: zstd, lz4 or none

[plot]
# width = 0                 # Terminal plot width (0: terminal width)
# height = %d               # Terminal plot height in rows
# image-width = %d        # PNG plot width in pixels
# image-height = %d        # PNG plot height in pixels

[log]
# level = %q                # debug, info, warn or error
# file = %q
`,
		defaultModel,
		fit.DefaultMaxEvaluations,
		defaultScope,
		defaultCompression,
		defaultPlotHeight,
		defaultImageWidth,
		defaultImageHeight,
		logging.DefaultLevel,
		config.DefaultLogPath(),
	)
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

func logErrln(args ...any) {
	if _, err := fmt.Fprintln(os.Stderr, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
