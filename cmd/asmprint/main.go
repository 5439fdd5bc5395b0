package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"asmprint/internal/build"
	"asmprint/internal/ir"
	"asmprint/internal/irio"
	"asmprint/internal/printer"
	"asmprint/internal/syntax"
)

const version = "0.3.0"

var flags struct {
	irPath      string
	moduleIndex int
	asmPath     string
	binaryPath  string
	syntaxName  string
	policyName  string
	policyFile  string

	skipSections  []string
	keepSections  []string
	skipFunctions []string
	keepFunctions []string
	skipSymbols   []string
	keepSymbols   []string

	linkArgs    []string
	listModules bool
	keepTemp    bool
	verbose     bool
}

var rootCmd = &cobra.Command{
	Use:     "asmprint",
	Short:   "Pretty-print binary IR containers as assembly and rebuild binaries",
	Version: version,
	Long: `asmprint renders the modules of a binary IR container as assembler-ready
text (AT&T or Intel syntax) and can drive the external assembler and linker
to turn that text back into an executable.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&flags.irPath, "ir", "", "path to the IR container (required)")
	f.IntVarP(&flags.moduleIndex, "module", "m", -1, "module index to print (default: all)")
	f.StringVar(&flags.asmPath, "asm", "", "write assembly to this path (module i>=1 gets suffix i)")
	f.StringVar(&flags.binaryPath, "binary", "", "assemble and link the output into this binary")
	f.StringVar(&flags.syntaxName, "syntax", "", "assembly syntax: att or intel (default: per ISA)")
	f.StringVar(&flags.policyName, "policy", "", "printing policy: default or complete")
	f.StringVar(&flags.policyFile, "policy-file", "", "load printing policy from a YAML file")

	f.StringSliceVar(&flags.skipSections, "skip-section", nil, "also skip this section")
	f.StringSliceVar(&flags.keepSections, "keep-section", nil, "print this section even if the policy skips it")
	f.StringSliceVar(&flags.skipFunctions, "skip-function", nil, "skip this function's label and contents")
	f.StringSliceVar(&flags.keepFunctions, "keep-function", nil, "print this function even if the policy skips it")
	f.StringSliceVar(&flags.skipSymbols, "skip-symbol", nil, "skip this symbol's label")
	f.StringSliceVar(&flags.keepSymbols, "keep-symbol", nil, "print this symbol even if the policy skips it")

	f.StringSliceVar(&flags.linkArgs, "link-arg", nil, "extra argument for the linker (repeatable)")
	f.BoolVar(&flags.listModules, "list-modules", false, "list the container's modules and exit")
	f.BoolVar(&flags.keepTemp, "keep-temp", false, "keep intermediate build files")
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "verbose diagnostics")

	cobra.CheckErr(rootCmd.MarkFlagRequired("ir"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "asmprint: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	level := slog.LevelWarn
	if flags.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	container, err := irio.Load(flags.irPath)
	if err != nil {
		return err
	}
	log.Debug("container loaded", "path", flags.irPath, "modules", len(container.Modules))

	if flags.listModules {
		return listModules(container)
	}

	criterion := printer.AllModules()
	if flags.moduleIndex >= 0 {
		criterion = printer.ByIndex(flags.moduleIndex)
	}
	selected, err := printer.Select(container, criterion)
	if err != nil {
		return err
	}

	opts, err := renderOptions(selected)
	if err != nil {
		return err
	}

	results := printer.Render(selected, opts)

	var asmPaths []string
	switch {
	case flags.asmPath != "":
		asmPaths, err = writeAsmFiles(results)
		if err != nil {
			return err
		}
	case flags.binaryPath == "":
		// No destination flags: the single stream is stdout.
		if err := printer.RouteStream(os.Stdout, results); err != nil {
			return err
		}
	default:
		if err := printer.Errs(results); err != nil {
			return err
		}
	}

	if flags.binaryPath != "" {
		return buildBinary(selected, results, asmPaths, log)
	}
	return nil
}

// renderOptions resolves dialect and policy from the flags.
func renderOptions(selected []printer.Selected) (printer.Options, error) {
	var opts printer.Options

	if flags.syntaxName != "" {
		d, err := syntax.ParseDialect(flags.syntaxName)
		if err != nil {
			return opts, err
		}
		opts.Dialect = d
	} else {
		opts.Dialect = syntax.DefaultDialect(selected[0].Module.ISA)
	}

	var policy *printer.Policy
	var err error
	switch {
	case flags.policyFile != "":
		policy, err = printer.LoadPolicy(flags.policyFile)
	default:
		policy, err = printer.FindPolicy(flags.policyName)
	}
	if err != nil {
		return opts, err
	}

	applySet(policy.SkipSections, flags.skipSections, flags.keepSections)
	applySet(policy.SkipFunctions, flags.skipFunctions, flags.keepFunctions)
	applySet(policy.SkipSymbols, flags.skipSymbols, flags.keepSymbols)

	opts.Policy = policy
	opts.Debug = flags.verbose
	return opts, nil
}

func applySet(set map[string]struct{}, skip, keep []string) {
	for _, s := range skip {
		set[s] = struct{}{}
	}
	for _, s := range keep {
		delete(set, s)
	}
}

// writeAsmFiles routes rendered modules to per-module files, with a
// progress bar when several files go to a terminal session.
func writeAsmFiles(results []printer.Result) ([]string, error) {
	var progress func(string)
	if len(results) > 1 && term.IsTerminal(int(os.Stderr.Fd())) {
		bar := progressbar.Default(int64(len(results)), "writing assembly")
		progress = func(string) { _ = bar.Add(1) }
	}
	paths, err := printer.RouteFiles(flags.asmPath, results, progress)
	if err != nil {
		return nil, err
	}
	return paths, nil
}

func buildBinary(selected []printer.Selected, results []printer.Result, asmPaths []string, log *slog.Logger) error {
	if err := printer.Errs(results); err != nil {
		return err
	}

	driver := build.NewDriver(build.TargetFor(selected[0].Module), build.Options{
		ExtraLinkArgs: flags.linkArgs,
		KeepTemp:      flags.keepTemp,
		Log:           log,
	})
	if missing := driver.Detect(); len(missing) > 0 {
		return fmt.Errorf("missing toolchain components: %v", missing)
	}

	if len(asmPaths) > 0 {
		return driver.Build(asmPaths, flags.binaryPath)
	}
	texts := make([][]byte, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	return driver.BuildFromText(texts, flags.binaryPath)
}

func listModules(c *ir.Container) error {
	for i, m := range c.Modules {
		fmt.Printf("%d\t%s\t%s/%s\t%d sections, %d symbols, %d resources\n",
			i, m.Name, m.ISA, m.Format, len(m.Sections), len(m.Symbols), len(m.Resources))
	}
	return nil
}
