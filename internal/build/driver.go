package build

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"asmprint/internal/ir"
)

// ---------------------------------------------------------------------------
// Binary Build Driver
//
// Turns rendered assembly back into an executable by invoking the external
// assembler and linker as child processes.  The driver is a small state
// machine:
//
//   Idle → TextEmitted → Assembling → Linking → Built | Failed
//
// Toolchain failures are terminal for the build; the diagnostic output of
// the failing tool is surfaced unmodified.  No retries, no timeouts.
// ---------------------------------------------------------------------------

// State is the driver's position in the build pipeline.
type State int

const (
	Idle State = iota
	TextEmitted
	Assembling
	Linking
	Built
	Failed
)

var stateNames = map[State]string{
	Idle: "idle", TextEmitted: "text-emitted", Assembling: "assembling",
	Linking: "linking", Built: "built", Failed: "failed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state_%d", int(s))
}

// ToolchainError reports a non-zero exit from the assembler or linker.
// Output carries the tool's stdout+stderr verbatim.
type ToolchainError struct {
	Stage  string // "assemble" or "link"
	Tool   string
	Args   []string
	Output string
	Err    error
}

func (e *ToolchainError) Error() string {
	msg := fmt.Sprintf("%s failed (%s %s): %v", e.Stage, e.Tool, strings.Join(e.Args, " "), e.Err)
	if e.Output != "" {
		msg += "\n" + e.Output
	}
	return msg
}

func (e *ToolchainError) Unwrap() error { return e.Err }

// ---------------------------------------------------------------------------
// Target: which external tools to run, and how
// ---------------------------------------------------------------------------

// Target captures the toolchain shape for one module's ISA and format.
type Target struct {
	ISA    ir.ISA
	Format ir.Format
	Entry  string // linker entry symbol
}

// TargetFor derives the toolchain target from a module.
func TargetFor(m *ir.Module) Target {
	t := Target{ISA: m.ISA, Format: m.Format, Entry: "_start"}
	if m.Format == ir.FormatPE {
		t.Entry = "main"
	}
	return t
}

// asmArgs builds the assembler argument list for one source file.
func (t Target) asmArgs(obj, src string) []string {
	var args []string
	switch t.ISA {
	case ir.ISAX86:
		args = append(args, "--32")
	case ir.ISAX86_64:
		args = append(args, "--64")
	}
	return append(args, "-o", obj, src)
}

// linkArgs builds the linker argument list.
func (t Target) linkArgs(out string, objs, extra []string) []string {
	args := []string{"-o", out}
	if t.ISA == ir.ISAX86 {
		args = append(args, "-m", "elf_i386")
	}
	if t.Entry != "" {
		args = append(args, "-e", t.Entry)
	}
	args = append(args, extra...)
	return append(args, objs...)
}

// ---------------------------------------------------------------------------
// Options / Driver
// ---------------------------------------------------------------------------

// Options configures a Driver.
type Options struct {
	// Assembler and Linker override the tool binaries ("as", "ld").
	// Injectable for tests and cross toolchains.
	Assembler string
	Linker    string

	// ExtraLinkArgs are passed to the linker verbatim (policy
	// compilerArguments equivalent).
	ExtraLinkArgs []string

	// WorkDir holds intermediate files.  Empty means a fresh temp dir.
	WorkDir string

	// KeepTemp retains intermediate files even on success.
	KeepTemp bool

	Log *slog.Logger
}

// Driver coordinates one build invocation.
type Driver struct {
	target  Target
	opts    Options
	state   State
	workDir string
	log     *slog.Logger
}

// NewDriver creates an idle driver for a target.
func NewDriver(target Target, opts Options) *Driver {
	if opts.Assembler == "" {
		opts.Assembler = "as"
	}
	if opts.Linker == "" {
		opts.Linker = "ld"
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Driver{target: target, opts: opts, state: Idle, log: log}
}

// State returns the driver's current pipeline state.
func (d *Driver) State() State { return d.state }

// WorkDir returns the directory holding intermediate files.  After a failed
// build it is retained so the assembly can be inspected.
func (d *Driver) WorkDir() string { return d.workDir }

// Detect returns the external tools missing from PATH, if any.
func (d *Driver) Detect() []string {
	var missing []string
	if _, err := exec.LookPath(d.opts.Assembler); err != nil {
		missing = append(missing, d.opts.Assembler+" (assembler)")
	}
	if _, err := exec.LookPath(d.opts.Linker); err != nil {
		missing = append(missing, d.opts.Linker+" (linker)")
	}
	return missing
}

// BuildFromText writes each module's rendered text to the work dir and
// builds outPath from it.  Temp files are cleaned up on success and
// retained on failure for diagnosis.
func (d *Driver) BuildFromText(texts [][]byte, outPath string) error {
	if err := d.ensureWorkDir(outPath); err != nil {
		return d.fail(err)
	}

	var asmPaths []string
	for i, text := range texts {
		path := filepath.Join(d.workDir, fmt.Sprintf("module%d.s", i))
		if err := os.WriteFile(path, text, 0o644); err != nil {
			return d.fail(fmt.Errorf("cannot write assembly file %s: %w", path, err))
		}
		asmPaths = append(asmPaths, path)
	}
	d.state = TextEmitted

	return d.Build(asmPaths, outPath)
}

// Build assembles the given files and links them into outPath.  Callers
// that already routed assembly to disk (via --asm) pass those paths here.
func (d *Driver) Build(asmPaths []string, outPath string) error {
	if len(asmPaths) == 0 {
		return d.fail(fmt.Errorf("no assembly files to build"))
	}
	if err := d.ensureWorkDir(outPath); err != nil {
		return d.fail(err)
	}
	if d.state == Idle {
		d.state = TextEmitted
	}

	// --- Assemble ---
	d.state = Assembling
	var objPaths []string
	for _, src := range asmPaths {
		obj := filepath.Join(d.workDir, strings.TrimSuffix(filepath.Base(src), ".s")+".o")
		args := d.target.asmArgs(obj, src)
		d.log.Debug("assembling", "tool", d.opts.Assembler, "args", args)
		if err := runTool("assemble", d.opts.Assembler, args); err != nil {
			return d.fail(err)
		}
		objPaths = append(objPaths, obj)
	}

	// --- Link ---
	d.state = Linking
	args := d.target.linkArgs(outPath, objPaths, d.opts.ExtraLinkArgs)
	d.log.Debug("linking", "tool", d.opts.Linker, "args", args)
	if err := runTool("link", d.opts.Linker, args); err != nil {
		return d.fail(err)
	}

	// The binary must exist and be runnable.
	if err := os.Chmod(outPath, 0o755); err != nil {
		return d.fail(fmt.Errorf("cannot mark %s executable: %w", outPath, err))
	}

	d.state = Built
	if !d.opts.KeepTemp && d.opts.WorkDir == "" {
		os.RemoveAll(d.workDir)
	}
	d.log.Debug("build complete", "binary", outPath)
	return nil
}

func (d *Driver) ensureWorkDir(outPath string) error {
	if d.workDir != "" {
		return nil
	}
	if d.opts.WorkDir != "" {
		if err := os.MkdirAll(d.opts.WorkDir, 0o755); err != nil {
			return fmt.Errorf("cannot create work directory %s: %w", d.opts.WorkDir, err)
		}
		d.workDir = d.opts.WorkDir
		return nil
	}
	dir, err := os.MkdirTemp("", "asmprint-"+filepath.Base(outPath)+"-")
	if err != nil {
		return fmt.Errorf("cannot create work directory: %w", err)
	}
	d.workDir = dir
	return nil
}

// fail records the terminal failure state.  The work dir is retained so the
// emitted assembly stays on disk for diagnosis.
func (d *Driver) fail(err error) error {
	d.state = Failed
	if d.workDir != "" {
		d.log.Debug("build failed, keeping work dir", "dir", d.workDir)
		err = fmt.Errorf("%w (intermediate files kept in %s)", err, d.workDir)
	}
	return err
}

// runTool runs one toolchain subprocess to completion.  cmd.Run waits for
// the child on every path, so the process is always reaped.
func runTool(stage, tool string, args []string) error {
	cmd := exec.Command(tool, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &ToolchainError{
			Stage:  stage,
			Tool:   tool,
			Args:   args,
			Output: string(out),
			Err:    err,
		}
	}
	return nil
}
