// Command uscn-cli drives the USCN protocol engine from the command
// line: normalize a payload, validate it against a schema, inspect an
// audit log, or benchmark the pipeline (spec.md §6, "CLI
// (collaborator)").
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"sort"
	"time"

	"uscn.dev/protocol/audit"
	"uscn.dev/protocol/buffer"
	"uscn.dev/protocol/normalizer"
	"uscn.dev/protocol/protoerr"
	"uscn.dev/protocol/schema"
	"uscn.dev/protocol/validate"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// buildVersion reports the module's build info the way `go build`
// embeds it, falling back to a bare name when run via `go run` (no
// embedded module info).
func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "uscn-cli (devel)"
	}
	return fmt.Sprintf("uscn-cli %s", info.Main.Version)
}

// run dispatches to a subcommand and returns the process exit code:
// 0 on success, 1 on a typed protoerr.Error, 2 on a CLI usage error
// (spec.md §6, generalizing the teacher's domain/usage error split in
// cmd/rubin-node's run).
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return 2
	}

	sub, rest := args[0], args[1:]
	switch sub {
	case "validate":
		return runValidate(rest, stdout, stderr)
	case "normalize":
		return runNormalize(rest, stdout, stderr)
	case "audit":
		return runAudit(rest, stdout, stderr)
	case "benchmark":
		return runBenchmark(rest, stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, buildVersion())
		return 0
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown subcommand %q\n", sub)
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: uscn-cli <validate|normalize|audit|benchmark|version|help> [flags]")
	fmt.Fprintln(w, "  audit <verify|tail> -a AUDIT [-n N]")
	fmt.Fprintln(w, "  -i, --input <path>       input payload file")
	fmt.Fprintln(w, "  -o, --output <path>      output file (default: stdout)")
	fmt.Fprintln(w, "  -s, --schema <path>      schema YAML file")
	fmt.Fprintln(w, "  -a, --audit-log <path>   audit log file")
	fmt.Fprintln(w, "  -v, --verbose            verbose logging")
	fmt.Fprintln(w, "      --no-zero-trust      disable the zero-trust gate")
	fmt.Fprintln(w, "      --no-nasa            disable inline auto-normalization at the zero-trust gate")
	fmt.Fprintln(w, "  -A, --alpha <f>          cost evaluator KL weight")
	fmt.Fprintln(w, "  -B, --beta <f>           cost evaluator entropy weight")
}

// sharedFlags is the flag set spec.md §6 fixes across subcommands.
type sharedFlags struct {
	input        string
	output       string
	schemaPath   string
	auditLogPath string
	verbose      bool
	noZeroTrust  bool
	noNASA       bool
	alpha        float64
	beta         float64
}

func bindSharedFlags(fs *flag.FlagSet, f *sharedFlags) {
	fs.StringVar(&f.input, "i", "", "input payload file")
	fs.StringVar(&f.input, "input", "", "input payload file")
	fs.StringVar(&f.output, "o", "", "output file (default: stdout)")
	fs.StringVar(&f.output, "output", "", "output file (default: stdout)")
	fs.StringVar(&f.schemaPath, "s", "", "schema YAML file")
	fs.StringVar(&f.schemaPath, "schema", "", "schema YAML file")
	fs.StringVar(&f.auditLogPath, "a", "", "audit log file")
	fs.StringVar(&f.auditLogPath, "audit-log", "", "audit log file")
	fs.BoolVar(&f.verbose, "v", false, "verbose logging")
	fs.BoolVar(&f.verbose, "verbose", false, "verbose logging")
	fs.BoolVar(&f.noZeroTrust, "no-zero-trust", false, "disable the zero-trust gate")
	fs.BoolVar(&f.noNASA, "no-nasa", false, "disable inline auto-normalization at the zero-trust gate")
	fs.Float64Var(&f.alpha, "A", 0.7, "cost evaluator KL weight")
	fs.Float64Var(&f.alpha, "alpha", 0.7, "cost evaluator KL weight")
	fs.Float64Var(&f.beta, "B", 0.3, "cost evaluator entropy weight")
	fs.Float64Var(&f.beta, "beta", 0.3, "cost evaluator entropy weight")
}

func newLogger(stderr io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
}

func loadSchema(f *sharedFlags) (*schema.Schema, error) {
	if f.schemaPath == "" {
		return nil, fmt.Errorf("uscn-cli: -s/--schema is required")
	}
	return schema.LoadFile(f.schemaPath)
}

func readInput(f *sharedFlags) ([]byte, error) {
	if f.input == "" || f.input == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(f.input)
}

func writeOutput(f *sharedFlags, stdout io.Writer, data []byte) error {
	if f.output == "" || f.output == "-" {
		_, err := stdout.Write(data)
		return err
	}
	return os.WriteFile(f.output, data, 0o644)
}

func runValidate(args []string, stdout, stderr io.Writer) int {
	f := &sharedFlags{}
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	bindSharedFlags(fs, f)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	log := newLogger(stderr, f.verbose)

	s, err := loadSchema(f)
	if err != nil {
		log.Error("schema load failed", "error", err)
		return 1
	}
	data, err := readInput(f)
	if err != nil {
		log.Error("input read failed", "error", err)
		return 1
	}
	if f.auditLogPath == "" {
		log.Error("audit log path required", "flag", "-a/--audit-log")
		return 2
	}
	auditLog, err := audit.Init(f.auditLogPath, s.Compliance)
	if err != nil {
		log.Error("audit init failed", "error", err)
		return 1
	}
	defer auditLog.Cleanup()

	opts := validate.Options{
		Alpha:           f.alpha,
		Beta:            f.beta,
		ZeroTrust:       !f.noZeroTrust,
		InlineNormalize: !f.noNASA,
	}
	v, err := validate.New(opts, s, auditLog)
	if err != nil {
		log.Error("validator construction failed", "error", err)
		return 1
	}

	b, err := buffer.New(data, buffer.MaxBufferSize, buffer.SecurityNone)
	if err != nil {
		log.Error("buffer construction failed", "error", err)
		return 1
	}
	if err := v.Validate(b); err != nil {
		code, _ := protoerr.CodeOf(err)
		log.Error("validation failed", "code", code, "error", err)
		fmt.Fprintf(stdout, "%s\n", code)
		return 1
	}

	fmt.Fprintf(stdout, "SUCCESS zone=%s cost=%v\n", b.Zone(), b.CostValue())
	return 0
}

func runNormalize(args []string, stdout, stderr io.Writer) int {
	f := &sharedFlags{}
	fs := flag.NewFlagSet("normalize", flag.ContinueOnError)
	fs.SetOutput(stderr)
	bindSharedFlags(fs, f)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	log := newLogger(stderr, f.verbose)

	data, err := readInput(f)
	if err != nil {
		log.Error("input read failed", "error", err)
		return 1
	}
	out, err := normalizer.Default().Reduce(data)
	if err != nil {
		log.Error("normalization failed", "error", err)
		return 1
	}
	if err := writeOutput(f, stdout, append(out, '\n')); err != nil {
		log.Error("output write failed", "error", err)
		return 1
	}
	return 0
}

// runAudit dispatches "audit verify" and "audit tail", both backed by
// audit.Verify (spec.md §4.6 defines verify(log_path); tail is a CLI
// convenience over the same recovered entry list).
func runAudit(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: uscn-cli audit <verify|tail> -a AUDIT [-n N]")
		return 2
	}
	sub, rest := args[0], args[1:]

	f := &sharedFlags{}
	fs := flag.NewFlagSet("audit "+sub, flag.ContinueOnError)
	fs.SetOutput(stderr)
	bindSharedFlags(fs, f)
	n := fs.Int("n", 10, "number of trailing entries (tail only)")
	if err := fs.Parse(rest); err != nil {
		return 2
	}
	log := newLogger(stderr, f.verbose)

	if f.auditLogPath == "" {
		log.Error("audit log path required", "flag", "-a/--audit-log")
		return 2
	}
	entries, err := audit.Verify(f.auditLogPath)
	if err != nil {
		log.Error("audit verification failed", "error", err)
		fmt.Fprintf(stdout, "VALIDATION_FAILED: %v\n", err)
		return 1
	}

	switch sub {
	case "verify":
		for _, e := range entries {
			fmt.Fprintf(stdout, "seq=%d op=%s hash_ref=%s compliance=%s ts=%d\n",
				e.Seq, e.Operation, e.HashRef, e.Compliance, e.Timestamp)
		}
		fmt.Fprintf(stdout, "%d entries verified\n", len(entries))
	case "tail":
		start := 0
		if len(entries) > *n {
			start = len(entries) - *n
		}
		for _, e := range entries[start:] {
			fmt.Fprintf(stdout, "seq=%d op=%s hash_ref=%s compliance=%s ts=%d\n",
				e.Seq, e.Operation, e.HashRef, e.Compliance, e.Timestamp)
		}
	default:
		fmt.Fprintf(stderr, "unknown audit subcommand %q\n", sub)
		return 2
	}
	return 0
}

func runBenchmark(args []string, stdout, stderr io.Writer) int {
	f := &sharedFlags{}
	fs := flag.NewFlagSet("benchmark", flag.ContinueOnError)
	fs.SetOutput(stderr)
	bindSharedFlags(fs, f)
	iterations := fs.Int("n", 1000, "number of validation iterations")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	log := newLogger(stderr, f.verbose)

	s, err := loadSchema(f)
	if err != nil {
		log.Error("schema load failed", "error", err)
		return 1
	}
	data, err := readInput(f)
	if err != nil {
		log.Error("input read failed", "error", err)
		return 1
	}
	if f.auditLogPath == "" {
		log.Error("audit log path required", "flag", "-a/--audit-log")
		return 2
	}
	auditLog, err := audit.Init(f.auditLogPath, s.Compliance)
	if err != nil {
		log.Error("audit init failed", "error", err)
		return 1
	}
	defer auditLog.Cleanup()

	opts := validate.Options{
		Alpha:           f.alpha,
		Beta:            f.beta,
		ZeroTrust:       !f.noZeroTrust,
		InlineNormalize: !f.noNASA,
	}
	v, err := validate.New(opts, s, auditLog)
	if err != nil {
		log.Error("validator construction failed", "error", err)
		return 1
	}

	start := time.Now()
	succeeded := 0
	latencies := make([]time.Duration, 0, *iterations)
	for i := 0; i < *iterations; i++ {
		b, err := buffer.New(data, buffer.MaxBufferSize, buffer.SecurityNone)
		if err != nil {
			log.Error("buffer construction failed", "error", err)
			return 1
		}
		iterStart := time.Now()
		err = v.Validate(b)
		latencies = append(latencies, time.Since(iterStart))
		if err == nil {
			succeeded++
		}
	}
	elapsed := time.Since(start)
	p50, p99 := latencyPercentiles(latencies)
	fmt.Fprintf(stdout, "iterations=%d succeeded=%d elapsed=%s rate=%.0f/s p50=%s p99=%s\n",
		*iterations, succeeded, elapsed, float64(*iterations)/elapsed.Seconds(), p50, p99)
	return 0
}

// latencyPercentiles sorts a copy of samples and returns its p50 and
// p99 latency (SPEC_FULL.md §D). Returns zero durations for an empty
// input.
func latencyPercentiles(samples []time.Duration) (p50, p99 time.Duration) {
	if len(samples) == 0 {
		return 0, 0
	}
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[percentileIndex(len(sorted), 0.50)], sorted[percentileIndex(len(sorted), 0.99)]
}

// percentileIndex maps a fraction in [0,1) to an index into a sorted
// slice of length n using nearest-rank.
func percentileIndex(n int, fraction float64) int {
	rank := fraction * float64(n)
	idx := int(rank) // ceil(rank)-1 when rank is fractional
	if float64(idx) == rank && idx > 0 {
		idx-- // whole rank: 1-based rank maps to index rank-1
	}
	if idx >= n {
		idx = n - 1
	}
	return idx
}
