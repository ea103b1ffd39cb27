// bcc CLI - encodes bound programs into objects and links them into an image
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"github.com/xyproto/env/v2"

	"github.com/chazu/bcc/bound"
	"github.com/chazu/bcc/dis"
	"github.com/chazu/bcc/linker"
	"github.com/chazu/bcc/manifest"
	"github.com/chazu/bcc/symdb"
)

var errUsage = errors.New("usage")

func main() {
	verbose := flag.Bool("v", false, "Verbose output (also BCC_VERBOSITY)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: bcc [options] <command> [arguments]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  build [-C dir] [-o image] [-symbols] program.ilb   Encode and link a bound program\n")
		fmt.Fprintf(os.Stderr, "  dis [-symbols db] file                             Disassemble an image or object\n")
		fmt.Fprintf(os.Stderr, "  clean [-C dir]                                     Remove build output\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment:\n")
		fmt.Fprintf(os.Stderr, "  BCC_OUT        output directory, overriding bcc.toml\n")
		fmt.Fprintf(os.Stderr, "  BCC_VERBOSITY  log verbosity\n")
	}
	flag.Parse()

	verbosity := env.Int("BCC_VERBOSITY", 0)
	if *verbose && verbosity < 1 {
		verbosity = 1
	}
	commonlog.Configure(verbosity, nil)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	var err error
	switch args[0] {
	case "build":
		err = runBuild(args[1:], os.Stdout)
	case "dis":
		err = runDis(args[1:], os.Stdout)
	case "clean":
		err = runClean(args[1:], os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// loadLayout finds bcc.toml at or above dir, falling back to defaults, and
// applies the BCC_OUT override.
func loadLayout(dir string) (*manifest.Manifest, linker.Layout, error) {
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return nil, linker.Layout{}, fmt.Errorf("loading manifest: %w", err)
	}
	if m == nil {
		if m, err = manifest.Default(dir); err != nil {
			return nil, linker.Layout{}, err
		}
	}

	layout := m.Layout()
	if out := env.Str("BCC_OUT"); out != "" {
		abs, err := filepath.Abs(out)
		if err != nil {
			return nil, linker.Layout{}, err
		}
		layout.OutDir = abs
	}
	return m, layout, nil
}

// runBuild processes the `bcc build` subcommand.
func runBuild(args []string, out io.Writer) error {
	fset := flag.NewFlagSet("build", flag.ContinueOnError)
	dir := fset.String("C", ".", "Project directory")
	image := fset.String("o", "", "Image file name (default from bcc.toml)")
	symbols := fset.Bool("symbols", false, "Write a symbol database next to the image")
	if err := fset.Parse(args); err != nil {
		return errUsage
	}
	if fset.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: bcc build [-C dir] [-o image] [-symbols] program.ilb")
		return errUsage
	}

	m, layout, err := loadLayout(*dir)
	if err != nil {
		return err
	}
	if *image != "" {
		layout.Image = *image
	}
	if *symbols {
		layout.Symbols = true
	}

	program, err := bound.LoadProgram(fset.Arg(0))
	if err != nil {
		return err
	}

	l := linker.New()
	l.Entry = m.Build.Entry
	l.Progress = out
	_, err = l.Build(program, layout)
	return err
}

// runDis processes the `bcc dis` subcommand. Files ending in .ilo are
// decoded as single objects, everything else as images.
func runDis(args []string, out io.Writer) error {
	fset := flag.NewFlagSet("dis", flag.ContinueOnError)
	symbolsPath := fset.String("symbols", "", "Symbol database (default: <image>.sym when present)")
	if err := fset.Parse(args); err != nil {
		return errUsage
	}
	if fset.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: bcc dis [-symbols db] file")
		return errUsage
	}
	path := fset.Arg(0)

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	dbPath := *symbolsPath
	if dbPath == "" {
		candidate := strings.TrimSuffix(path, filepath.Ext(path)) + ".sym"
		if _, err := os.Stat(candidate); err == nil {
			dbPath = candidate
		}
	}
	names, err := loadNames(dbPath)
	if err != nil {
		return err
	}

	if filepath.Ext(path) == linker.ObjectExt {
		fn, err := dis.DecodeObject(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		return dis.DisassembleObject(out, fn, names)
	}
	img, err := dis.DecodeImage(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return dis.Disassemble(out, img, names)
}

func loadNames(path string) (dis.Names, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("symbol database %s: %w", path, err)
	}
	db, err := symdb.Open(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	names, err := db.Symbols()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return dis.Names(names), nil
}

// runClean processes the `bcc clean` subcommand.
func runClean(args []string, out io.Writer) error {
	fset := flag.NewFlagSet("clean", flag.ContinueOnError)
	dir := fset.String("C", ".", "Project directory")
	if err := fset.Parse(args); err != nil {
		return errUsage
	}

	_, layout, err := loadLayout(*dir)
	if err != nil {
		return err
	}
	if err := linker.New().Clean(layout); err != nil {
		return err
	}
	fmt.Fprintf(out, "Removed %s\n", layout.Root())
	return nil
}
