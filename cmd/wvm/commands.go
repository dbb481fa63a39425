package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/urfave/cli"

	"github.com/chazu/wordvm/asm"
	"github.com/chazu/wordvm/feedback"
	"github.com/chazu/wordvm/image"
	"github.com/chazu/wordvm/manifest"
	"github.com/chazu/wordvm/server"
	"github.com/chazu/wordvm/vm"
)

// errReported is returned after diagnostics were already printed.
var errReported = cli.NewExitError("", 1)

// project is the manifest in effect for the current directory.
type project struct {
	*manifest.Manifest
}

func loadProject() (*project, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	m, err := manifest.FindAndLoad(wd)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default(wd)
	}
	p := &project{m}
	configureLogging(p)
	return p, nil
}

// inputPath returns the first argument, or the manifest's entry file.
func (p *project) inputPath(c *cli.Context) string {
	if c.NArg() > 0 {
		return c.Args().First()
	}
	return p.EntryPath()
}

func isImage(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".wvmi")
}

// assembleFile assembles path, printing diagnostics on failure.
func assembleFile(path string) (*asm.Result, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	res, err := asm.Assemble(path, bytes.NewReader(src))
	if err != nil {
		fmt.Fprintln(os.Stderr, feedback.Render(err, src, !noColor))
		return nil, errReported
	}
	return res, nil
}

// loadImage assembles or decodes path into an image.
func loadImage(path string) (*image.Image, error) {
	if isImage(path) {
		return image.Load(path)
	}
	res, err := assembleFile(path)
	if err != nil {
		return nil, err
	}
	return image.FromResult(filepath.Base(path), res), nil
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

func cmdAsm(c *cli.Context) error {
	p, err := loadProject()
	if err != nil {
		return err
	}
	path := p.inputPath(c)
	res, err := assembleFile(path)
	if err != nil {
		return err
	}

	out := c.String("output")
	switch {
	case out != "":
	case c.NArg() > 0:
		out = strings.TrimSuffix(path, filepath.Ext(path)) + ".wvmi"
	default:
		out = p.ImagePath()
	}

	img := image.FromResult(filepath.Base(path), res)
	if err := image.Save(out, img); err != nil {
		return err
	}
	fmt.Printf("%s: %d words, %d labels -> %s\n", path, len(res.Code), len(res.Labels), out)
	return nil
}

func cmdRun(c *cli.Context) error {
	p, err := loadProject()
	if err != nil {
		return err
	}
	img, err := loadImage(p.inputPath(c))
	if err != nil {
		return err
	}

	opts := p.VMOptions()
	if c.IsSet("steps") {
		opts = append(opts, vm.StepLimit(c.Int64("steps")))
	}
	if c.IsSet("memory") {
		opts = append(opts, vm.MemorySize(c.Int("memory")))
	}
	if c.Bool("trace") {
		opts = append(opts, vm.Trace(true))
	}

	m, err := vm.New(opts...)
	if err != nil {
		return err
	}
	if err := m.Load(img.Words()); err != nil {
		return err
	}
	m.SetPC(int(img.Entry))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := m.RunContext(ctx); err != nil {
		var rerr *vm.RuntimeError
		if errors.As(err, &rerr) {
			fmt.Fprintln(os.Stderr, feedback.RenderRuntime(rerr, m.Memory(), !noColor))
			return errReported
		}
		return err
	}
	return nil
}

func cmdDisasm(c *cli.Context) error {
	p, err := loadProject()
	if err != nil {
		return err
	}
	img, err := loadImage(p.inputPath(c))
	if err != nil {
		return err
	}
	return asm.DisassembleAll(img.Words(), img.LabelTable(), os.Stdout)
}

func cmdCheck(c *cli.Context) error {
	p, err := loadProject()
	if err != nil {
		return err
	}
	paths := []string(c.Args())
	if len(paths) == 0 {
		paths = []string{p.EntryPath()}
	}

	failed := false
	for _, path := range paths {
		if _, err := assembleFile(path); err != nil {
			if err != errReported {
				return err
			}
			failed = true
		}
	}
	if failed {
		return errReported
	}
	return nil
}

func cmdLSP(c *cli.Context) error {
	if _, err := loadProject(); err != nil {
		return err
	}
	return server.NewLSP().Run()
}

const starter = `; Entry point. Run with: wvm run
        loads greeting
        call printf
        end

greeting:
        "hello, world\n"
`

func cmdInit(c *cli.Context) error {
	dir := "."
	if c.NArg() > 0 {
		dir = c.Args().First()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(abs, manifest.FileName)); err == nil {
		return fmt.Errorf("%s already exists in %s", manifest.FileName, abs)
	}

	m := manifest.Default(abs)
	m.Project.Version = "0.1.0"
	if err := m.Save(); err != nil {
		return err
	}
	entry := m.EntryPath()
	if _, err := os.Stat(entry); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(entry, []byte(starter), 0o644); err != nil {
			return err
		}
	}
	fmt.Printf("created %s in %s\n", manifest.FileName, abs)
	return nil
}
