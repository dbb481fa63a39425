// wvm assembles, runs and inspects wordvm programs.
package main

import (
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	"github.com/urfave/cli"

	_ "github.com/tliron/commonlog/simple"
)

var (
	noColor   bool
	verbosity int
	logFile   string
)

func main() {
	// -v is the verbosity flag
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print the version",
	}

	app := cli.NewApp()
	app.Name = "wvm"
	app.Usage = "assemble, run and inspect wordvm programs"
	app.Version = "0.1.0"

	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:        "no-color",
			Usage:       "hide colors in error messages",
			Destination: &noColor,
		},
		cli.IntFlag{
			Name:        "v, verbose",
			Usage:       "log verbosity (0 quiet, 1 info, 2 debug)",
			Value:       -1,
			Destination: &verbosity,
		},
		cli.StringFlag{
			Name:        "log",
			Usage:       "write logs to `FILE` instead of stderr",
			Destination: &logFile,
		},
	}

	stepsFlag := cli.Int64Flag{
		Name:  "steps",
		Usage: "stop after `N` instructions (0 is unlimited)",
	}
	memoryFlag := cli.IntFlag{
		Name:  "memory",
		Usage: "memory size in words",
	}
	traceFlag := cli.BoolFlag{
		Name:  "trace",
		Usage: "log every executed instruction at debug level",
	}

	app.Commands = []cli.Command{
		{
			Name:      "asm",
			Aliases:   []string{"a"},
			Usage:     "Assemble a source file into an image",
			ArgsUsage: "[file.asm]",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "o, output",
					Usage: "write the image to `FILE`",
				},
			},
			Action: cmdAsm,
		},
		{
			Name:      "run",
			Aliases:   []string{"r"},
			Usage:     "Assemble or load a program and run it",
			ArgsUsage: "[file.asm|file.wvmi]",
			Flags:     []cli.Flag{stepsFlag, memoryFlag, traceFlag},
			Action:    cmdRun,
		},
		{
			Name:      "disasm",
			Aliases:   []string{"d"},
			Usage:     "Print a listing of a program",
			ArgsUsage: "[file.asm|file.wvmi]",
			Action:    cmdDisasm,
		},
		{
			Name:      "check",
			Aliases:   []string{"c"},
			Usage:     "Assemble without writing anything and report errors",
			ArgsUsage: "[file.asm...]",
			Action:    cmdCheck,
		},
		{
			Name:   "lsp",
			Usage:  "Start the assembly language server on stdio",
			Action: cmdLSP,
		},
		{
			Name:      "init",
			Usage:     "Create a wordvm.toml and a starter program",
			ArgsUsage: "[dir]",
			Action:    cmdInit,
		},
	}

	app.Action = func(c *cli.Context) error {
		cli.ShowAppHelp(c)
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// configureLogging sets up commonlog. Flags win over the manifest's [log]
// section.
func configureLogging(p *project) {
	v := p.Log.Verbosity
	if verbosity >= 0 {
		v = verbosity
	}
	path := p.LogPath()
	if logFile != "" {
		path = logFile
	}
	if path == "" {
		commonlog.Configure(v, nil)
	} else {
		commonlog.Configure(v, &path)
	}
}
