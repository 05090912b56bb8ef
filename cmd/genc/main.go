package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime/debug"

	"github.com/stealthrocket/stackless/codegen"
	"github.com/stealthrocket/stackless/compiler"
)

const usage = `
genc compiles Go generators into stackless state machines.

Functions documented with the //genc:generator directive are compiled into
a state machine type with a constructor named after the function.

USAGE:
  genc [OPTIONS] [PATH]

OPTIONS:
  -o, --output NAME      Name of the generated file in each package
                         (default: genc_generated.go)
  -t, --tags TAGS        Build constraint of generated files
      --dump             Print the compiled programs as YAML instead of
                         generating code
      --no-slot-reuse    Give every persisted binding its own slot
      --verbose          Report compilation progress
  -h, --help             Show this help information
  -v, --version          Show the compiler version
`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Usage = func() { println(usage[1:]) }

	var (
		output      string
		buildTags   string
		dump        bool
		noSlotReuse bool
		verbose     bool
		showVersion bool
	)
	flag.StringVar(&output, "o", "genc_generated.go", "")
	flag.StringVar(&output, "output", "genc_generated.go", "")
	flag.StringVar(&buildTags, "t", "", "")
	flag.StringVar(&buildTags, "tags", "", "")
	flag.BoolVar(&dump, "dump", false, "")
	flag.BoolVar(&noSlotReuse, "no-slot-reuse", false, "")
	flag.BoolVar(&verbose, "verbose", false, "")
	flag.BoolVar(&showVersion, "v", false, "")
	flag.BoolVar(&showVersion, "version", false, "")

	flag.Parse()

	if showVersion {
		fmt.Println(version())
		return nil
	}

	path := flag.Arg(0)
	if path == "" {
		// If the compiler was invoked via go generate, the GOFILE
		// environment variable will be set with the name of the file
		// that contained the go:generate directive, and the current
		// working directory will be set to the directory that
		// contained the file.
		if gofile := os.Getenv("GOFILE"); gofile != "" {
			path = gofile
		} else {
			path = "."
		}
	}

	options := []codegen.Option{
		codegen.WithOutputFilename(output),
		codegen.WithBuildTags(buildTags),
	}
	if verbose {
		options = append(options, codegen.WithLogger(log.New(os.Stderr, "genc: ", log.LstdFlags|log.Lmicroseconds)))
	}
	if noSlotReuse {
		options = append(options, codegen.WithCompilerOptions(compiler.WithoutSlotReuse()))
	}
	if dump {
		options = append(options, codegen.WithPlanOutput(os.Stdout))
	}
	return codegen.Generate(path, options...)
}

func version() (version string) {
	version = "devel"
	if info, ok := debug.ReadBuildInfo(); ok {
		switch info.Main.Version {
		case "":
		case "(devel)":
		default:
			version = info.Main.Version
		}
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				version += " " + setting.Value
			}
		}
	}
	return
}
