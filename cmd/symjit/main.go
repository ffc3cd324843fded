// symjit CLI - inspects the host, self-tests the runners and examines
// saved artifacts
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/chazu/symbridge/config"
	"github.com/chazu/symbridge/host"
	"github.com/chazu/symbridge/pkg/bytecode"
	"github.com/chazu/symbridge/pkg/codegen"
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	verbose := flag.Int("v", 0, "Log verbosity (0 = errors only, 4 = debug)")
	configPath := flag.String("config", "", "Config file (default: nearest "+config.FileName+")")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: symjit [options] <command> [args...]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  host                   Show detected CPU features and runner lanes\n")
		fmt.Fprintf(os.Stderr, "  selftest [-save dir]   Compile and check reference expressions\n")
		fmt.Fprintf(os.Stderr, "  inspect <file>...      Print artifact headers and host compatibility\n")
		fmt.Fprintf(os.Stderr, "  disasm <file>          Disassemble the bytecode inside an artifact\n")
		fmt.Fprintf(os.Stderr, "  cache [list|prune AGE] Manage the artifact cache\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  symjit host\n")
		fmt.Fprintf(os.Stderr, "  symjit -v 4 selftest              # With debug logging\n")
		fmt.Fprintf(os.Stderr, "  symjit selftest -save /tmp/sj     # Keep the artifacts\n")
		fmt.Fprintf(os.Stderr, "  symjit inspect /tmp/sj/*.sjit\n")
		fmt.Fprintf(os.Stderr, "  symjit cache prune 720h\n")
	}
	flag.Parse()

	commonlog.Configure(*verbose, nil)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case "host":
		err = runHost()
	case "selftest":
		var cfg config.Config
		cfg, err = loadConfig(*configPath)
		if err == nil {
			err = runSelftest(args[1:], cfg)
		}
	case "inspect":
		err = runInspect(args[1:])
	case "disasm":
		err = runDisasm(args[1:])
	case "cache":
		err = runCache(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads path, or the nearest config file above the working
// directory, or falls back to the defaults.
func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return config.Default(), nil
	}
	cfg, found, err := config.FindAndLoad(wd)
	if err != nil {
		return cfg, err
	}
	if !found {
		return config.Default(), nil
	}
	return cfg, nil
}

func runHost() error {
	caps := host.Detect()
	fmt.Printf("Architecture: %s\n", caps.Arch)
	if caps.Brand != "" {
		fmt.Printf("CPU:          %s\n", caps.Brand)
	}
	fmt.Printf("Cores:        %d physical, %d logical\n", caps.PhysicalCores, caps.LogicalCores)
	features := "none"
	if fs := caps.Features(); len(fs) > 0 {
		features = strings.Join(fs, " ")
	}
	fmt.Printf("Features:     %s\n", features)
	fmt.Printf("Vector width: %d bits\n", caps.VectorBits)
	fmt.Printf("Lanes:        real %d, complex %d\n", caps.Lanes(bytecode.Real), caps.Lanes(bytecode.Complex))

	if _, ok := codegen.Lookup(caps.Arch); ok {
		fmt.Printf("Backend:      native (%s)\n", caps.ISA())
	} else {
		fmt.Printf("Backend:      none, runners are interpreted\n")
	}
	fmt.Printf("Backends:     %s\n", strings.Join(codegen.Supported(), ", "))
	return nil
}
