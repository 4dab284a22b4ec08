// Command bitrot decays a single image file.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/dunamismax/bitrot/internal/decay"
	flag "github.com/spf13/pflag"
)

func main() {
	if err := decay.Startup(); err != nil {
		log.Fatalf("codec startup failed: %v", err)
	}
	code := run(os.Args[1:], os.Stderr)
	decay.Shutdown()
	os.Exit(code)
}

// run returns the process exit code: 2 for bad usage, 1 for a failed decay
// under --strict, 0 otherwise.
func run(args []string, stderr io.Writer) int {
	flags := flag.NewFlagSet("bitrot", flag.ContinueOnError)
	flags.SetOutput(stderr)

	var (
		input     = flags.StringP("input", "i", "", "source image path")
		output    = flags.StringP("output", "o", "", "destination JPEG path")
		integrity = flags.Float64P("integrity", "n", decay.DefaultIntegrity, "1.0 is pristine, 0.0 is fully decayed")
		seed      = flags.Uint64("seed", 0, "fix the grain pattern; random when unset")
		strict    = flags.Bool("strict", false, "exit non-zero when decay fails")
	)
	flags.Usage = func() {
		fmt.Fprintf(stderr, "usage: bitrot -i input.png -o output.jpg [--integrity 0.9]\n")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if *input == "" || *output == "" {
		flags.Usage()
		return 2
	}

	seeded := flags.Changed("seed")
	if !seeded && !*strict {
		decay.DecayFile(*input, *output, *integrity)
		return 0
	}

	opts := []decay.AdapterOption{}
	if seeded {
		opts = append(opts, decay.WithTransform(decay.NewTransform(decay.WithSeed(*seed))))
	}
	res := decay.NewAdapter(opts...).File(*input, *output, *integrity)
	if *strict && !res.OK() {
		return 1
	}
	return 0
}
