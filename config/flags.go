package config

import (
	"flag"
	"os"
)

const DefaultPath = "config.yaml"

// Flags are the command line arguments of the engine binary.
type Flags struct {
	Path  string
	Setup bool
}

// ParseFlags parses args (without the program name).
func ParseFlags(args []string) (Flags, error) {
	fs := flag.NewFlagSet("cdpengine", flag.ContinueOnError)
	path := fs.String("config", DefaultPath, "path to yaml config")
	setup := fs.Bool("setup", false, "run the interactive configuration wizard and write the config")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	f := Flags{Path: *path, Setup: *setup}
	if _, err := os.Stat(f.Path); os.IsNotExist(err) {
		f.Setup = true
	}

	return f, nil
}
