package server

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

// applyConfigFile fills every flag that was not given on the command line
// from a yaml document keyed by flag name. Lists are given as yaml sequences.
func applyConfigFile(ctx *cli.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	var doc map[string]yaml.Node
	if err := yaml.NewDecoder(f).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decoding config file: %w", err)
	}

	known := make(map[string]bool)
	for _, flag := range ctx.Command.Flags {
		for _, name := range flag.Names() {
			known[name] = true
		}
	}

	for name, node := range doc {
		if !known[name] || name == "config" {
			return fmt.Errorf("unknown option in config file: %s", name)
		}
		if ctx.IsSet(name) {
			continue
		}
		var values []string
		switch node.Kind {
		case yaml.ScalarNode:
			values = []string{node.Value}
		case yaml.SequenceNode:
			if err := node.Decode(&values); err != nil {
				return fmt.Errorf("option %s: %w", name, err)
			}
		default:
			return fmt.Errorf("option %s: expecting a value or a list", name)
		}
		for _, v := range values {
			if err := ctx.Set(name, v); err != nil {
				return fmt.Errorf("option %s: %w", name, err)
			}
		}
	}
	return nil
}
