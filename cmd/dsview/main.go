// Command dsview decodes a binary file with one of the bundled formats and
// prints the resulting record tree, or browses it interactively.
package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	ds "github.com/wippyai/datastruct"
	"github.com/wippyai/datastruct/formats/dhcp"
	"github.com/wippyai/datastruct/formats/sealed"
	"github.com/wippyai/datastruct/formats/uf2"
)

// decoder turns file contents into a record.
type decoder func(data []byte, opts options) (*ds.Record, error)

var formats = map[string]decoder{
	"uf2": func(data []byte, opts options) (*ds.Record, error) {
		return uf2.Image.Unpack(data, opts.call()...)
	},
	"dhcp": func(data []byte, opts options) (*ds.Record, error) {
		return dhcp.Message.Unpack(data, opts.call()...)
	},
	"sealed": func(data []byte, opts options) (*ds.Record, error) {
		st, err := sealed.New(opts.key)
		if err != nil {
			return nil, err
		}
		return st.Unpack(data, opts.call()...)
	},
}

func formatNames() []string {
	names := make([]string, 0, len(formats))
	for name := range formats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// options is what a decoder needs besides the data.
type options struct {
	cfg *ds.Config
	key []byte
}

func (o options) call() []ds.CallOption {
	if o.cfg == nil {
		return nil
	}
	return []ds.CallOption{ds.WithConfig(o.cfg)}
}

// fileConfig is the YAML form of ds.Config.
type fileConfig struct {
	Endianness     string `yaml:"endianness"`
	PaddingPattern []byte `yaml:"padding_pattern"`
	PaddingCheck   bool   `yaml:"padding_check"`
	RepeatFill     bool   `yaml:"repeat_fill"`
}

func loadConfig(path string) (*ds.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (*ds.Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg := ds.DefaultConfig().Clone()
	if fc.Endianness != "" {
		e, err := ds.ParseEndianness(fc.Endianness)
		if err != nil {
			return nil, err
		}
		cfg.Endianness = e
	}
	if len(fc.PaddingPattern) > 0 {
		cfg.PaddingPattern = fc.PaddingPattern
	}
	cfg.PaddingCheck = fc.PaddingCheck
	cfg.RepeatFill = fc.RepeatFill
	return cfg, nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	var (
		format      string
		keyHex      string
		configPath  string
		extract     string
		verbose     bool
		interactive bool
	)

	flagSet := pflag.NewFlagSet("dsview", pflag.ContinueOnError)
	flagSet.StringVarP(&format, "format", "f", "", "file format ("+strings.Join(formatNames(), ", ")+")")
	flagSet.StringVarP(&keyHex, "key", "k", "", "hex key for sealed containers")
	flagSet.StringVarP(&configPath, "config", "c", "", "YAML file with codec settings")
	flagSet.StringVarP(&extract, "extract", "x", "", "write the flattened payload of a uf2 image to this file")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log codec events to stderr")
	flagSet.BoolVarP(&interactive, "interactive", "i", false, "browse the decoded record in a TUI")
	flagSet.SetOutput(out)

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if flagSet.NArg() != 1 || format == "" {
		fmt.Fprintln(out, "Usage: dsview -f <format> [-k key] [-c config.yaml] [-v] [-i] <file>")
		flagSet.PrintDefaults()
		return fmt.Errorf("missing format or file")
	}
	path := flagSet.Arg(0)

	dec, ok := formats[format]
	if !ok {
		return fmt.Errorf("unknown format %q", format)
	}

	var opts options
	if configPath != "" {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		opts.cfg = cfg
	}
	if keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil {
			return fmt.Errorf("decode key: %w", err)
		}
		opts.key = key
	}

	if verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		defer logger.Sync()
		ds.SetLogger(logger)
	}

	if interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return fmt.Errorf("interactive mode needs a terminal")
		}
		return runInteractive(path, dec, opts)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	rec, err := dec(data, opts)
	if err != nil {
		return fmt.Errorf("decode %s: %w", format, err)
	}

	fmt.Fprintf(out, "%s: %d bytes\n\n", path, len(data))
	writeTree(out, rec, 0)

	if extract != "" {
		if format != "uf2" {
			return fmt.Errorf("--extract only applies to uf2 images")
		}
		addr, payload, err := uf2.Flatten(rec)
		if err != nil {
			return err
		}
		if err := os.WriteFile(extract, payload, 0o644); err != nil {
			return fmt.Errorf("write payload: %w", err)
		}
		fmt.Fprintf(out, "\nwrote %d bytes at %#x to %s\n", len(payload), addr, extract)
	}
	return nil
}
