// Command aarch64ld links ELF64 little-endian AArch64 relocatable object
// files into a single statically-linked executable.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aarch64ld/ld64/internal/linker"
	"github.com/aarch64ld/ld64/internal/trace"
)

var (
	verbose     bool
	baseAddress string
	entry       string
	dumpSymbols bool
	cfgFile     string
)

var rootCmd = &cobra.Command{
	Use:   "aarch64ld <output> <input.o> [input.o ...]",
	Short: "Statically link ELF64 AArch64 relocatable objects into an executable",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runLink,
}

func main() {
	cobra.OnInitialize(initConfig)
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "trace each link phase to stderr")
	rootCmd.Flags().StringVar(&baseAddress, "base-address", "", "override the image base address (hex or decimal, default 0x400000)")
	rootCmd.Flags().StringVar(&entry, "entry", "", "override entry-point symbol lookup (default: _start, then main)")
	rootCmd.Flags().BoolVar(&dumpSymbols, "dump-symbols", false, "print the resolved global symbol table to stdout after a successful link")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initConfig reads AARCH64LD_* environment variables and an optional
// ~/.aarch64ld.yaml, the way cucaracha's root command wires up viper.
func initConfig() {
	home, err := os.UserHomeDir()
	if err == nil {
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".aarch64ld")
	}
	viper.SetEnvPrefix("AARCH64LD")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	}
}

func runLink(cmd *cobra.Command, args []string) error {
	output := args[0]
	inputs := args[1:]

	base := uint64(0)
	baseFlag := baseAddress
	if baseFlag == "" {
		baseFlag = viper.GetString("base_address")
	}
	if baseFlag != "" {
		parsed, err := parseAddress(baseFlag)
		if err != nil {
			return fmt.Errorf("--base-address: %w", err)
		}
		base = parsed
	}

	entrySym := entry
	if entrySym == "" {
		entrySym = viper.GetString("entry")
	}

	tracer := trace.New(verbose)

	opts := linker.Options{
		BaseAddress: base,
		Entry:       entrySym,
		Tracer:      tracer,
	}
	if dumpSymbols {
		opts.DumpSymbols = printSymbolTable
	}

	image, err := linker.Link(inputs, opts)
	if err != nil {
		return err
	}

	if err := os.WriteFile(output, image, 0o755); err != nil {
		return fmt.Errorf("writing %s: %w", output, err)
	}
	return nil
}

func printSymbolTable(symbols map[string]uint64) {
	names := make([]string, 0, len(symbols))
	for name := range symbols {
		names = append(names, name)
	}
	sort.Strings(names)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	rows := make(map[string]string, len(names))
	for _, name := range names {
		rows[name] = fmt.Sprintf("0x%x", symbols[name])
	}
	enc.Encode(rows)
}

// parseAddress accepts both "0x400000" and "4194304" forms.
func parseAddress(s string) (uint64, error) {
	var v uint64
	var err error
	if len(s) > 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		_, err = fmt.Sscanf(s, "0x%x", &v)
	} else {
		_, err = fmt.Sscanf(s, "%d", &v)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return v, nil
}
