// Package cmds implements the command tree of the sigscan tool, a
// batch frontend for resolving signatures inside the tool's own
// memory image.
package cmds

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/go-sigscan/sigscan/pkg/config"
	"github.com/go-sigscan/sigscan/pkg/logflags"
	"github.com/go-sigscan/sigscan/pkg/memsig"
	"github.com/go-sigscan/sigscan/pkg/version"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// configFile is the path to a signature file.
	configFile string

	// patternText is an inline pattern to scan for.
	patternText string
	// ops are textual verification operations applied to a raw match.
	ops []string
	// sigName is the signature to resolve from the signature file.
	sigName string
	// scanAll resolves every signature in the signature file.
	scanAll bool
	// fullWalk walks the entire address space instead of the main module image.
	fullWalk bool
	// noCache disables the raw match cache.
	noCache bool
	// listPrefix filters 'list' output to names with a prefix.
	listPrefix string
)

const sigscanLongDesc = `Sigscan locates byte signatures inside the memory image of the running
process, verifies matches with a small operation language and reports the
resolved addresses.

Patterns are sequences of uppercase hex byte values with ?? marking
wildcard positions, for example "48 8B ?? ?? 4C 8D".`

// New returns an initialized command tree.
func New() *cobra.Command {
	rootCommand := &cobra.Command{
		Use:   "sigscan",
		Short: "Sigscan resolves byte signatures in process memory.",
		Long:  sigscanLongDesc,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logflags.Setup(log, logOutput)
		},
		SilenceUsage: true,
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable debug logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", "Comma separated list of components that should produce debug output (scanner, patch, config).")
	rootCommand.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to a signature file.")

	// 'scan' subcommand.
	scanCommand := &cobra.Command{
		Use:   "scan",
		Short: "Resolve a signature and print its address.",
		Long: `Resolve a signature and print its address.

The signature comes either from the command line (--pattern, with zero or
more --op) or from a signature file (--config with --name or --all). The
resolved address is printed both absolute and relative to the scan base.`,
		RunE: scanCmd,
	}
	scanCommand.Flags().StringVarP(&patternText, "pattern", "p", "", "Pattern text to scan for.")
	scanCommand.Flags().StringArrayVar(&ops, "op", nil, `Verification operation, repeatable (e.g. --op "offset 7" --op "cmpi32 0x100000").`)
	scanCommand.Flags().StringVarP(&sigName, "name", "n", "", "Signature name to resolve from the signature file.")
	scanCommand.Flags().BoolVar(&scanAll, "all", false, "Resolve every signature in the signature file.")
	addWalkFlags(scanCommand.Flags())
	rootCommand.AddCommand(scanCommand)

	// 'regions' subcommand.
	regionsCommand := &cobra.Command{
		Use:   "regions",
		Short: "List the memory regions a scan would visit.",
		RunE:  regionsCmd,
	}
	addWalkFlags(regionsCommand.Flags())
	rootCommand.AddCommand(regionsCommand)

	// 'list' subcommand.
	listCommand := &cobra.Command{
		Use:   "list",
		Short: "List the signatures of a signature file.",
		RunE:  listCmd,
	}
	listCommand.Flags().StringVar(&listPrefix, "prefix", "", "Only list signatures whose name starts with this prefix.")
	rootCommand.AddCommand(listCommand)

	// 'version' subcommand.
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sigscan\n%s\n", version.SigscanVersion)
		},
	}
	rootCommand.AddCommand(versionCommand)

	return rootCommand
}

// addWalkFlags registers the flags shared by every command that walks
// memory regions.
func addWalkFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&fullWalk, "full-walk", false, "Walk the entire address space instead of the main module image.")
	fs.BoolVar(&noCache, "no-cache", false, "Do not consult or populate the raw match cache.")
}

func newScanner() (*memsig.Scanner, error) {
	var opts []memsig.ScannerOption
	if fullWalk {
		opts = append(opts, memsig.WithFullAddressSpace())
	}
	if noCache {
		opts = append(opts, memsig.WithoutCache())
	}
	return memsig.NewScanner(opts...)
}

func loadRegistry() (*config.Registry, error) {
	if configFile == "" {
		return nil, errors.New("no signature file, use --config")
	}
	f, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	return f.Build()
}

func scanCmd(cmd *cobra.Command, args []string) error {
	s, err := newScanner()
	if err != nil {
		return err
	}

	if patternText != "" {
		instrs, err := config.ParseOps(ops)
		if err != nil {
			return err
		}
		cfg, err := memsig.NewConfig(patternText, instrs...)
		if err != nil {
			return err
		}
		addr, ok := s.Scan(cfg)
		printResult(s, patternText, addr, ok)
		if !ok {
			os.Exit(1)
		}
		return nil
	}

	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	var names []string
	switch {
	case scanAll:
		names = reg.Names("")
	case sigName != "":
		names = []string{sigName}
	default:
		return errors.New("nothing to scan, use --pattern, --name or --all")
	}

	missed := false
	for _, name := range names {
		addr, ok := reg.Resolve(s, name)
		printResult(s, name, addr, ok)
		missed = missed || !ok
	}
	if missed {
		os.Exit(1)
	}
	return nil
}

func printResult(s *memsig.Scanner, what string, addr uint64, ok bool) {
	if !ok {
		fmt.Printf("%s: not found\n", what)
		return
	}
	if base := s.Base(); base != 0 && addr >= base {
		fmt.Printf("%s: %#x (module+%#x)\n", what, addr, addr-base)
		return
	}
	fmt.Printf("%s: %#x\n", what, addr)
}

func regionsCmd(cmd *cobra.Command, args []string) error {
	s, err := newScanner()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 4, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Start\tEnd\tSize\tProt\t\n")
	for _, r := range s.Regions() {
		fmt.Fprintf(w, "%#x\t%#x\t%#x\t%s\t\n", r.Addr, r.End(), r.Size, protString(r))
	}
	return w.Flush()
}

func protString(r memsig.Region) string {
	b := []byte("---")
	if r.Read {
		b[0] = 'r'
	}
	if r.Write {
		b[1] = 'w'
	}
	if r.Exec {
		b[2] = 'x'
	}
	return string(b)
}

func listCmd(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	for _, name := range reg.Names(listPrefix) {
		fb, _ := reg.Lookup(name)
		fmt.Printf("%s (%d patterns)\n", name, len(fb.Configs()))
	}
	return nil
}
