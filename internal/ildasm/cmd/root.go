package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	pathpkg "path/filepath"
	"runtime/pprof"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/Trazarw/dotnet-ildasm/internal/dasm"
	"github.com/Trazarw/dotnet-ildasm/internal/decoder"
	"github.com/Trazarw/dotnet-ildasm/internal/filter"
	"github.com/Trazarw/dotnet-ildasm/internal/ildasm/config"
	"github.com/Trazarw/dotnet-ildasm/internal/ildasm/log"
	"github.com/Trazarw/dotnet-ildasm/internal/logging"
	"github.com/Trazarw/dotnet-ildasm/internal/ui/colorize"
)

func init() {
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")

	rootCmd.Flags().BoolP("help", "h", false, "Help")
	rootCmd.Flags().StringP("class", "c", "", "Only disassemble the class with this name")
	rootCmd.Flags().StringP("method", "m", "", "Only disassemble methods with this name")
	rootCmd.Flags().StringP("output", "o", "", "Write disassembly to a file instead of stdout")
	rootCmd.Flags().BoolP("no-tui", "n", false, "Print disassembly without the TUI")
	rootCmd.Flags().BoolP("json", "j", false, "Output assembly summary as JSON for regression testing")
	rootCmd.Flags().String("cpuprofile", "", "Write CPU profile to file")
	rootCmd.Flags().String("memprofile", "", "Write memory profile to file")
}

var rootCmd = &cobra.Command{
	Use:   "ildasm [file]",
	Short: "Disassembler for .NET managed binaries",
	Long: `ildasm renders the structural contents of a compiled .NET assembly
(types, methods, instructions, attributes, references) as textual IL.
It provides an interactive TUI for browsing an assembly and a plain
output mode suited to pipes and files.`,
	Example: `
# Browse an assembly interactively
ildasm /path/to/App.dll

# Print the whole disassembly
ildasm -n /path/to/App.dll

# Disassemble a single class
ildasm -c Program /path/to/App.exe > Program.il
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Setup CPU profiling if requested
		cpuprofile, _ := cmd.Flags().GetString("cpuprofile")
		if cpuprofile != "" {
			f, err := os.Create(cpuprofile)
			if err != nil {
				return fmt.Errorf("could not create CPU profile: %v", err)
			}
			defer f.Close()
			if err := pprof.StartCPUProfile(f); err != nil {
				return fmt.Errorf("could not start CPU profile: %v", err)
			}
			defer pprof.StopCPUProfile()
		}

		// Setup memory profiling if requested
		memprofile, _ := cmd.Flags().GetString("memprofile")
		if memprofile != "" {
			defer func() {
				f, err := os.Create(memprofile)
				if err != nil {
					fmt.Fprintf(os.Stderr, "could not create memory profile: %v\n", err)
					return
				}
				defer f.Close()
				if err := pprof.WriteHeapProfile(f); err != nil {
					fmt.Fprintf(os.Stderr, "could not write memory profile: %v\n", err)
				}
			}()
		}

		absPath, err := pathpkg.Abs(args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve path: %v", err)
		}
		if _, err := os.Stat(absPath); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("file not found: %s", args[0])
			}
			return fmt.Errorf("cannot access file: %v", err)
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		debug, _ := cmd.Flags().GetBool("debug")
		log.Setup(debug || cfg.Debug)
		if cfg.NoColor {
			os.Setenv("ILDASM_NO_COLOR", "1")
		}
		if cfg.Style != "" {
			os.Setenv("ILDASM_STYLE", cfg.Style)
		}

		// Build the member filter from the selection flags. An empty
		// value passed explicitly is an error, a flag left unset is
		// no constraint at all.
		var opts []filter.Option
		if cmd.Flags().Changed("class") {
			name, _ := cmd.Flags().GetString("class")
			opts = append(opts, filter.WithType(name))
		}
		if cmd.Flags().Changed("method") {
			name, _ := cmd.Flags().GetString("method")
			opts = append(opts, filter.WithMethod(name))
		}
		memberFilter, err := filter.New(opts...)
		if err != nil {
			return err
		}

		outputPath, _ := cmd.Flags().GetString("output")
		if outputPath == "" {
			outputPath = cfg.Output
		}
		jsonOutput, _ := cmd.Flags().GetBool("json")
		noTUI, _ := cmd.Flags().GetBool("no-tui")

		// A selection, an output file, or a pipe all imply plain
		// output.
		if memberFilter.HasFilter() || outputPath != "" {
			noTUI = true
		}
		if !term.IsTerminal(os.Stdout.Fd()) {
			noTUI = true
			os.Setenv("ILDASM_NO_COLOR", "1")
		}

		if jsonOutput {
			return runJSON(absPath)
		}
		if noTUI {
			return runDisassemble(absPath, memberFilter, outputPath)
		}

		program := tea.NewProgram(
			NewModel(absPath),
			tea.WithAltScreen(),
			tea.WithContext(cmd.Context()),
		)
		if _, err := program.Run(); err != nil {
			slog.Error("TUI run error", "error", err)
			return fmt.Errorf("TUI error: %v", err)
		}
		return nil
	},
}

// runDisassemble decodes the assembly once and renders it through a
// single sink, colorizing only when writing to a terminal.
func runDisassemble(path string, memberFilter *filter.MemberFilter, outputPath string) error {
	logger := logging.NewLogger()
	defer logger.Close()

	asm, err := decoder.Decode(path, logger.Logger)
	if err != nil {
		return err
	}

	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		return dasm.Render(asm, memberFilter, dasm.NewWriterSink(f))
	}

	if term.IsTerminal(os.Stdout.Fd()) && os.Getenv("ILDASM_NO_COLOR") == "" {
		var buf bytes.Buffer
		if err := dasm.Render(asm, memberFilter, dasm.NewWriterSink(&buf)); err != nil {
			return err
		}
		colored, err := colorize.Disassembly(buf.String())
		if err != nil {
			colored = buf.String()
		}
		_, err = io.WriteString(os.Stdout, colored)
		return err
	}

	return dasm.Render(asm, memberFilter, dasm.NewWriterSink(os.Stdout))
}

func Execute() {
	// Check if plain output was requested, or if output is being
	// piped, to bypass fang's markdown rendering.
	noTUI := false
	for _, arg := range os.Args[1:] {
		if arg == "--no-tui" || arg == "-n" || arg == "--json" || arg == "-j" {
			noTUI = true
			break
		}
	}
	if !noTUI && !term.IsTerminal(os.Stdout.Fd()) {
		noTUI = true
	}

	if noTUI {
		// Use cobra directly to avoid fang's automatic markdown rendering
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
	} else {
		// Use fang for enhanced CLI experience with markdown rendering
		if err := fang.Execute(
			context.Background(),
			rootCmd,
			fang.WithNotifySignal(os.Interrupt),
		); err != nil {
			os.Exit(1)
		}
	}
}
