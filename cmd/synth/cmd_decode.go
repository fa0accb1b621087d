package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"modelsynth/internal/model"
	"modelsynth/internal/oracle"
	"modelsynth/internal/tactile"
)

var decodeFunction string

// decodeCmd replays a saved ktest-tool dump through a function's decoder
var decodeCmd = &cobra.Command{
	Use:   "decode [model.yaml] [dump.txt|-]",
	Short: "Decode a ktest-tool dump into tuples",
	Long: `Reads the output of ktest-tool (as produced by the execution backend)
and decodes it against a function of the model, the entry point by default.
Each record is printed with the reason it was dropped, if any.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := model.Load(args[0])
		if err != nil {
			return err
		}
		entry, err := m.Graph.Validate(m.Filters)
		if err != nil {
			return err
		}
		fn := entry
		if decodeFunction != "" {
			var ok bool
			if fn, ok = m.Function(decodeFunction); !ok {
				return fmt.Errorf("model has no function %q", decodeFunction)
			}
		}
		o, err := oracleFor(m, fn, fn == entry)
		if err != nil {
			return err
		}
		dump, err := readDump(cmd.InOrStdin(), args[1])
		if err != nil {
			return err
		}
		printRecords(cmd.OutOrStdout(), o.DecodeAll(tactile.ParseKTest(dump)))
		return nil
	},
}

func init() {
	decodeCmd.Flags().StringVarP(&decodeFunction, "function", "f", "", "Function to decode for (default: the entry point)")
}

func readDump(stdin io.Reader, path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read dump: %w", err)
	}
	return string(data), nil
}

func printRecords(out io.Writer, records []oracle.Record) {
	kept := 0
	for _, rec := range records {
		line := rec.Tuple.String()
		if rec.Kept {
			kept++
		} else {
			line += "  # dropped: " + rec.Reason
		}
		if len(rec.Missing) > 0 {
			line += "  # missing: " + strings.Join(rec.Missing, ",")
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "%d of %d records kept\n", kept, len(records))
}
