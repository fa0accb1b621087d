package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"modelsynth/internal/regex"
)

var (
	regexEmitC   bool
	regexRuntime bool
)

// regexCmd checks patterns against sample strings or prints their C encoding
var regexCmd = &cobra.Command{
	Use:   "regex [pattern] [input...]",
	Short: "Test a pattern against inputs or print its C matcher",
	Long: `Parses a pattern in the supported subset (literals, [a-z] classes,
|, *, + and parentheses) and reports for each input whether it matches.

With --emit-c the AST declarations and the match call used in generated C are
printed instead; --runtime adds the matcher runtime.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := regex.Parse(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if regexEmitC {
			if regexRuntime {
				fmt.Fprintln(out, strings.TrimSpace(regex.Runtime))
				fmt.Fprintln(out)
			}
			for _, line := range regex.MatcherBody(r, "input") {
				fmt.Fprintln(out, line)
			}
			return nil
		}
		fmt.Fprintf(out, "pattern: %s\n", r)
		for _, s := range args[1:] {
			verdict := "no match"
			if regex.Matches(r, s) {
				verdict = "match"
			}
			fmt.Fprintf(out, "%q: %s\n", s, verdict)
		}
		return nil
	},
}

func init() {
	regexCmd.Flags().BoolVar(&regexEmitC, "emit-c", false, "Print the C encoding")
	regexCmd.Flags().BoolVar(&regexRuntime, "runtime", false, "With --emit-c, include the matcher runtime")
}
