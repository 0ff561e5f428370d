package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/abdul-hamid-achik/requester/packages/import/curl"
	"github.com/spf13/cobra"
)

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <format> <source>",
		Short: "Convert requests from other tools into requester commands",
		Long: `Convert requests written for other tools into requester command lines.

Supported formats:
  curl - curl command lines, given as an argument, a file or on stdin

Examples:
  requester import curl "curl -X POST https://api.example.com/users -d '{\"name\":\"Ada\"}'"
  requester import curl -f commands.sh
  pbpaste | requester import curl -`,
	}
	cmd.AddCommand(newImportCurlCmd())
	return cmd
}

func newImportCurlCmd() *cobra.Command {
	var (
		file string
		fail bool
		out  string
	)

	cmd := &cobra.Command{
		Use:   "curl [command|-]",
		Short: "Convert curl commands",
		Long: `Convert curl commands into requester commands, one per line.

Pass a single command as the argument, "-" to read commands from stdin, or
--file to read them from a file. Lines ending in a backslash continue on the
next line and # starts a comment.`,
		Args: usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			converter := curl.NewConverter(curl.WithExpectSuccess(fail))

			var result string
			var err error
			switch {
			case file != "" && len(args) > 0:
				return usageError(errors.New("give either a command or --file, not both"))
			case file != "":
				result, err = converter.ConvertFile(file)
			case len(args) == 1 && args[0] == "-":
				result, err = converter.ConvertReader(cmd.InOrStdin())
			case len(args) == 1:
				result, err = converter.ConvertCommand(args[0])
				result += "\n"
			default:
				return usageError(errors.New("nothing to convert: pass a curl command, - or --file"))
			}
			if err != nil {
				return &ExitError{Code: ExitParseError, Err: err}
			}

			if out != "" {
				if err := os.WriteFile(out, []byte(result), 0644); err != nil {
					return fmt.Errorf("failed to write output: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d command(s) to %s\n", strings.Count(result, "\n"), out)
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read curl commands from a file")
	cmd.Flags().StringVarP(&out, "output", "o", "", "Write the commands to a file (default: stdout)")
	cmd.Flags().BoolVar(&fail, "fail", false, "Add --fail to every command")
	return cmd
}
