package cmd

import (
	"github.com/spf13/cobra"
)

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for requester.

To load completions:

Bash:
  $ source <(requester completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ requester completion bash > /etc/bash_completion.d/requester
  # macOS:
  $ requester completion bash > $(brew --prefix)/etc/bash_completion.d/requester

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ requester completion zsh > "${fpath[1]}/_requester"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ requester completion fish | source

  # To load completions for each session, execute once:
  $ requester completion fish > ~/.config/fish/completions/requester.fish

PowerShell:
  PS> requester completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> requester completion powershell > requester.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  usageArgs(cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs)),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
}
