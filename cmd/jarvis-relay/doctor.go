package main

import (
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
)

func doctorCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that the relay is ready to run",
		Long: `Verifies the configuration, the credentials for the chosen platform and
that the assistant program can be found. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Jarvis Relay Doctor v%s\n", version)
			fmt.Fprintf(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file
			if _, path, err := loadConfigFile(opts.configPath); err != nil {
				printFail(w, "Config file", err.Error())
				failed++
			} else if path == "" {
				printWarn(w, "Config file", "none, using defaults and flags")
				warned++
			} else {
				printPass(w, "Config file", path)
				passed++
			}

			// 2. Effective configuration
			cfg, err := resolveConfig(cmd, opts)
			if err != nil {
				printFail(w, "Configuration", strings.ReplaceAll(err.Error(), "\n", " "))
				failed++
				fmt.Fprintf(w, "\nResults: %d passed, %d warnings, %d failed\n", passed, warned, failed)
				return fmt.Errorf("%d check(s) failed", failed)
			}
			printPass(w, "Configuration", "valid")
			passed++
			printPass(w, "Platform", cfg.Platform)
			passed++

			// 3. Credentials
			if missing := cfg.MissingCredentials(); len(missing) > 0 {
				printFail(w, "Credentials", "missing "+strings.Join(missing, ", "))
				failed++
			} else {
				printPass(w, "Credentials", "present")
				passed++
			}

			// 4. Assistant program
			if path, err := exec.LookPath(cfg.Program); err != nil {
				printFail(w, "Assistant", fmt.Sprintf("%s not found: %v", cfg.Program, err))
				failed++
			} else {
				printPass(w, "Assistant", path)
				passed++
			}

			// 5. Authorization
			switch {
			case cfg.AllowAll:
				printWarn(w, "Authorization", "everybody may send orders")
				warned++
			case len(cfg.AllowedIDs) == 0:
				printWarn(w, "Authorization", "allow-list is empty, every sender is refused")
				warned++
			default:
				printPass(w, "Authorization", fmt.Sprintf("%d allowed ID(s)", len(cfg.AllowedIDs)))
				passed++
			}

			fmt.Fprintf(w, "\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Fprintf(w, "Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Fprintf(w, "\nPlease fix the failed checks before running the relay.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Fprintf(w, "\nThe relay should work but consider the warnings.\n")
			} else {
				fmt.Fprintf(w, "\nAll checks passed! The relay is ready to run.\n")
			}
			return nil
		},
	}
}

func printPass(w io.Writer, check, detail string) {
	fmt.Fprintf(w, "  [PASS] %-20s %s\n", check, detail)
}

func printFail(w io.Writer, check, detail string) {
	fmt.Fprintf(w, "  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(w io.Writer, check, detail string) {
	fmt.Fprintf(w, "  [WARN] %-20s %s\n", check, detail)
}
