package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/cafeteria-menu/internal/parser"
)

func newParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <file|->",
		Short: "Parse a saved menu page and print the extracted menu",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			var page []byte
			if args[0] == "-" {
				page, err = io.ReadAll(cmd.InOrStdin())
			} else {
				page, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read page: %w", err)
			}

			m := parser.New(parser.Config{BaseURL: cfg.Parser.BaseURL}).Parse(string(page))
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(m)
		},
	}
}
