package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"countdown/internal/timeparse"
)

func newParseTimeCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "parse-time TIME...",
		Short: "Parse class times the way the class entry form does",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, arg := range args {
				t, err := timeparse.Parse(arg)
				if err != nil {
					return err
				}
				if asJSON {
					b, err := json.Marshal(t)
					if err != nil {
						return err
					}
					fmt.Fprintln(out, string(b))
					continue
				}
				fmt.Fprintf(out, "%q\t%02d:%02d\t%s\n", arg, t.Hour, t.Minute, t)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print each result as JSON")
	return cmd
}
