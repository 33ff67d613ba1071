package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func validateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the catalog and compare the database with the tables it requires",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, a)
		},
	}
}

func runValidate(cmd *cobra.Command, a *app) error {
	_, reg, err := a.loadCatalog()
	if err != nil {
		return err
	}
	client, err := a.open(reg)
	if err != nil {
		return err
	}
	defer client.Close()

	res, err := client.Validate(contextOf(cmd))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if !res.HasErrors() && !res.HasWarnings() {
		fmt.Fprintln(out, "No issues found.")
		return nil
	}
	fmt.Fprintln(out, res.String())
	if res.HasErrors() {
		return fmt.Errorf("validation found errors")
	}
	return nil
}
