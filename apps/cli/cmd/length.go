package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/formstream/packages/cooperate"
	"github.com/abdul-hamid-achik/formstream/packages/output"
)

var lengthCmd = &cobra.Command{
	Use:   "length <form.yaml>",
	Short: "Print the Content-Length of a form without encoding it",
	Long: `Compute the exact byte length of the encoded form. No file is read;
only sizes are used. Prints "unknown" when a field streams with an
unknown length.`,
	Args: usageArgs(cobra.ExactArgs(1)),
	RunE: runLength,
}

func runLength(cmd *cobra.Command, args []string) error {
	def, err := loadForm(args[0])
	if err != nil {
		return err
	}

	// Nothing is produced, so the scheduler never runs
	p, err := buildForm(def, cooperate.NewCooperator())
	if err != nil {
		return err
	}
	defer p.Stop()

	if outputFlag != "json" {
		fmt.Fprintln(cmd.OutOrStdout(), p.Length())
		return nil
	}

	formatter, err := newFormatter(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	formatter.FormatEncode(&output.EncodeResult{
		Form:        args[0],
		ContentType: p.ContentType(),
		Length:      p.Length().Int64(),
		Fields:      p.Fields(),
	})
	return nil
}
