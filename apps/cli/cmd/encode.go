package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/formstream/packages/multipart"
	"github.com/abdul-hamid-achik/formstream/packages/output"
)

var (
	encodeOutputFileFlag string
	encodeBoundaryFlag   string
)

var encodeCmd = &cobra.Command{
	Use:   "encode <form.yaml>",
	Short: "Write the multipart body of a form",
	Long: `Encode a form definition into a multipart/form-data body.

The body is written to stdout, or to the file given with -o. The content
type and length are reported on stderr so the body stays pipeable.

Examples:
  formstream encode upload.yaml > body.bin
  formstream encode upload.yaml -o body.bin --boundary my-boundary`,
	Args: usageArgs(cobra.ExactArgs(1)),
	RunE: runEncode,
}

func init() {
	encodeCmd.Flags().StringVarP(&encodeOutputFileFlag, "output-file", "o", "", "Write the body to file (default: stdout)")
	encodeCmd.Flags().StringVar(&encodeBoundaryFlag, "boundary", "", "Boundary to use instead of the form's or a random one")
}

func runEncode(cmd *cobra.Command, args []string) error {
	formPath := args[0]

	formatter, err := newFormatter(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	def, err := loadForm(formPath)
	if err != nil {
		return err
	}

	ctx, cancel := interruptContext(cmd.ErrOrStderr())
	defer cancel()

	var opts []multipart.Option
	if encodeBoundaryFlag != "" {
		opts = append(opts, multipart.WithBoundary(encodeBoundaryFlag))
	}
	p, err := buildForm(def, newCooperator(ctx), opts...)
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	var file *os.File
	if encodeOutputFileFlag != "" && encodeOutputFileFlag != "-" {
		file, err = os.Create(encodeOutputFileFlag)
		if err != nil {
			p.Stop()
			return withExitCode(ExitConfigError, fmt.Errorf("create output: %w", err))
		}
		w = file
	}

	err = p.Start(w).Wait(ctx)
	if err != nil {
		p.Stop()
	}
	if file != nil {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close output: %w", cerr)
		}
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", formPath, err)
	}

	formatter.FormatEncode(&output.EncodeResult{
		Form:        formPath,
		ContentType: p.ContentType(),
		Length:      p.Length().Int64(),
		Written:     p.Written(),
		Fields:      p.Fields(),
	})
	return nil
}
