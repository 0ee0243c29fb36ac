package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"refcheck/services"
)

func newImportCmd(open func() (*env, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import works from a CSL-JSON or PDF file",
		Long: `Import works from a CSL-JSON file (array or single object) or a PDF.

Example:
  refctl import library.json
  refctl import paper.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			e, err := open()
			if err != nil {
				return err
			}
			if strings.EqualFold(filepath.Ext(args[0]), ".pdf") {
				w, err := e.importer.ImportPDF(cmd.Context(), filepath.Base(args[0]), data)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), w)
			}
			report, err := e.importer.Import(cmd.Context(), data)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
}

func newVerifyCmd(open func() (*env, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <work-id>",
		Short: "Run a verification against all applicable sources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open()
			if err != nil {
				return err
			}
			report, err := e.engine.Verify(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
}

func newCiteCmd(open func() (*env, error)) *cobra.Command {
	var (
		format string
		inText bool
		page   string
		number int
	)
	cmd := &cobra.Command{
		Use:   "cite <work-id>",
		Short: "Print the citation of a work",
		Long: `Print the citation of a single work as plain text.

Example:
  refctl cite 3f2c... --format bibtex
  refctl cite 3f2c... --in-text --page 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			style, err := services.ParseStyle(format)
			if err != nil {
				return err
			}
			e, err := open()
			if err != nil {
				return err
			}
			w, err := e.repo.GetWork(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			var citation string
			if inText {
				citation, err = e.formatter.InText(w, style, page, number)
			} else {
				citation, err = e.formatter.Format(w, style)
			}
			if err != nil {
				return err
			}
			if w.Retracted {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: work is retracted")
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), citation)
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", string(services.StyleAPA), "citation style: apa, ieee or bibtex")
	cmd.Flags().BoolVar(&inText, "in-text", false, "print the in-text citation instead of the reference")
	cmd.Flags().StringVar(&page, "page", "", "page or page range for the in-text citation")
	cmd.Flags().IntVar(&number, "number", 0, "reference number for IEEE in-text citations")
	return cmd
}

func newExportCmd(open func() (*env, error)) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export <work-id>...",
		Short: "Print a bibliography for the given works in order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			style, err := services.ParseStyle(format)
			if err != nil {
				return err
			}
			e, err := open()
			if err != nil {
				return err
			}
			bib, err := e.exporter.Export(cmd.Context(), args, style)
			if err != nil {
				return err
			}
			for _, warning := range bib.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", warning)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), bib.Text)
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", string(services.StyleAPA), "citation style: apa, ieee or bibtex")
	return cmd
}

func newScoreCmd(open func() (*env, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "score <work-id>",
		Short: "Show the reading score of a work",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := open()
			if err != nil {
				return err
			}
			rs, err := e.cards.ReadingScore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rs)
		},
	}
}
