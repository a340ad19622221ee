package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"mendan-go/internal/extractor"
	"mendan-go/internal/piimask"
	"mendan-go/internal/pipeline"
	"mendan-go/internal/porters"
	"mendan-go/internal/sheet"
)

const defaultSheet = "merge_ui"

func newLabelsCmd(opts *options) *cobra.Command {
	var sheetName string
	cmd := &cobra.Command{
		Use:   "labels <document>",
		Short: "Print the label to row index of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := sheet.NewWriter(opts.store(), opts.layout, opts.logger(cmd))
			index, err := w.Resolve(cmd.Context(), sheetRef(args[0], sheetName))
			if err != nil {
				return err
			}
			type entry struct {
				row   int
				label string
			}
			entries := make([]entry, 0, len(index))
			for label, row := range index {
				entries = append(entries, entry{row, label})
			}
			sort.Slice(entries, func(i, j int) bool { return entries[i].row < entries[j].row })
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", e.row, e.label)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sheetName, "sheet", defaultSheet, "worksheet name")
	return cmd
}

func newInitCmd(opts *options) *cobra.Command {
	var sheetName string
	var labels []string
	cmd := &cobra.Command{
		Use:   "init <document>",
		Short: "Create an empty merge document with the given labels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(labels) == 0 {
				return fmt.Errorf("at least one --label is required")
			}
			if err := opts.store().Create(args[0], sheetName, opts.layout, labels); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s with %d labels\n", args[0], len(labels))
			return nil
		},
	}
	cmd.Flags().StringVar(&sheetName, "sheet", defaultSheet, "worksheet name")
	cmd.Flags().StringSliceVarP(&labels, "label", "l", nil, "label for column A, repeatable or comma separated")
	return cmd
}

func newParseCmd(opts *options) *cobra.Command {
	var labels []string
	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Parse a model response read from stdin against a label list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			results := extractor.ParseResponse(opts.logger(cmd), string(raw), labels)
			return printJSON(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().StringSliceVarP(&labels, "label", "l", nil, "requested label, repeatable or comma separated")
	cmd.MarkFlagRequired("label")
	return cmd
}

func newMaskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mask",
		Short: "Mask personal data in JSON (or plain text) read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			var data any
			if err := json.Unmarshal(raw, &data); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), piimask.MaskPatternsInString(strings.TrimRight(string(raw), "\n")))
				return nil
			}
			return printJSON(cmd.OutOrStdout(), piimask.Mask(data))
		},
	}
}

func newImportCmd(opts *options) *cobra.Command {
	var sheetName string
	cmd := &cobra.Command{
		Use:   "import <document> <porters-record-id>",
		Short: "Import an HR-system record into column C using the stub client",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := opts.logger(cmd)
			w := sheet.NewWriter(opts.store(), opts.layout, log)
			sum, err := pipeline.NewImport(w, porters.NewStubClient(log), log).
				Run(cmd.Context(), sheetRef(args[0], sheetName), args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sum)
		},
	}
	cmd.Flags().StringVar(&sheetName, "sheet", defaultSheet, "worksheet name")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version: %s\n", app, version)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
