package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"mendan-go/internal/config"
	"mendan-go/internal/logger"
	"mendan-go/internal/sheet"
	"mendan-go/internal/sheet/xlsx"
)

const app = "mendanctl"

// Actual version can be specified in build command.
var version = "unknown"

type options struct {
	xlsxRoot string
	debug    bool
	json     bool
	layout   sheet.Layout
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()
	opts := &options{layout: cfg.Sheets.Layout}
	root := &cobra.Command{
		Use:           app,
		Short:         "mendanctl inspects and fills local merge sheets",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if opts.layout.DataStartRow < 1 {
				return fmt.Errorf("SHEET_DATA_START_ROW must be at least 1, got %d", opts.layout.DataStartRow)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.xlsxRoot, "xlsx-root", cfg.Sheets.XLSXRoot, "directory holding .xlsx merge documents")
	root.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "verbose/debug output")
	root.PersistentFlags().BoolVarP(&opts.json, "json", "j", false, "json format for logging")

	root.AddCommand(
		newLabelsCmd(opts),
		newInitCmd(opts),
		newParseCmd(opts),
		newMaskCmd(),
		newImportCmd(opts),
		newVersionCmd(),
	)
	return root
}

// logger writes to stderr so command output stays machine readable.
func (o *options) logger(cmd *cobra.Command) *logrus.Entry {
	l := logger.New()
	l.Logger.SetOutput(cmd.ErrOrStderr())
	if o.debug {
		l.Logger.SetLevel(logrus.DebugLevel)
	}
	if o.json {
		l.Logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}
	return l.WithField("cli", app)
}

func (o *options) store() *xlsx.Store {
	return xlsx.New(o.xlsxRoot)
}

func sheetRef(doc, name string) sheet.Ref {
	return sheet.Ref{SpreadsheetID: doc, SheetName: name}
}
