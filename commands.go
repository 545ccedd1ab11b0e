package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SusheelSathyaraj/CloudDataManager/database"
	"github.com/SusheelSathyaraj/CloudDataManager/frame"
	"github.com/SusheelSathyaraj/CloudDataManager/monitoring"
	"github.com/SusheelSathyaraj/CloudDataManager/storage"
	"github.com/SusheelSathyaraj/CloudDataManager/transfer"
	"github.com/SusheelSathyaraj/CloudDataManager/validation"
)

func newLsCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "ls [prefix]",
		Short: "List objects in the bucket",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.storageClient(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			var prefix string
			if len(args) == 1 {
				prefix = args[0]
			}
			names, err := client.ListObjects(cmd.Context(), a.bucket, prefix, limit)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of objects (default storage.list_limit)")
	return cmd
}

func newGetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <object>",
		Short: "Print an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.storageClient(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			data, err := client.ReadObject(cmd.Context(), args[0], a.bucket)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newPutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "put <object> [text]",
		Short: "Write text, or stdin when text is omitted, to an object",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.storageClient(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			if len(args) == 2 {
				return client.WriteString(cmd.Context(), args[0], args[1], a.bucket)
			}
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return client.WriteObject(cmd.Context(), args[0], data, a.bucket)
		},
	}
}

func newUploadCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file> [object]",
		Short: "Upload a local file, in parts when it is above the multipart threshold",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.storageClient(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			var object string
			if len(args) == 2 {
				object = args[1]
			}
			res, err := client.UploadFile(cmd.Context(), args[0], object, a.bucket)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s to %s/%s (%d bytes, multipart: %v) in %s\n",
				args[0], res.Bucket, res.ObjectName, res.Size, res.Multipart, monitoring.FormatDuration(res.Duration))
			return nil
		},
	}
}

func newDownloadCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "download <object> <file>",
		Short: "Download an object to a local file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.storageClient(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			return client.DownloadFile(cmd.Context(), args[0], args[1], a.bucket)
		},
	}
}

func newRmCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <object>...",
		Short: "Delete objects",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.storageClient(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			for _, name := range args {
				if err := client.DeleteObject(cmd.Context(), name, a.bucket); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newQueryCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a query and print the result as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.warehouseClient(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			df, err := client.ReadSQL(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return df.WriteCSV(cmd.OutOrStdout(), frame.CSVOptions{})
		},
	}
}

func newExecCommand(a *app) *cobra.Command {
	var noCommit bool
	cmd := &cobra.Command{
		Use:   "exec <sql>",
		Short: "Execute a statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.warehouseClient(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			n, err := client.Execute(cmd.Context(), args[0], nil, database.WithCommit(!noCommit))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d rows affected\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noCommit, "no-commit", false, "Roll the statement back instead of committing")
	return cmd
}

func newLoadCommand(a *app) *cobra.Command {
	var (
		prefix, format, ifExists string
		batchSize                int
		validate                 bool
	)
	cmd := &cobra.Command{
		Use:   "load <table> [object...]",
		Short: "Load CSV, Parquet or JSON objects into a warehouse table",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateInput(format, ifExists); err != nil {
				return err
			}
			if len(args) == 1 && prefix == "" {
				return fmt.Errorf("give objects to load or --prefix")
			}
			return a.runTransfer(cmd, transfer.Config{
				Mode:         transfer.LoadMode,
				Bucket:       a.bucket,
				Objects:      args[1:],
				Prefix:       prefix,
				Format:       storage.Format(strings.ToLower(format)),
				Table:        args[0],
				IfExists:     strings.ToLower(ifExists),
				BatchSize:    batchSize,
				ValidateData: validate,
			})
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "Load every object under this prefix")
	cmd.Flags().StringVar(&format, "format", "", "Object format (csv, parquet, json); detected from the name when empty")
	cmd.Flags().StringVar(&ifExists, "if-exists", database.IfExistsAppend, "What to do when the table exists (append, replace, fail)")
	cmd.Flags().IntVar(&batchSize, "batch-size", database.DefaultWriteBatchSize, "Rows per insert batch")
	cmd.Flags().BoolVar(&validate, "validate", true, "Clean column names and verify the row count after loading")
	return cmd
}

func newExportCommand(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export <object> <sql>",
		Short: "Write the result of a query to an object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateInput(format, ""); err != nil {
				return err
			}
			return a.runTransfer(cmd, transfer.Config{
				Mode:    transfer.ExportMode,
				Bucket:  a.bucket,
				Objects: []string{args[0]},
				Format:  storage.Format(strings.ToLower(format)),
				Query:   args[1],
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "Object format (csv, parquet, json); detected from the name when empty")
	return cmd
}

func (a *app) runTransfer(cmd *cobra.Command, cfg transfer.Config) error {
	store, err := a.storageClient(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()
	warehouse, err := a.warehouseClient(cmd.Context())
	if err != nil {
		return err
	}
	defer warehouse.Close()

	result, err := transfer.NewEngine(cfg, store, warehouse).Execute(cmd.Context())
	if result.PostValidation != nil {
		summary := validation.GenerateValidationSummary([]validation.ValidationResult{*result.PostValidation}, result.StartTime)
		summary.Print(cmd.OutOrStdout(), "Post-Load")
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows, %d objects in %s\n",
		cfg.Mode, result.TotalRows, result.ObjectsProcessed, monitoring.FormatDuration(result.Duration))
	return nil
}

func newDescribeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <table>",
		Short: "Print the columns and row count of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.warehouseClient(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			exists, err := client.TableExists(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("table %s does not exist", args[0])
			}
			info, err := client.GetTableInfo(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := info.WriteCSV(cmd.OutOrStdout(), frame.CSVOptions{}); err != nil {
				return err
			}
			n, err := client.CountRows(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d rows\n", n)
			return nil
		},
	}
}
