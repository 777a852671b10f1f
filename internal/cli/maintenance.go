package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"intratool/internal/backup"
	"intratool/internal/federation"
)

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "List the tables a federated query can reach",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(rootOpts)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			tables, err := rt.exec.Schema(cmd.Context())
			if err != nil {
				return err
			}
			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), tables)
			}
			_, err = io.WriteString(cmd.OutOrStdout(), federation.Describe(tables))
			return err
		},
	}
}

// NewBackupCommand creates the backup command.
func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot every existing module file",
		Long: `Write a consistent copy of every existing module file into a new
timestamped directory under backup.dir, then prune old sets down to
backup.retention. With --list, only show the existing sets.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(rootOpts)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			var sets []backup.Set
			if list {
				sets, err = rt.backup.List()
			} else {
				var set backup.Set
				set, err = rt.backup.Run(cmd.Context())
				sets = []backup.Set{set}
			}
			if err != nil {
				return err
			}
			return printSets(cmd.OutOrStdout(), rootOpts.Format, sets)
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list existing backup sets")
	return cmd
}

func printSets(w io.Writer, format string, sets []backup.Set) error {
	if format == "json" {
		return writeJSON(w, sets)
	}
	tw := newTabbedWriter(w, "SET", "CREATED", "FILES", "SIZE")
	for _, set := range sets {
		var size int64
		for _, f := range set.Files {
			size += f.Size
		}
		tw.WriteLine(set.Name, set.CreatedAt, len(set.Files), fmt.Sprintf("%d", size))
	}
	return tw.Done()
}
