package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"intratool/internal/storage"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or migrate every module file",
		Long: `Open every registered module file, creating and initializing missing ones
and migrating existing ones, then print what happened to each.

Exits non-zero when any module failed to migrate.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(rootOpts)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			if err := rt.storage.Warmup(cmd.Context()); err != nil {
				return err
			}
			statuses := rt.storage.Status()
			if err := printStatuses(cmd.OutOrStdout(), rootOpts.Format, statuses); err != nil {
				return err
			}
			var failed []string
			for _, st := range statuses {
				if !st.Healthy() {
					failed = append(failed, st.Module)
				}
			}
			if len(failed) > 0 {
				return fmt.Errorf("migration failed for %s", strings.Join(failed, ", "))
			}
			return nil
		},
	}
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List module files without opening them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(rootOpts)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()
			return printFiles(cmd.OutOrStdout(), rootOpts.Format, rt.storage)
		},
	}
}

// NewRecreateCommand creates the recreate command.
func NewRecreateCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "recreate <file>",
		Short: "Delete a module file and start it over empty",
		Long: `Delete a module file, with everything stored in it, and recreate it from
its initializer. Take a backup first if the content matters. Requires --yes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("recreate %s discards its current content; pass --yes to confirm", args[0])
			}
			rt, err := newRuntime(rootOpts)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			h, err := rt.storage.Recreate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, st := range rt.storage.Status() {
				if st.File == h.File() {
					return printStatuses(cmd.OutOrStdout(), rootOpts.Format, []storage.Status{st})
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the file may be replaced")
	return cmd
}

func printStatuses(w io.Writer, format string, statuses []storage.Status) error {
	if format == "json" {
		return writeJSON(w, statuses)
	}
	tw := newTabbedWriter(w, "MODULE", "FILE", "CREATED", "QUARANTINED", "INITIALIZED", "MIGRATED", "JOURNAL", "ERROR")
	for _, st := range statuses {
		tw.WriteLine(st.Module, st.File, st.Created, dash(st.Quarantined), st.Initialized,
			dash(strings.Join(st.MigrationApplied, "; ")), dash(st.Durability), dash(st.MigrationError))
	}
	return tw.Done()
}

type fileInfo struct {
	Module string `json:"module"`
	File   string `json:"file"`
	Owner  string `json:"owner,omitempty"`
	Exists bool   `json:"exists"`
	Size   int64  `json:"size"`
}

func printFiles(w io.Writer, format string, mgr *storage.Manager) error {
	var files []fileInfo
	for _, d := range mgr.Registry().All() {
		fi := fileInfo{Module: d.ID, File: d.File, Owner: d.Owner}
		if st, err := os.Stat(mgr.Path(d.File)); err == nil {
			fi.Exists = mgr.Exists(d.File)
			fi.Size = st.Size()
		}
		files = append(files, fi)
	}
	if format == "json" {
		return writeJSON(w, files)
	}
	tw := newTabbedWriter(w, "MODULE", "FILE", "OWNER", "EXISTS", "SIZE")
	for _, f := range files {
		tw.WriteLine(f.Module, f.File, dash(f.Owner), f.Exists, f.Size)
	}
	return tw.Done()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
