package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haivivi/voicecollect/cmd/voicecollect/internal/config"
	"github.com/haivivi/voicecollect/pkg/cli"
	"github.com/haivivi/voicecollect/pkg/ledger"
	"github.com/haivivi/voicecollect/pkg/storage"
)

var (
	listFormat string
	listLimit  int

	showFormat string

	rmContext    string
	rmKeepObject bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show recent submissions",
	Long: `Show the recordings uploaded from this machine, newest first.

Examples:
  voicecollect list
  voicecollect list -n 5 --format json
  voicecollect list show <id>
  voicecollect list rm <id>`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := cli.ParseFormat(listFormat)
		if err != nil {
			return err
		}
		if listLimit <= 0 {
			return fmt.Errorf("--limit must be positive, got %d", listLimit)
		}
		cfg, err := GetConfig()
		if err != nil {
			return err
		}

		l, closeLedger, err := openLedger(cfg)
		if err != nil {
			return err
		}
		defer closeLedger()

		entries, err := l.Recent(cmd.Context(), listLimit)
		if err != nil {
			return err
		}
		if entries == nil {
			entries = []ledger.Entry{}
		}
		return cli.Output(entries, cli.OutputOptions{Format: format, Writer: cmd.OutOrStdout()})
	},
}

var listShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one submission",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := cli.ParseFormat(showFormat)
		if err != nil {
			return err
		}
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		l, closeLedger, err := openLedger(cfg)
		if err != nil {
			return err
		}
		defer closeLedger()

		e, err := getEntry(cmd, l, args[0])
		if err != nil {
			return err
		}
		return cli.Output(e, cli.OutputOptions{Format: format, Writer: cmd.OutOrStdout()})
	},
}

var listRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a submission and its uploaded recording",
	Long: `Delete an uploaded recording and drop it from the local journal.

Dry-run recordings are removed from their local directory. Other
recordings are removed from the storage of the given context.

Examples:
  voicecollect list rm 0190a5c4-7d2e-7c1f-9b8e-3f0c2a1d4e5f
  voicecollect list rm -c prod 0190a5c4-7d2e-7c1f-9b8e-3f0c2a1d4e5f
  voicecollect list rm --keep-object 0190a5c4-7d2e-7c1f-9b8e-3f0c2a1d4e5f`,
	Args: cobra.ExactArgs(1),
	RunE: runListRm,
}

func runListRm(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	l, closeLedger, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer closeLedger()

	ctx := cmd.Context()
	e, err := getEntry(cmd, l, args[0])
	if err != nil {
		return err
	}
	if !rmKeepObject {
		store, err := entryStore(cfg, e)
		if err != nil {
			return err
		}
		if err := store.Delete(ctx, e.Path); err != nil {
			return fmt.Errorf("delete %s: %w", e.Path, err)
		}
	}
	if err := l.Delete(ctx, e.ID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %s (%s)\n", e.ID, e.Path)
	return nil
}

func getEntry(cmd *cobra.Command, l *ledger.Ledger, id string) (ledger.Entry, error) {
	e, err := l.Get(cmd.Context(), id)
	if errors.Is(err, ledger.ErrNotFound) {
		return e, fmt.Errorf("submission %q not found", id)
	}
	return e, err
}

// entryStore returns the store e was uploaded to. Dry-run entries carry a
// file:// locator that names their local root.
func entryStore(cfg *config.Config, e ledger.Entry) (storage.ObjectStore, error) {
	if u, err := url.Parse(e.Locator); err == nil && u.Scheme == "file" {
		suffix := string(filepath.Separator) + filepath.FromSlash(e.Path)
		root, ok := strings.CutSuffix(filepath.FromSlash(u.Path), suffix)
		if !ok {
			return nil, fmt.Errorf("locator %s does not end in %s", e.Locator, e.Path)
		}
		return storage.NewLocal(root)
	}
	contextDir, err := cfg.ResolveContext(rmContext)
	if err != nil {
		return nil, err
	}
	sc, err := loadStorageConfig(contextDir)
	if err != nil {
		return nil, err
	}
	return newObjectStore(sc)
}

// openLedger opens the on-disk submission ledger under the config dir.
func openLedger(cfg *config.Config) (*ledger.Ledger, func() error, error) {
	store, err := ledger.NewBadger(ledger.BadgerOptions{
		Dir:    cfg.LedgerDir(),
		Logger: slog.Default(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open submission ledger: %w", err)
	}
	return ledger.New(store, ledger.Options{}), store.Close, nil
}

func init() {
	listCmd.Flags().StringVar(&listFormat, "format", "yaml", "output format (yaml, json)")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "maximum number of submissions")
	listShowCmd.Flags().StringVar(&showFormat, "format", "yaml", "output format (yaml, json)")
	listRmCmd.Flags().StringVarP(&rmContext, "context", "c", "", "context whose storage holds the recording (default: current context)")
	listRmCmd.Flags().BoolVar(&rmKeepObject, "keep-object", false, "only drop the journal entry")
	listCmd.AddCommand(listShowCmd, listRmCmd)
	rootCmd.AddCommand(listCmd)
}
