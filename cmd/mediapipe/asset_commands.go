package main

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"mediapipe/internal/asset"
	"mediapipe/internal/config"
	"mediapipe/internal/daemonrun"
	"mediapipe/internal/pipeline"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var (
		ownerID  int64
		name     string
		mimeType string
		tags     []string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "add <file>",
		Short: "Upload a file and queue it for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			file, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open %q: %w", path, err)
			}
			defer file.Close()
			info, err := file.Stat()
			if err != nil {
				return fmt.Errorf("stat %q: %w", path, err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", path)
			}
			if strings.TrimSpace(mimeType) == "" {
				if mimeType, err = detectMIME(file); err != nil {
					return err
				}
			}

			return ctx.withRuntime(cmd, func(rt *daemonrun.Runtime) error {
				created, err := rt.Orchestrator.CreateAsset(cmd.Context(), pipeline.Upload{
					OwnerID:      ownerID,
					Name:         name,
					OriginalName: filepath.Base(path),
					MIMEType:     mimeType,
					Size:         info.Size(),
					Source:       file,
					Tags:         tags,
				})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, pipeline.NewStatusView(created))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added asset %d (%s, %s) status=%s\n",
					created.ID, created.Name, created.MIMEType, created.Status)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&ownerID, "owner", 0, "Owner id recorded on the asset")
	cmd.Flags().StringVar(&name, "name", "", "Display name (defaults to the file name without extension)")
	cmd.Flags().StringVar(&mimeType, "mime", "", "MIME type (detected from the extension or content when empty)")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "Tag to attach (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

// detectMIME prefers the extension mapping and falls back to content sniffing.
// The file offset is restored before returning.
func detectMIME(file *os.File) (string, error) {
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(file.Name()))); byExt != "" {
		return byExt, nil
	}
	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read %s: %w", file.Name(), err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind %s: %w", file.Name(), err)
	}
	return http.DetectContentType(head[:n]), nil
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <id>",
		Short: "Process a pending asset in the foreground",
		Long: "Runs the status transition, compression and finalization for a pending asset in this\n" +
			"process. Thumbnail and metadata jobs are queued for the daemon.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withRuntime(cmd, func(rt *daemonrun.Runtime) error {
				result, err := rt.Orchestrator.Submit(cmd.Context(), id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch {
				case result.NotFound:
					return fmt.Errorf("asset %d not found", id)
				case result.NoOp:
					fmt.Fprintf(out, "Asset %d is %s; nothing to submit\n", id, result.Status)
				case result.Err != nil:
					fmt.Fprintf(out, "Asset %d failed: %v\n", id, result.Err)
				default:
					fmt.Fprintf(out, "Asset %d %s\n", id, result.Status)
				}
				return nil
			})
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Show the processing status of an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withRuntime(cmd, func(rt *daemonrun.Runtime) error {
				view, err := rt.Orchestrator.Status(cmd.Context(), id)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, view)
				}
				out := cmd.OutOrStdout()
				rows := [][]string{
					{"Status", statusLabel(out, view.Status)},
					{"Progress", fmt.Sprintf("%d%%", view.Progress)},
					{"Compressed", yesNo(view.HasCompressed)},
					{"Thumbnails", yesNo(view.HasThumbnails)},
					{"Metadata", yesNo(view.HasMetadata)},
				}
				if view.ErrorMessage != "" {
					rows = append(rows, []string{"Error", view.ErrorMessage})
				}
				fmt.Fprintf(out, "Asset %d\n", view.ID)
				fmt.Fprint(out, renderTable([]string{"Field", "Value"}, rows, nil))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newReprocessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reprocess <id>",
		Short: "Return a completed or failed asset to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withRuntime(cmd, func(rt *daemonrun.Runtime) error {
				result, err := rt.Orchestrator.Reprocess(cmd.Context(), id)
				if err != nil {
					return err
				}
				switch {
				case result.NotFound:
					return fmt.Errorf("asset %d not found", id)
				case result.NoOp:
					return fmt.Errorf("asset %d is %s; only completed or failed assets can be reprocessed", id, result.Status)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Asset %d queued for reprocessing\n", id)
				return nil
			})
		},
	}
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Soft-delete assets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return ctx.withRuntime(cmd, func(rt *daemonrun.Runtime) error {
				for _, id := range ids {
					if err := rt.Orchestrator.Delete(cmd.Context(), id); err != nil {
						return fmt.Errorf("delete asset %d: %w", id, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted asset %d\n", id)
				}
				return nil
			})
		},
	}
}

func assetStatuses(values []string) ([]asset.Status, error) {
	statuses := make([]asset.Status, 0, len(values))
	for _, value := range values {
		status, err := asset.ParseStatus(value)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}
