package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mediapipe/internal/asset"
	"mediapipe/internal/daemonrun"
	"mediapipe/internal/notifications"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var (
		statuses []string
		kind     string
		tag      string
		search   string
		ownerID  int64
		limit    int
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := asset.Filter{OwnerID: ownerID, Tag: tag, Search: search, Limit: limit}
			var err error
			if filter.Statuses, err = assetStatuses(statuses); err != nil {
				return err
			}
			switch k := asset.Kind(strings.ToLower(strings.TrimSpace(kind))); k {
			case "":
			case asset.KindImage, asset.KindVideo:
				filter.Kind = k
			default:
				return fmt.Errorf("unknown kind %q", kind)
			}

			return ctx.withRuntime(cmd, func(rt *daemonrun.Runtime) error {
				assets, err := rt.Assets.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if asJSON {
					out := make([]notifications.Snapshot, 0, len(assets))
					for _, a := range assets {
						out = append(out, notifications.NewEvent(a, a.UpdatedAt).Asset)
					}
					return writeJSON(cmd, out)
				}
				w := cmd.OutOrStdout()
				if len(assets) == 0 {
					fmt.Fprintln(w, "No assets")
					return nil
				}
				rows := make([][]string, 0, len(assets))
				for _, a := range assets {
					rows = append(rows, []string{
						strconv.FormatInt(a.ID, 10),
						a.Name,
						string(a.Kind),
						statusLabel(w, a.Status),
						fmt.Sprintf("%d%%", asset.Progress(a)),
						tagNames(a.Tags),
						a.CreatedAt.Local().Format(time.DateTime),
					})
				}
				fmt.Fprint(w, renderTable(
					[]string{"ID", "Name", "Kind", "Status", "Progress", "Tags", "Created"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().StringVar(&kind, "kind", "", "Filter by kind (image or video)")
	cmd.Flags().StringVar(&tag, "tag", "", "Filter by tag name or slug")
	cmd.Flags().StringVar(&search, "search", "", "Match name, original name or tag")
	cmd.Flags().Int64Var(&ownerID, "owner", 0, "Filter by owner id")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of rows")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an asset with its derivatives, metadata and jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withRuntime(cmd, func(rt *daemonrun.Runtime) error {
				a, err := rt.Assets.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				jobs, err := rt.Jobs.ForAsset(cmd.Context(), id)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, notifications.NewEvent(a, a.UpdatedAt).Asset)
				}

				w := cmd.OutOrStdout()
				rows := [][]string{
					{"Name", a.Name},
					{"Original", a.OriginalName},
					{"MIME", a.MIMEType},
					{"Kind", string(a.Kind)},
					{"Size", strconv.FormatInt(a.Size, 10)},
					{"Status", statusLabel(w, a.Status)},
					{"Progress", fmt.Sprintf("%d%%", asset.Progress(a))},
					{"Original path", a.Path},
					{"Compressed", a.CompressedPath},
					{"Tags", tagNames(a.Tags)},
				}
				if a.ErrorMessage != "" {
					rows = append(rows, []string{"Error", a.ErrorMessage})
				}
				for _, class := range asset.SizeClasses() {
					if path, ok := a.Thumbnails[class]; ok {
						rows = append(rows, []string{"Thumbnail " + string(class), path})
					}
				}
				if m := a.Metadata; m != nil {
					rows = append(rows,
						[]string{"Dimensions", fmt.Sprintf("%dx%d", m.Width, m.Height)},
						[]string{"Codec", m.Codec},
					)
					if a.Kind == asset.KindVideo {
						rows = append(rows,
							[]string{"Duration", fmt.Sprintf("%ds", m.Duration)},
							[]string{"Bitrate", strconv.FormatInt(m.Bitrate, 10)},
							[]string{"Frame rate", strconv.FormatFloat(m.FrameRate, 'f', 3, 64)},
						)
					}
				}
				fmt.Fprintf(w, "Asset %d\n", a.ID)
				fmt.Fprint(w, renderTable([]string{"Field", "Value"}, rows, nil))

				if len(jobs) > 0 {
					fmt.Fprint(w, renderTable(
						[]string{"Job", "Kind", "Status", "Attempts", "Last error"},
						jobRows(jobs),
						[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
					))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newTagCommand(ctx *commandContext) *cobra.Command {
	tagCmd := &cobra.Command{
		Use:   "tag",
		Short: "Manage asset tags",
	}

	tagCmd.AddCommand(&cobra.Command{
		Use:   "add <id> <tag>...",
		Short: "Attach tags to an asset",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withRuntime(cmd, func(rt *daemonrun.Runtime) error {
				if err := rt.Assets.AttachTags(cmd.Context(), id, args[1:]...); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Tagged asset %d\n", id)
				return nil
			})
		},
	})

	tagCmd.AddCommand(&cobra.Command{
		Use:   "remove <id> <tag>...",
		Short: "Detach tags from an asset",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withRuntime(cmd, func(rt *daemonrun.Runtime) error {
				if err := rt.Assets.DetachTags(cmd.Context(), id, args[1:]...); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated tags on asset %d\n", id)
				return nil
			})
		},
	})

	tagCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tags with their asset counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(rt *daemonrun.Runtime) error {
				tags, err := rt.Assets.ListTags(cmd.Context())
				if err != nil {
					return err
				}
				if len(tags) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No tags")
					return nil
				}
				rows := make([][]string, 0, len(tags))
				for _, tag := range tags {
					rows = append(rows, []string{tag.Name, tag.Slug, strconv.Itoa(tag.Assets)})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Tag", "Slug", "Assets"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	})

	return tagCmd
}

func tagNames(tags []asset.Tag) string {
	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.Name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
