package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spreads/client/internal/api"
)

func newWorkflowCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workflow",
		Aliases: []string{"wf"},
		Short:   "List, inspect, create, edit and delete workflows",
	}
	cmd.AddCommand(newWorkflowListCommand(ctx))
	cmd.AddCommand(newWorkflowShowCommand(ctx))
	cmd.AddCommand(newWorkflowCreateCommand(ctx))
	cmd.AddCommand(newWorkflowEditCommand(ctx))
	cmd.AddCommand(newWorkflowDeleteCommand(ctx))
	return cmd
}

func newWorkflowListCommand(ctx *commandContext) *cobra.Command {
	var (
		search   string
		sortBy   string
		order    string
		jsonFlag bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			field, ord, err := api.ParseSort(sortBy, order)
			if err != nil {
				return err
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			workflows, err := client.ListWorkflows(cmd.Context())
			if err != nil {
				return err
			}

			workflows = api.Filter(workflows, search)
			api.Sort(workflows, field, ord)

			if jsonFlag {
				return writeJSON(cmd, workflows)
			}
			out := cmd.OutOrStdout()
			if len(workflows) == 0 {
				fmt.Fprintln(out, "No workflows found")
				return nil
			}

			rows := make([][]string, 0, len(workflows))
			for _, w := range workflows {
				rows = append(rows, []string{
					w.ID,
					w.Name,
					w.Metadata.Title(),
					w.Status,
					strconv.Itoa(len(w.Pages)),
					formatWhen(w.Modified),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Name", "Title", "Status", "Pages", "Modified"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&search, "search", "", "Only show workflows whose name or title contains this text")
	cmd.Flags().StringVar(&sortBy, "sort", string(api.SortByCreated), "Sort by name, created or modified")
	cmd.Flags().StringVar(&order, "order", string(api.Ascending), "Sort order: asc or desc")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Output JSON")
	return cmd
}

func newWorkflowShowCommand(ctx *commandContext) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			wf, err := client.GetWorkflow(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			switch format {
			case "json":
				return writeJSON(cmd, wf)
			case "yaml":
				return writeYAML(cmd, wf)
			case "text":
				printWorkflow(cmd, wf)
				return nil
			default:
				return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "o", "text", "Output format: text, json or yaml")
	return cmd
}

func printWorkflow(cmd *cobra.Command, wf *api.Workflow) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:       %s\n", wf.ID)
	fmt.Fprintf(out, "Name:     %s\n", wf.Name)
	fmt.Fprintf(out, "Slug:     %s\n", wf.Slug)
	fmt.Fprintf(out, "Title:    %s\n", wf.Metadata.Title())
	fmt.Fprintf(out, "Status:   %s\n", wf.Status)
	fmt.Fprintf(out, "Pages:    %d", len(wf.Pages))
	if wf.ExpectedPages > 0 {
		fmt.Fprintf(out, " of %d", wf.ExpectedPages)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Created:  %s\n", formatWhen(wf.Created))
	fmt.Fprintf(out, "Modified: %s\n", formatWhen(wf.Modified))
}

func newWorkflowCreateCommand(ctx *commandContext) *cobra.Command {
	var (
		name     string
		title    string
		authors  []string
		expected int
		metaArgs []string
		confArgs []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a workflow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, err := mergeAssignments(nil, metaArgs)
			if err != nil {
				return err
			}
			config, err := mergeAssignments(nil, confArgs)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("title") || meta["title"] == nil {
				meta["title"] = title
			}
			if len(authors) > 0 {
				meta["creator"] = authors
			}

			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			wf, err := client.CreateWorkflow(cmd.Context(), api.Workflow{
				Name:          strings.TrimSpace(name),
				Metadata:      api.Metadata(meta),
				Config:        config,
				ExpectedPages: expected,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created workflow %s (%s)\n", wf.Name, wf.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Workflow name")
	cmd.Flags().StringVar(&title, "title", "", "Title of the book")
	cmd.Flags().StringSliceVar(&authors, "author", nil, "Author (repeatable)")
	cmd.Flags().IntVar(&expected, "expected-pages", 0, "Number of spreads you expect to capture")
	cmd.Flags().StringArrayVar(&metaArgs, "meta", nil, "Metadata field as key=value (repeatable)")
	cmd.Flags().StringArrayVar(&confArgs, "config", nil, "Workflow setting as key=value (repeatable)")
	return cmd
}

func newWorkflowEditCommand(ctx *commandContext) *cobra.Command {
	var (
		name     string
		title    string
		authors  []string
		metaArgs []string
		confArgs []string
	)

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a workflow's name, metadata or settings",
		Long: `Edit a workflow's name, metadata or settings.

Values given with --meta and --config are parsed as JSON when they can be
and kept as text otherwise. An empty value removes the key.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if !flags.Changed("name") && !flags.Changed("title") && !flags.Changed("author") &&
				len(metaArgs) == 0 && len(confArgs) == 0 {
				return fmt.Errorf("nothing to change (use --name, --title, --author, --meta or --config)")
			}

			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			wf, err := client.GetWorkflow(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			var u api.WorkflowUpdate
			if flags.Changed("name") {
				wf.Name = strings.TrimSpace(name)
				u.Name = wf.Name
			}
			if flags.Changed("title") || flags.Changed("author") || len(metaArgs) > 0 {
				meta, err := mergeAssignments(wf.Metadata, metaArgs)
				if err != nil {
					return err
				}
				if flags.Changed("title") {
					meta["title"] = title
				}
				if flags.Changed("author") {
					meta["creator"] = authors
				}
				wf.Metadata = api.Metadata(meta)
				u.Metadata = wf.Metadata
			}
			if len(confArgs) > 0 {
				config, err := mergeAssignments(wf.Config, confArgs)
				if err != nil {
					return err
				}
				wf.Config = config
				u.Config = config
			}

			if err := api.ValidateWorkflow(*wf); err != nil {
				return err
			}
			updated, err := client.UpdateWorkflow(cmd.Context(), wf.ID, u)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated workflow %s (%s)\n", updated.Name, updated.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "New workflow name")
	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringSliceVar(&authors, "author", nil, "Replace the authors (repeatable)")
	cmd.Flags().StringArrayVar(&metaArgs, "meta", nil, "Set a metadata field as key=value; key= removes it (repeatable)")
	cmd.Flags().StringArrayVar(&confArgs, "config", nil, "Set a workflow setting as key=value; key= removes it (repeatable)")
	return cmd
}

// mergeAssignments applies key=value arguments to a copy of base. A key
// with an empty value is removed.
func mergeAssignments(base map[string]any, args []string) (map[string]any, error) {
	changes, err := parseAssignments(args)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(base)+len(changes))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range changes {
		if v == "" {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out, nil
}

func newWorkflowDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete one or more workflows",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			deleted, err := client.DeleteMany(cmd.Context(), args)
			out := cmd.OutOrStdout()
			for _, id := range deleted {
				fmt.Fprintf(out, "Deleted %s\n", id)
			}
			if err != nil {
				return fmt.Errorf("%d of %d deletions failed:\n%w", len(args)-len(deleted), len(args), err)
			}
			return nil
		},
	}
}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
