package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/relvacode/iso8601"
	"github.com/spf13/cobra"

	"github.com/c360studio/taskjournal/classify"
	"github.com/c360studio/taskjournal/client"
	"github.com/c360studio/taskjournal/config"
	"github.com/c360studio/taskjournal/llm"
	"github.com/c360studio/taskjournal/storage"
	"github.com/c360studio/taskjournal/tasks"
	"github.com/c360studio/taskjournal/taskstore"
	"github.com/c360studio/taskjournal/taxonomy"
)

func migrate(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := storage.Open(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	gw := storage.NewGateway(db, storage.WithLogger(logger))
	defer gw.Close()
	return gw.Migrate(ctx)
}

// newClient loads config and returns an API client for it.
func (g *globals) newClient(cmd *cobra.Command) (*client.Client, error) {
	cfg, err := g.load(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	return client.New(cfg.Client.URL), nil
}

func parseDue(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := iso8601.ParseString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid due date %q: want ISO-8601 such as 2026-10-23T15:00:00", s)
	}
	return &t, nil
}

func classifyCmd(g *globals) *cobra.Command {
	var due string
	cmd := &cobra.Command{
		Use:   "classify <entry>...",
		Short: "Classify an entry with the configured model, without a server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			logger, closer, err := cfg.Log.NewLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closer.Close()

			hint, err := parseDue(due)
			if err != nil {
				return err
			}
			completer := llm.NewClient(cfg.Registry(), llm.WithLogger(logger), llm.WithRetryConfig(llm.SingleAttempt()))
			draft, err := classifyEntry(cmd.Context(), cfg.Classification, completer, logger, strings.Join(args, " "), hint)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), draft)
		},
	}
	cmd.Flags().StringVar(&due, "due", "", "Due date hint (ISO-8601)")
	return cmd
}

func classifyEntry(ctx context.Context, cfg classify.Config, completer classify.Completer, logger *slog.Logger, entry string, due *time.Time) (tasks.Draft, error) {
	svc, err := classify.NewService(completer, cfg, classify.WithLogger(logger))
	if err != nil {
		return tasks.Draft{}, err
	}
	var hint *classify.Hint
	if due != nil {
		hint = &classify.Hint{DueDate: due}
	}
	res, err := svc.Classify(ctx, entry, hint)
	if err != nil {
		return tasks.Draft{}, err
	}
	return res.Draft(strings.TrimSpace(entry)), nil
}

// matchLabel finds the taxonomy label equal to s ignoring case, so users
// can type "follow up" for "Follow up".
func matchLabel(kind taxonomy.Kind, s string) string {
	s = strings.TrimSpace(s)
	for _, l := range taxonomy.Labels(kind) {
		if strings.EqualFold(l, s) {
			return l
		}
	}
	return s
}

func parseType(s string) (taxonomy.Type, error) {
	return taxonomy.ParseType(matchLabel(taxonomy.KindType, s))
}

func parseCategory(s string) (taxonomy.Category, error) {
	return taxonomy.ParseCategory(matchLabel(taxonomy.KindCategory, s))
}

func parseSubcategory(s string) (taxonomy.Subcategory, error) {
	return taxonomy.ParseSubcategory(matchLabel(taxonomy.KindSubcategory, s))
}

// draftFlags are the fields a user may override before saving.
type draftFlags struct {
	name, typ, category, subcategory, who, due string
}

func (f *draftFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "Task name")
	cmd.Flags().StringVar(&f.typ, "type", "", "Type ("+strings.Join(taxonomy.Labels(taxonomy.KindType), ", ")+")")
	cmd.Flags().StringVar(&f.category, "category", "", "Category")
	cmd.Flags().StringVar(&f.subcategory, "subcategory", "", "Subcategory")
	cmd.Flags().StringVar(&f.who, "who", "", "Person involved")
	cmd.Flags().StringVar(&f.due, "due", "", "Due date (ISO-8601)")
}

// applyDraft overrides draft fields with any flags the user set.
func (f *draftFlags) applyDraft(cmd *cobra.Command, d *tasks.Draft) error {
	changed := cmd.Flags().Changed
	if changed("name") {
		d.Name = f.name
	}
	if changed("type") {
		t, err := parseType(f.typ)
		if err != nil {
			return err
		}
		d.Type = t
	}
	if changed("category") {
		c, err := parseCategory(f.category)
		if err != nil {
			return err
		}
		d.Category = c
	}
	if changed("subcategory") {
		if f.subcategory == "" {
			d.Subcategory = nil
		} else {
			s, err := parseSubcategory(f.subcategory)
			if err != nil {
				return err
			}
			d.Subcategory = &s
		}
	}
	if changed("who") {
		d.Who = f.who
	}
	if changed("due") {
		due, err := parseDue(f.due)
		if err != nil {
			return err
		}
		d.DueDate = due
	}
	return nil
}

func addCmd(g *globals) *cobra.Command {
	var (
		flags  draftFlags
		manual bool
		strict bool
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "add <entry>...",
		Short: "Classify an entry and save it as a task",
		Long: `Add sends the entry to the server for classification and saves the result.

When classification fails the entry is saved with the default type and
category unless --strict is given. Any field flag overrides the
classified value.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.newClient(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			entry := strings.TrimSpace(strings.Join(args, " "))

			hint, err := parseDue(flags.due)
			if err != nil {
				return err
			}

			draft := tasks.ManualDraft(entry)
			draft.DueDate = hint
			if !manual {
				res, err := c.Analyze(ctx, entry, hint)
				switch {
				case err == nil:
					draft = tasks.Draft{
						Entry:       entry,
						Name:        res.Name,
						Type:        res.Type,
						Category:    res.Category,
						Subcategory: res.Subcategory,
						Who:         res.Who,
						DueDate:     res.DueDate,
					}
				case strict:
					return err
				default:
					fmt.Fprintf(cmd.ErrOrStderr(), "Classification failed, saving as %s / %s: %v\n",
						taxonomy.DefaultType, taxonomy.DefaultCategory, err)
				}
			}

			if err := flags.applyDraft(cmd, &draft); err != nil {
				return err
			}
			if dryRun {
				return printJSON(cmd.OutOrStdout(), draft)
			}

			t, err := c.Create(ctx, draft)
			if err != nil {
				return err
			}
			printTask(cmd.OutOrStdout(), t)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&manual, "manual", false, "Skip classification")
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail instead of saving defaults when classification fails")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the draft without saving")
	return cmd
}

func listCmd(g *globals) *cobra.Command {
	var (
		filter  taskstore.Filter
		typ     string
		cat     string
		sub     string
		sortKey string
		desc    bool
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.newClient(cmd)
			if err != nil {
				return err
			}

			if typ != "" {
				if filter.Type, err = parseType(typ); err != nil {
					return err
				}
			}
			if cat != "" {
				if filter.Category, err = parseCategory(cat); err != nil {
					return err
				}
			}
			if sub != "" {
				if filter.Subcategory, err = parseSubcategory(sub); err != nil {
					return err
				}
			}
			key, err := taskstore.ParseSortKey(sortKey)
			if err != nil {
				return err
			}
			dir := taskstore.Ascending
			if desc {
				dir = taskstore.Descending
			}

			list, err := c.List(cmd.Context(), client.ListQuery{
				Filter: filter,
				Sort:   taskstore.Sort{Key: key, Direction: dir},
			})
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), list)
			}
			printTaskTable(cmd.OutOrStdout(), list.Tasks)
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d tasks shown, %d completed\n", list.Visible, list.Total, list.Completed)
			return nil
		},
	}
	cmd.Flags().StringVarP(&filter.Search, "search", "s", "", "Search name, entry and who")
	cmd.Flags().StringVar(&typ, "type", "", "Filter by type")
	cmd.Flags().StringVar(&cat, "category", "", "Filter by category")
	cmd.Flags().StringVar(&sub, "subcategory", "", "Filter by subcategory")
	cmd.Flags().StringVar(&filter.Who, "who", "", "Filter by person")
	cmd.Flags().BoolVarP(&filter.ShowCompleted, "all", "a", false, "Include completed tasks")
	cmd.Flags().StringVar(&sortKey, "sort", "", "Sort by name, created_at, updated_at, due_date, type, category, subcategory or who")
	cmd.Flags().BoolVar(&desc, "desc", false, "Sort descending")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func showCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.newClient(cmd)
			if err != nil {
				return err
			}
			t, err := c.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), t)
		},
	}
}

func editCmd(g *globals) *cobra.Command {
	var (
		flags    draftFlags
		entry    string
		clearDue bool
	)
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of a task",
		Long:  "Edit updates only the fields given as flags. An empty --subcategory clears it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := flags.patch(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("entry") {
				p.Entry = &entry
			}
			if clearDue {
				p.DueDate = nil
				p.ClearDueDate = true
			}
			if p.IsEmpty() {
				return errors.New("nothing to change; pass at least one field flag")
			}

			c, err := g.newClient(cmd)
			if err != nil {
				return err
			}
			t, err := c.Update(cmd.Context(), args[0], p)
			if err != nil {
				return err
			}
			printTask(cmd.OutOrStdout(), t)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&entry, "entry", "", "Original entry text")
	cmd.Flags().BoolVar(&clearDue, "clear-due", false, "Remove the due date")
	return cmd
}

// patch builds a partial update from the flags the user set.
func (f *draftFlags) patch(cmd *cobra.Command) (tasks.Patch, error) {
	var p tasks.Patch
	changed := cmd.Flags().Changed
	if changed("name") {
		p.Name = &f.name
	}
	if changed("type") {
		t, err := parseType(f.typ)
		if err != nil {
			return p, err
		}
		p.Type = &t
	}
	if changed("category") {
		c, err := parseCategory(f.category)
		if err != nil {
			return p, err
		}
		p.Category = &c
	}
	if changed("subcategory") {
		if f.subcategory == "" {
			p.ClearSubcategory = true
		} else {
			s, err := parseSubcategory(f.subcategory)
			if err != nil {
				return p, err
			}
			p.Subcategory = &s
		}
	}
	if changed("who") {
		p.Who = &f.who
	}
	if changed("due") {
		due, err := parseDue(f.due)
		if err != nil {
			return p, err
		}
		if due == nil {
			p.ClearDueDate = true
		}
		p.DueDate = due
	}
	return p, nil
}

func doneCmd(g *globals) *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "done <id>",
		Short: "Mark a task completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.newClient(cmd)
			if err != nil {
				return err
			}
			t, err := c.SetCompleted(cmd.Context(), args[0], !undo)
			if err != nil {
				return err
			}
			printTask(cmd.OutOrStdout(), t)
			return nil
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "Mark the task not completed")
	return cmd
}

func logCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "log <id>",
		Short: "Record a task as done right now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.newClient(cmd)
			if err != nil {
				return err
			}
			t, err := c.LogNow(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printTask(cmd.OutOrStdout(), t)
			return nil
		},
	}
}

func rmCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>...",
		Aliases: []string{"delete"},
		Short:   "Delete tasks",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.newClient(cmd)
			if err != nil {
				return err
			}
			var errs []error
			for _, id := range args {
				if err := c.Delete(cmd.Context(), id); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", id, err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
			}
			return errors.Join(errs...)
		},
	}
}

func statsCmd(g *globals) *cobra.Command {
	var (
		tz     string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show dashboard statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.newClient(cmd)
			if err != nil {
				return err
			}
			d, err := c.Stats(cmd.Context(), tz)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), d)
			}
			printDashboard(cmd.OutOrStdout(), d)
			return nil
		},
	}
	cmd.Flags().StringVar(&tz, "tz", "", "IANA zone for day buckets (default: server zone)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}
