package main

import (
	"context"
	"encoding/json"
	"errors"

	"SPost-Planner/internal/bridge"
	"SPost-Planner/internal/planner"
	"SPost-Planner/internal/posts"
	"github.com/spf13/cobra"
)

func newPublishCmd(opts *options) *cobra.Command {
	var content string
	cmd := &cobra.Command{
		Use:   "publish [post-id]",
		Short: "Publish a stored draft, or new --content, through the bridge",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDraft(cmd, opts, args, content, func(ctx context.Context, m *planner.Manager, id string) (posts.Draft, error) {
				return m.Publish(ctx, id)
			})
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "create a draft with this content first")
	return cmd
}

func newScheduleCmd(opts *options) *cobra.Command {
	var content string
	cmd := &cobra.Command{
		Use:   "schedule [post-id] <when>",
		Short: "Schedule a stored draft, or new --content, for a future time",
		Long:  "when is epoch milliseconds, an RFC 3339 time, a local date-time (2006-01-02T15:04) or a date.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			when := args[len(args)-1]
			return withDraft(cmd, opts, args[:len(args)-1], content, func(ctx context.Context, m *planner.Manager, id string) (posts.Draft, error) {
				return m.Schedule(ctx, id, when)
			})
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "create a draft with this content first")
	return cmd
}

func withDraft(cmd *cobra.Command, opts *options, args []string, content string, run func(context.Context, *planner.Manager, string) (posts.Draft, error)) error {
	if len(args) == 0 && content == "" {
		return errors.New("either a post id or --content is required")
	}
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	a, err := wireApp(ctx, opts.cfg, opts.log)
	if err != nil {
		return err
	}
	defer a.Close()
	defer cancel()

	id := ""
	if len(args) > 0 {
		id = args[0]
	} else {
		d, err := a.planner.CreateDraft(ctx, planner.DraftInput{Content: content})
		if err != nil {
			return err
		}
		id = d.ID
	}

	d, err := run(ctx, a.planner, id)
	if err != nil {
		p := bridge.Describe(err)
		if p.Kind == bridge.KindRemote || p.Kind == bridge.KindTimeout {
			return errors.New(string(p.Kind) + ": " + p.Message)
		}
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}
