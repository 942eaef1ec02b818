package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kdimtricp/homecam/internal/recognition"
)

func newLabelsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "labels",
		Short: "List the labels trained on the recognition box",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.boxClient()
			if err != nil {
				return err
			}
			labels, err := client.Labels(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(labels) == 0 {
				fmt.Fprintln(out, "No labels trained")
				return nil
			}
			rows := make([][]string, len(labels))
			for i, label := range labels {
				rows[i] = []string{strconv.Itoa(i + 1), label}
			}
			printTable(out, tableView{
				Title:   "Trained labels",
				Headers: []string{"#", "Label"},
				Rows:    rows,
				Numeric: []int{0},
				Footer:  fmt.Sprintf("%d label(s)", len(labels)),
			})
			return nil
		},
	}
}

func newRegisterCommand(ctx *commandContext) *cobra.Command {
	req := recognition.DefaultRegisterRequest("")
	var noWait, noRetrain, fullFrame bool

	cmd := &cobra.Command{
		Use:   "register <label>",
		Short: "Capture training images for a person on the box",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.boxClient()
			if err != nil {
				return err
			}
			req.Label = args[0]
			req.Wait = !noWait
			req.Retrain = !noRetrain
			req.FaceOnly = !fullFrame

			res, err := client.Register(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case res.Accepted || res.Running:
				fmt.Fprintf(out, "Capture for %s started in the background\n", req.Label)
			case res.TimeoutHit:
				fmt.Fprintf(out, "Capture for %s timed out after %d images\n", req.Label, res.Count)
			default:
				fmt.Fprintf(out, "Captured %d images for %s\n", res.Count, req.Label)
			}
			if len(res.Labels) > 0 {
				fmt.Fprintf(out, "Trained labels: %s\n", strings.Join(res.Labels, ", "))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&req.TargetCount, "count", "n", req.TargetCount, "Number of images to capture")
	cmd.Flags().IntVar(&req.IntervalMS, "interval-ms", req.IntervalMS, "Delay between captures in milliseconds")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Return as soon as the box accepts the capture")
	cmd.Flags().BoolVar(&noRetrain, "no-retrain", false, "Skip retraining after the capture")
	cmd.Flags().BoolVar(&fullFrame, "full-frame", false, "Save the whole frame instead of the face crop")
	return cmd
}

func newDeleteLabelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <label>",
		Short: "Delete a label and its training images from the box",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.boxClient()
			if err != nil {
				return err
			}
			labels, err := client.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s; %d labels remain\n", args[0], len(labels))
			return nil
		},
	}
}

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show the recognition box status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.boxClient()
			if err != nil {
				return err
			}
			h, err := client.Health(cmd.Context())
			if err != nil {
				return err
			}
			printTable(cmd.OutOrStdout(), healthView(client.BaseURL(), h))
			return nil
		},
	}
}

func healthView(base string, h *recognition.Health) tableView {
	status := "ok"
	if !h.OK {
		status = "no frame"
	}
	recog := "disabled"
	if h.Recognition {
		recog = "enabled"
	}
	rows := [][]string{
		{"Box", base},
		{"Status", status},
		{"Resolution", fmt.Sprintf("%dx%d", h.Width, h.Height)},
		{"FPS", strconv.FormatFloat(h.FPS, 'f', 1, 64)},
		{"JPEG quality", strconv.Itoa(h.Quality)},
		{"Recognition", recog},
		{"Threshold", strconv.FormatFloat(h.Threshold, 'f', 1, 64)},
		{"Labels", strings.Join(h.Labels, ", ")},
	}
	return tableView{Title: "Recognition box", Headers: []string{"Field", "Value"}, Rows: rows}
}
