package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"metroview/internal/httpapi"
	"metroview/internal/lines"
	"metroview/internal/overlay"
	"metroview/internal/routeclient"
	"metroview/internal/scene"
)

var (
	renderStart    string
	renderEnd      string
	renderStrategy string
	renderOut      string
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Query one route and write the diagram with its overlay",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		start, end := strings.TrimSpace(renderStart), strings.TrimSpace(renderEnd)
		if start == "" || end == "" {
			return errors.New("--start and --end are required")
		}
		if start == end {
			return errors.New("start and end are the same station")
		}
		strategy := renderStrategy
		if strategy == "" {
			strategy = cfg.DefaultStrategy
		}

		logger := httpapi.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel)

		svg, err := scene.LoadSVG(cfg.DiagramPath)
		if err != nil {
			return err
		}
		client, err := routeclient.New(logger, routeclient.Options{
			BaseURL: cfg.RouteServiceURL,
			Timeout: cfg.RequestTimeout,
		}, nil)
		if err != nil {
			return fmt.Errorf("route client: %w", err)
		}

		res, err := client.Route(context.Background(), start, end, strategy)
		if err != nil {
			return err
		}

		out := overlay.New(svg, logger, nil).RenderWithTransfers(res.Route, lines.TransferStations(res.Segments))
		if p, ok := svg.Resolve(start); ok {
			svg.DrawHighlight(scene.Highlight{Role: scene.RoleStart, Station: start, Point: p})
		}
		if p, ok := svg.Resolve(end); ok {
			svg.DrawHighlight(scene.Highlight{Role: scene.RoleEnd, Station: end, Point: p})
		}

		printSummary(cmd.ErrOrStderr(), lines.Summarize(res), out.Missing)

		var w io.Writer = cmd.OutOrStdout()
		if renderOut != "" && renderOut != "-" {
			f, err := os.Create(renderOut)
			if err != nil {
				return fmt.Errorf("create %s: %w", renderOut, err)
			}
			defer f.Close()
			w = f
		}
		if _, err := svg.WriteTo(w); err != nil {
			return fmt.Errorf("write diagram: %w", err)
		}
		return nil
	},
}

func printSummary(w io.Writer, sum lines.Summary, missing []string) {
	fmt.Fprintf(w, "%d 站，%d 次换乘\n", sum.Stations, sum.Transfers)
	for i, seg := range sum.Segments {
		fmt.Fprintf(w, "  %s  %s → %s (%d站)\n", seg.Line, seg.Start, seg.End, seg.Stations)
		if i < len(sum.Segments)-1 {
			fmt.Fprintf(w, "    在 %s 换乘\n", seg.End)
		}
	}
	if len(missing) > 0 {
		fmt.Fprintf(w, "  not on diagram: %s\n", strings.Join(missing, ", "))
	}
}

func init() {
	renderCmd.Flags().StringVar(&renderStart, "start", "", "start station")
	renderCmd.Flags().StringVar(&renderEnd, "end", "", "end station")
	renderCmd.Flags().StringVar(&renderStrategy, "strategy", "", "route strategy (default from config)")
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "-", "output file, - for stdout")
	rootCmd.AddCommand(renderCmd)
}
