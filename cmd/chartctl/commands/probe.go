package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gogpu/chart/backend"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Report which rendering backends are available",
	Long: `Probe detects the backends this machine offers and then activates each
configured backend on its own, reporting which ones come up.`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	prio, err := backend.ParsePriority(cfg.Backend.Priority)
	if err != nil {
		return err
	}
	host := backend.NewSystemHost(discard{}, nil)
	caps := backend.Detect(host)
	fmt.Printf("Detected: %s\n\n", caps)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BACKEND\tOFFERED\tRESULT")
	fmt.Fprintln(w, "-------\t-------\t------")
	for _, tag := range prio {
		fmt.Fprintf(w, "%s\t%v\t%s\n", tag, caps.Supports(tag), probeOne(cmd.Context(), host, tag))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if sel, err := backend.Select(caps, prio); err == nil {
		fmt.Printf("\nPreferred: %s\n", sel)
	}
	return nil
}

func probeOne(ctx context.Context, host backend.Host, tag backend.Tag) string {
	if ctx == nil {
		ctx = context.Background()
	}
	s := backend.NewSurface(backend.WithAcquireTimeout(cfg.Backend.AcquireTimeout))
	defer s.Close()
	err := s.Initialize(ctx, backend.Target{Host: host, Width: 64, Height: 64}, []backend.Tag{tag})
	if err != nil {
		return err.Error()
	}
	c := s.Config()
	return fmt.Sprintf("ok (%v, %dx%d)", c.Format, c.Width, c.Height)
}
