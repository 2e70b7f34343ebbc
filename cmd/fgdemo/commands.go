package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/backend"
	"github.com/gogpu/framegraph/backend/halrhi"
	"github.com/gogpu/framegraph/rhi"
)

const readbackTimeout = 5 * time.Second

// flags shared by every subcommand.
type flags struct {
	configPath string
	backend    string
	width      uint32
	height     uint32
	frames     int
	verbose    bool

	cfg framegraph.Config
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:   "fgdemo",
		Short: "Compile and run a sample frame graph",
		Long: `fgdemo declares a small deferred-shading frame (geometry, lighting,
an unused debug overlay and a present copy), compiles it and runs it on
one of the registered backends.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := framegraph.LoadConfig(f.configPath)
			if err != nil {
				return err
			}
			f.cfg = cfg
			level := cfg.Level()
			if f.verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			framegraph.SetLogger(logger)
			halrhi.SetLogger(logger)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "YAML config file (missing file means defaults)")
	pf.StringVarP(&f.backend, "backend", "b", backend.BackendNoop, "backend name, empty selects the first that initializes")
	pf.Uint32Var(&f.width, "width", 320, "backbuffer width")
	pf.Uint32Var(&f.height, "height", 180, "backbuffer height")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "log at debug level")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the sample frame on the selected backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFrames(cmd.Context(), cmd.OutOrStdout(), f)
		},
	}
	runCmd.Flags().IntVarP(&f.frames, "frames", "n", 3, "number of frames to execute")

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Compile the sample frame and print its schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspect(cmd.OutOrStdout(), f)
		},
	}

	backendsCmd := &cobra.Command{
		Use:   "backends",
		Short: "List the registered backends in selection order",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range backend.Available() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}

	root.AddCommand(runCmd, inspectCmd, backendsCmd)
	return root
}

// session is an opened backend plus the backbuffer every frame presents to.
type session struct {
	be         backend.Backend
	backbuffer rhi.Image
	opts       []framegraph.Option
	cleanup    []func()
}

func openSession(f *flags) (*session, error) {
	be, err := backend.Open(f.backend)
	if err != nil {
		return nil, err
	}
	s := &session{be: be, cleanup: []func(){be.Close}}
	dev := be.Device()
	s.backbuffer, err = dev.CreateImage(image("backbuffer", f.width, f.height, gputypes.TextureFormatRGBA8Unorm))
	if err != nil {
		s.close()
		return nil, fmt.Errorf("create backbuffer: %w", err)
	}
	s.cleanup = append(s.cleanup, func() { dev.Release(s.backbuffer) })

	s.opts = append(f.cfg.Options(),
		framegraph.WithStateTracker(be.StateTracker()),
		framegraph.WithBindless(be.Bindless()),
	)
	heap := framegraph.NewHeap(dev, f.cfg.HeapBudget)
	s.cleanup = append(s.cleanup, heap.Purge)
	s.opts = append(s.opts, framegraph.WithHeap(heap))
	if f.cfg.Multithreaded {
		pool := framegraph.NewWorkerPool(f.cfg.Workers)
		s.cleanup = append(s.cleanup, pool.Close)
		s.opts = append(s.opts, framegraph.WithJobSystem(pool))
	}
	return s, nil
}

func (s *session) close() {
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
}

// frame declares and compiles one graph on a fresh command buffer.
func (s *session) frame(label string, f *flags) (*framegraph.Graph, *framegraph.ReadbackBuffer, func(), error) {
	cmd, err := s.be.NewCommandBuffer(label)
	if err != nil {
		return nil, nil, nil, err
	}
	done := func() {
		if d, ok := cmd.(interface{ Destroy() }); ok {
			d.Destroy()
		}
	}
	g := framegraph.New(cmd, s.be.Device(), s.opts...)
	rb, err := buildScene(g, s.backbuffer, f.width, f.height)
	if err != nil {
		done()
		return nil, nil, nil, err
	}
	g.Compile()
	return g, rb, done, nil
}

func runFrames(ctx context.Context, w io.Writer, f *flags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(f)
	if err != nil {
		return err
	}
	defer s.close()

	fmt.Fprintf(w, "backend %s, %dx%d\n", s.be.Name(), f.width, f.height)
	for i := range f.frames {
		g, rb, done, err := s.frame(fmt.Sprintf("frame %d", i), f)
		if err != nil {
			return err
		}
		culled, barriers := summarize(g.CompiledPasses())
		if err := g.ExecuteAndWait(ctx); err != nil {
			done()
			return fmt.Errorf("frame %d: %w", i, err)
		}
		histogram, err := readHistogram(ctx, rb)
		rb.Release()
		done()
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		fmt.Fprintf(w, "frame %d: graph %s, %d passes, %d culled, %d barriers, luminance[0]=%d\n",
			i, g.ID(), g.Passes(), culled, barriers, histogram[0])
	}
	return printMetrics(w)
}

func summarize(passes []framegraph.PassInfo) (culled, barriers int) {
	for _, p := range passes {
		if p.Culled {
			culled++
			continue
		}
		barriers += len(p.PreBarriers) + len(p.PostBarriers)
	}
	return culled, barriers
}

// readHistogram waits for the readback and decodes it as little-endian
// counters.
func readHistogram(ctx context.Context, rb *framegraph.ReadbackBuffer) ([]uint32, error) {
	ctx, cancel := context.WithTimeout(ctx, readbackTimeout)
	defer cancel()
	if err := rb.Fence().Wait(ctx); err != nil {
		return nil, err
	}
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for !rb.IsReady() {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("readback: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	raw := make([]byte, rb.Buffer().ByteSize())
	if err := rb.Read(raw); err != nil {
		return nil, err
	}
	out := make([]uint32, len(raw)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return out, nil
}

// printMetrics dumps the framegraph counters from the default registry.
func printMetrics(w io.Writer) error {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "framegraph_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			name := mf.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}
			switch {
			case m.GetCounter() != nil:
				fmt.Fprintf(w, "%s %g\n", name, m.GetCounter().GetValue())
			case m.GetGauge() != nil:
				fmt.Fprintf(w, "%s %g\n", name, m.GetGauge().GetValue())
			case m.GetHistogram() != nil:
				fmt.Fprintf(w, "%s count=%d sum=%g\n", name, m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum())
			}
		}
	}
	return nil
}

func inspect(w io.Writer, f *flags) error {
	s, err := openSession(f)
	if err != nil {
		return err
	}
	defer s.close()

	g, rb, done, err := s.frame("inspect", f)
	if err != nil {
		return err
	}
	defer done()
	defer rb.Release()

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PASS\tNAME\tFLAGS\tREFS\tPRE\tPOST")
	var handles []framegraph.ResourceHandle
	for _, p := range g.CompiledPasses() {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\n",
			p.Index, p.Name, passFlags(p), p.RefCount, len(p.PreBarriers), len(p.PostBarriers))
		handles = append(handles, p.Surrenders...)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RESOURCE\tLABEL\tREFS\tPRODUCER\tLAST\tBYTES\tFINAL")
	for _, h := range handles {
		r := g.Resource(h)
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.Handle, r.Label, r.RefCount, r.Producer, r.LastUsage, r.ByteSize, r.FinalState)
	}
	return tw.Flush()
}

func passFlags(p framegraph.PassInfo) string {
	var out []string
	if p.Culled {
		out = append(out, "culled")
	}
	if p.Compute {
		out = append(out, "compute")
	}
	if p.SideEffect {
		out = append(out, "side-effect")
	}
	if len(out) == 0 {
		return "-"
	}
	return strings.Join(out, ",")
}
