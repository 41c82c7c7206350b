// Package main provides the gpulinalg CLI.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/born-ml/gpulinalg/linalg"
)

const version = "v0.0.1-dev"

type options struct {
	driver  string
	verbose bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "gpulinalg",
		Short:        "Accelerated float32 linear algebra",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.driver, "driver", "host", "accelerator driver ("+strings.Join(linalg.Drivers(), ", ")+")")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log kernel builds and dispatch geometry")
	root.AddCommand(newVersionCmd(), newDevicesCmd(opts), newRunCmd(opts))
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gpulinalg %s\n", version)
		},
	}
}

func newDevicesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the devices of the selected driver",
		RunE: func(cmd *cobra.Command, _ []string) error {
			infos, err := linalg.Devices(opts.driver)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for i, d := range infos {
				fmt.Fprintf(w, "Device %d: %s\n", i, d.Name)
				fmt.Fprintf(w, "  Platform:        %s (%s)\n", d.Platform, d.Vendor)
				fmt.Fprintf(w, "  Type:            %s\n", d.Type)
				fmt.Fprintf(w, "  Compute units:   %d\n", d.ComputeUnits)
				fmt.Fprintf(w, "  Work-group size: %d %v\n", d.MaxWorkGroupSize, d.MaxWorkItemSizes)
				fmt.Fprintf(w, "  Global memory:   %d MiB (max alloc %d MiB)\n", d.GlobalMemSize>>20, d.MaxMemAllocSize>>20)
				fmt.Fprintf(w, "  Local memory:    %d KiB\n", d.LocalMemSize>>10)
				if d.Extensions != "" {
					fmt.Fprintf(w, "  Extensions:      %s\n", d.Extensions)
				}
			}
			return nil
		},
	}
}

type runFlags struct {
	rows, cols, cols2 int
	fill, fill2       float32
	hostFallback      bool
}

func newRunCmd(opts *options) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:       "run {add|subtract|multiply|divide|dot|matvec}",
		Short:     "Run one operation on filled operands and print the result",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"add", "subtract", "multiply", "divide", "dot", "matvec"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp(cmd.OutOrStdout(), cmd.ErrOrStderr(), opts, f, args[0])
		},
	}
	cmd.Flags().IntVar(&f.rows, "rows", 4, "rows of the first operand")
	cmd.Flags().IntVar(&f.cols, "cols", 4, "columns of the first operand")
	cmd.Flags().IntVar(&f.cols2, "cols2", 4, "columns of the second operand (dot)")
	cmd.Flags().Float32Var(&f.fill, "fill", 1, "value of every element of the first operand")
	cmd.Flags().Float32Var(&f.fill2, "fill2", 2, "value of every element of the second operand")
	cmd.Flags().BoolVar(&f.hostFallback, "host-fallback", false, "recompute on the host if the accelerator fails")
	return cmd
}

func runOp(out, logOut io.Writer, opts *options, f *runFlags, op string) error {
	level := zerolog.InfoLevel
	if opts.verbose {
		level = zerolog.DebugLevel
	}
	cfg := linalg.DefaultConfig()
	cfg.Driver = opts.driver
	cfg.HostFallback = f.hostFallback
	cfg.Logger = zerolog.New(zerolog.ConsoleWriter{Out: logOut}).Level(level).With().Timestamp().Logger()

	ctx, err := linalg.Initialize(cfg)
	if err != nil {
		return err
	}
	defer ctx.Teardown()

	a := linalg.CreateFilledShape(f.rows*f.cols, f.fill)
	var result []float32
	switch op {
	case "add":
		err = ctx.Add(a, linalg.CreateFilledShape(f.rows*f.cols, f.fill2), &result, f.rows, f.cols)
	case "subtract":
		err = ctx.Subtract(a, linalg.CreateFilledShape(f.rows*f.cols, f.fill2), &result, f.rows, f.cols)
	case "multiply":
		err = ctx.Multiply(a, linalg.CreateFilledShape(f.rows*f.cols, f.fill2), &result, f.rows, f.cols)
	case "divide":
		err = ctx.Divide(a, linalg.CreateFilledShape(f.rows*f.cols, f.fill2), &result, f.rows, f.cols)
	case "dot":
		result = make([]float32, f.rows*f.cols2)
		err = ctx.DotProduct(a, linalg.CreateFilledShape(f.cols*f.cols2, f.fill2), result, f.rows, f.cols, f.cols2)
	case "matvec":
		result = make([]float32, f.rows)
		err = ctx.MatrixVectorProduct(a, linalg.CreateFilledShape(f.rows, f.fill2), result, f.rows, f.cols)
	default:
		return fmt.Errorf("unknown operation %q", op)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(out, result)
	for name, k := range ctx.Stats().Kernels {
		fmt.Fprintf(out, "%s: %d launch(es), %s device time\n", name, k.Launches, k.DeviceTime)
	}
	return nil
}
