package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fullstorydev/grpcurl"
	"github.com/jhump/protoreflect/grpcreflect"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joshp123/smartmeter/internal/dataset"
)

var osExit = os.Exit

type globalFlags struct {
	addr    string
	timeout time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		osExit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:          "smartmeter-cli",
		Short:        "Query a running smartmeterd over gRPC",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.addr, "addr", "", "gRPC address (default: $SMARTMETER_GRPC_ADDR or config core.grpc_addr)")
	root.PersistentFlags().DurationVar(&flags.timeout, "timeout", 10*time.Second, "Request timeout")

	root.AddCommand(newGetCmd(flags))
	root.AddCommand(newServicesCmd(flags))
	root.AddCommand(newMethodsCmd(flags))
	root.AddCommand(newCallCmd(flags))
	root.AddCommand(newHealthCmd(flags))
	root.AddCommand(newParseCmd())
	return root
}

// dial connects to the daemon and returns the connection with a context
// bounded by the request timeout.
func (f *globalFlags) dial(cmd *cobra.Command) (context.Context, *grpc.ClientConn, func(), error) {
	addr := f.addr
	if addr == "" {
		addr = resolveAddr()
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), f.timeout)
	conn, err := grpcurl.BlockingDial(ctx, "tcp", addr, insecure.NewCredentials())
	if err != nil {
		cancel()
		return nil, nil, nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return ctx, conn, func() {
		conn.Close()
		cancel()
	}, nil
}

func newGetCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <set>",
		Short: "Print a data set, e.g. data_0_0",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, conn, done, err := flags.dial(cmd)
			if err != nil {
				return err
			}
			defer done()

			data, err := dataset.GetDataSet(ctx, conn, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = out.Write(data)
			if len(data) > 0 && data[len(data)-1] != '\n' {
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func newServicesCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "List gRPC services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, conn, done, err := flags.dial(cmd)
			if err != nil {
				return err
			}
			defer done()

			services, err := grpcurl.ListServices(reflectionSource(ctx, conn))
			if err != nil {
				return fmt.Errorf("list services: %w", err)
			}
			for _, service := range services {
				fmt.Fprintln(cmd.OutOrStdout(), service)
			}
			return nil
		},
	}
}

func newMethodsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "methods <service>",
		Short: "List the methods of a gRPC service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, conn, done, err := flags.dial(cmd)
			if err != nil {
				return err
			}
			defer done()

			methods, err := grpcurl.ListMethods(reflectionSource(ctx, conn), args[0])
			if err != nil {
				return fmt.Errorf("list methods: %w", err)
			}
			for _, method := range methods {
				fmt.Fprintln(cmd.OutOrStdout(), method)
			}
			return nil
		},
	}
}

func newCallCmd(flags *globalFlags) *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "call <service/method>",
		Short: "Invoke any method with a JSON request (from --data or stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, conn, done, err := flags.dial(cmd)
			if err != nil {
				return err
			}
			defer done()

			var reader io.Reader
			switch {
			case data != "":
				reader = strings.NewReader(data)
			case isStdinTerminal():
				reader = strings.NewReader("{}")
			default:
				reader = cmd.InOrStdin()
			}

			descSource := reflectionSource(ctx, conn)
			parser, formatter, err := grpcurl.RequestParserAndFormatter(grpcurl.FormatJSON, descSource, reader, grpcurl.FormatOptions{})
			if err != nil {
				return fmt.Errorf("parse request: %w", err)
			}
			handler := grpcurl.NewDefaultEventHandler(cmd.OutOrStdout(), descSource, formatter, false)
			if err := grpcurl.InvokeRPC(ctx, descSource, conn, args[0], nil, handler, parser.Next); err != nil {
				return fmt.Errorf("invoke: %w", err)
			}
			if handler.Status != nil && handler.Status.Err() != nil {
				return handler.Status.Err()
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "JSON request body")
	return cmd
}

func newHealthCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health [service]",
		Short: "Check daemon health (overall, or for one service such as smartmeter.Recorder)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, conn, done, err := flags.dial(cmd)
			if err != nil {
				return err
			}
			defer done()

			req := &healthpb.HealthCheckRequest{}
			if len(args) == 1 {
				req.Service = args[0]
			}
			resp, err := healthpb.NewHealthClient(conn).Check(ctx, req)
			if err != nil {
				return fmt.Errorf("health check: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.GetStatus().String())
			if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
				return fmt.Errorf("not serving")
			}
			return nil
		},
	}
}

func reflectionSource(ctx context.Context, conn *grpc.ClientConn) grpcurl.DescriptorSource {
	client := grpcreflect.NewClientAuto(ctx, conn)
	return grpcurl.DescriptorSourceFromServer(ctx, client)
}

func isStdinTerminal() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return true
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
