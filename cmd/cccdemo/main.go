// Command cccdemo wires a CallManager against either the in-memory
// simulation platform or a SIP-backed signaling sender, and exposes a gRPC
// health endpoint that mirrors process lifecycle, for manual exercising of
// the Call Control Core outside of a unit test.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emiago/sipgo"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/sebas/ccc/internal/banner"
	"github.com/sebas/ccc/internal/callcore"
	"github.com/sebas/ccc/internal/callcore/sim"
	"github.com/sebas/ccc/internal/logger"
	ccsip "github.com/sebas/ccc/internal/sip"
)

func main() {
	var (
		healthAddr     = flag.String("health-addr", ":9090", "gRPC health service listen address")
		queueDepth     = flag.Int("queue-depth", 256, "shared event queue buffer depth")
		callTimeout    = flag.Duration("call-timeout", 90*time.Second, "time an unconnected call may wait before CallTimeout fires")
		useSIP         = flag.Bool("sip", false, "back the SignalingSender with SIP MESSAGE delivery instead of the in-memory simulation")
		advertiseAddr  = flag.String("sip-advertise-addr", "127.0.0.1", "address advertised in outgoing SIP requests")
		sipPort        = flag.Int("sip-port", 5070, "port advertised in outgoing SIP requests")
	)
	flag.Parse()

	logger.InitLogger(os.Stdout)

	banner.Print("Call Control Core demo", []banner.ConfigLine{
		{Label: "health-addr", Value: *healthAddr},
		{Label: "queue-depth", Value: fmt.Sprintf("%d", *queueDepth)},
		{Label: "call-timeout", Value: callTimeout.String()},
		{Label: "signaling", Value: signalingModeLabel(*useSIP)},
	})

	platform := sim.New()
	ccPlatform := platform.AsCallcorePlatform()

	var client *sipgo.Client
	if *useSIP {
		ua, err := sipgo.NewUA()
		if err != nil {
			slog.Error("failed to create SIP user agent", "error", err)
			os.Exit(1)
		}
		defer ua.Close()
		client, err = sipgo.NewClient(ua)
		if err != nil {
			slog.Error("failed to create SIP client", "error", err)
			os.Exit(1)
		}
		ccPlatform.Signaling = ccsip.NewSender(client, *advertiseAddr, *sipPort)
	}

	cfg := callcore.ManagerConfig{QueueDepth: *queueDepth, CallTimeout: *callTimeout}
	manager := callcore.NewCallManager(cfg, ccPlatform)

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("ccc", healthpb.HealthCheckResponse_SERVING)

	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)

	lis, err := net.Listen("tcp", *healthAddr)
	if err != nil {
		slog.Error("failed to listen", "addr", *healthAddr, "error", err)
		os.Exit(1)
	}

	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			slog.Error("grpc health server stopped", "error", err)
		}
	}()

	slog.Info("ccc demo running", "health_addr", *healthAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down", "signal", sig)

	healthSrv.SetServingStatus("ccc", healthpb.HealthCheckResponse_NOT_SERVING)
	grpcServer.GracefulStop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := manager.Close(ctx); err != nil {
		slog.Error("error closing call manager", "error", err)
	}
}

func signalingModeLabel(useSIP bool) string {
	if useSIP {
		return "sip"
	}
	return "sim"
}
