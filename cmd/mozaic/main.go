package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof" // Import pprof for profiling endpoints
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mozaicserver/mozaic/pkg/clientmanager"
	"github.com/mozaicserver/mozaic/pkg/clientmanager/endpoint/tcp"
	"github.com/mozaicserver/mozaic/pkg/clientmanager/endpoint/udp"
	"github.com/mozaicserver/mozaic/pkg/clientmanager/endpoint/ws"
	"github.com/mozaicserver/mozaic/pkg/gamebuilder"
	"github.com/mozaicserver/mozaic/pkg/gamemanager"
	"github.com/mozaicserver/mozaic/pkg/gamerunner/echo"
	"github.com/mozaicserver/mozaic/pkg/log"
	"github.com/mozaicserver/mozaic/pkg/logsink"
	"github.com/mozaicserver/mozaic/pkg/messages"
	"github.com/mozaicserver/mozaic/pkg/metrics"
	"github.com/mozaicserver/mozaic/pkg/observability"
	"github.com/mozaicserver/mozaic/pkg/reactor"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mozaic",
	Short: "MOZAIC - a distributed actor runtime for multiplayer game serving",
	Long: `MOZAIC runs player traffic, game logic, and turn coordination as a
network of single-threaded reactors linked together inside one process,
serving TCP, UDP, and WebSocket clients through the same game registry.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"mozaic version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the reactor runtime and accept player connections",
	Long: `Start the broker, game manager, and client manager, bind the TCP,
UDP, and WebSocket transport endpoints, and serve health and Prometheus
metrics over HTTP. With --demo, also start a reference echo game so the
endpoints have somewhere to route newly registered players.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("tcp-addr", "127.0.0.1:9000", "TCP endpoint bind address")
	serveCmd.Flags().String("udp-addr", "127.0.0.1:9001", "UDP endpoint bind address")
	serveCmd.Flags().String("ws-addr", "127.0.0.1:9002", "WebSocket endpoint bind address")
	serveCmd.Flags().String("observability-addr", "127.0.0.1:9090", "Health/metrics HTTP bind address")
	serveCmd.Flags().String("log-dir", "./mozaic-data", "Directory for per-game log records")
	serveCmd.Flags().Bool("enable-pprof", false, "Enable pprof profiling endpoints")
	serveCmd.Flags().Bool("demo", false, "Start a reference echo game on boot")
	serveCmd.Flags().Int("demo-players", 2, "Number of players in the demo game's roster")
	serveCmd.Flags().Duration("demo-step-timeout", 0, "Step lock timeout for the demo game (0 disables the timeout)")
}

func runServe(cmd *cobra.Command, args []string) error {
	tcpAddr, _ := cmd.Flags().GetString("tcp-addr")
	udpAddr, _ := cmd.Flags().GetString("udp-addr")
	wsAddr, _ := cmd.Flags().GetString("ws-addr")
	obsAddr, _ := cmd.Flags().GetString("observability-addr")
	logDir, _ := cmd.Flags().GetString("log-dir")
	pprofEnabled, _ := cmd.Flags().GetBool("enable-pprof")
	demo, _ := cmd.Flags().GetBool("demo")
	demoPlayers, _ := cmd.Flags().GetInt("demo-players")
	demoStepTimeout, _ := cmd.Flags().GetDuration("demo-step-timeout")

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	broker := reactor.NewBroker()

	obs := observability.NewServer(broker, Version)

	gmID := reactor.NewID()
	loggerID := reactor.NewID()
	cmID := reactor.NewID()

	sink, err := logsink.New(gmID, filepath.Join(logDir, "games.log"))
	if err != nil {
		return fmt.Errorf("create log sink: %w", err)
	}
	broker.Spawn(sink, loggerID)
	obs.RegisterComponent("broker", true, "")

	tcpEP, err := tcp.Listen(broker, cmID, tcpAddr)
	if err != nil {
		return fmt.Errorf("bind tcp endpoint: %w", err)
	}
	udpEP, err := udp.Listen(broker, cmID, udpAddr)
	if err != nil {
		return fmt.Errorf("bind udp endpoint: %w", err)
	}
	wsEP, err := ws.Listen(broker, cmID, wsAddr)
	if err != nil {
		return fmt.Errorf("bind ws endpoint: %w", err)
	}
	obs.RegisterComponent("client_manager", true, "")

	endpoints := []reactor.ID{tcpEP.ID(), udpEP.ID(), wsEP.ID()}
	broker.Spawn(clientmanager.New(gmID, endpoints), cmID)

	gm := gamemanager.New(broker, gmID, cmID, loggerID)
	obs.RegisterComponent("game_manager", true, "")

	collector := metrics.NewCollector(broker.Count)
	collector.Start()
	defer collector.Stop()

	mux := obs.Mux()
	obsServer := &http.Server{Addr: obsAddr, Handler: mux}
	go func() {
		if err := obsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Logger.Error().Err(err).Msg("observability server error")
		}
	}()

	if pprofEnabled {
		pprofAddr := "127.0.0.1:6060"
		go func() {
			if err := http.ListenAndServe(pprofAddr, nil); err != nil {
				log.Logger.Warn().Err(err).Msg("pprof server error")
			}
		}()
		log.Logger.Info().Str("addr", pprofAddr).Msg("pprof endpoints enabled")
	}

	log.Logger.Info().
		Str("tcp", tcpEP.Addr()).
		Str("udp", udpEP.Addr()).
		Str("ws", wsEP.Addr()).
		Str("observability", obsAddr).
		Msg("mozaic serving")

	if demo {
		players := make([]messages.PlayerID, demoPlayers)
		for i := range players {
			players[i] = messages.PlayerID(i + 1)
		}
		builder := gamebuilder.New(players, echo.New(players))
		if demoStepTimeout > 0 {
			builder.WithStepLock(demoStepTimeout)
		}
		gameID, ok := gm.StartGame(builder)
		if !ok {
			log.Logger.Warn().Msg("failed to start demo game")
		} else {
			log.Logger.Info().Uint64("game_id", gameID).Int("players", demoPlayers).Msg("demo game started")
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = obsServer.Shutdown(shutdownCtx)
	if err := sink.Close(); err != nil {
		log.Logger.Warn().Err(err).Msg("closing log sink")
	}
	return nil
}
