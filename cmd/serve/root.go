package serve

import (
	"fmt"
	"os"
	"strings"

	cmdUtil "github.com/vosdb/engine/cmd/util"
	"github.com/vosdb/engine/lib/engine"
	"github.com/vosdb/engine/rpc/common"
	"github.com/vosdb/engine/rpc/server"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/lni/vfs"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Logger = logger.GetLogger("cmd/serve")

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the vosd engine control plane",
		Long:    `Start the vosd engine control plane with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is VOSD_<flag> (e.g. VOSD_TIMEOUT_SECOND=15)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(initConfig)

	// add flags
	key := "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout in seconds for a single control-plane request"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "/tmp/vosd.sock", cmdUtil.WrapString("The local domain socket path on which the control plane will listen (spec.md §6 names only a local domain socket; e.g. /tmp/vosd.sock)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	key = "engine-pool"
	ServeCmd.PersistentFlags().String(key, "pool.vosd", cmdUtil.WrapString("Path to the vosd pool file to bootstrap and expose via the spec.md §6 control plane (GetAttachInfo, PoolConnect, ...). Created with engine-zones zones if it does not already exist"))

	key = "engine-zones"
	ServeCmd.PersistentFlags().Int(key, 4, cmdUtil.WrapString("Number of zones to create a new engine pool with, if engine-pool does not already exist"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	return nil
}

// run starts the vosd engine control plane: it bootstraps (or opens) one
// engine pool and serves spec.md §6's local domain-socket protocol over it.
func run(_ *cobra.Command, _ []string) error {
	common.InitLoggers(*serveCmdConfig)

	s, err := cmdUtil.GetSerializer(viper.GetString("serializer"))
	if err != nil {
		return err
	}

	t, err := cmdUtil.GetServerTransport(viper.GetString("transport"), 64*1024)
	if err != nil {
		return err
	}

	cfg := engine.DefaultEngineConfig()
	cfg.PoolPath = viper.GetString("engine-pool")
	cfg.NumZones = viper.GetInt("engine-zones")
	cfg.LogLevel = viper.GetString("log-level")
	cfg.ApplyEnviron(os.LookupEnv)

	eng, err := engine.Init(cfg, vfs.Default)
	if err != nil {
		return fmt.Errorf("failed to bootstrap engine pool: %w", err)
	}
	defer eng.Fini()

	cpServ := server.NewControlPlaneServer(cfg, t, s)
	cpServ.RegisterPool(0, eng)

	Logger.Infof("vosd control plane serving pool %q on %s", cfg.PoolPath, serveCmdConfig.Endpoint)
	return cpServ.Serve(*serveCmdConfig)
}

// initConfig reads in serveCmdConfig file and ENV variables if set.
func initConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("vosd")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}
