package main

import (
	"context"
	goflag "flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"github.com/SusheelSathyaraj/CloudDataManager/config"
	"github.com/SusheelSathyaraj/CloudDataManager/database"
	"github.com/SusheelSathyaraj/CloudDataManager/storage"
)

// supported if_exists modes of load
var supportedIfExists = []string{database.IfExistsAppend, database.IfExistsReplace, database.IfExistsFail}

// validate the format and if_exists flags; empty values keep the defaults
func validateInput(format, ifExists string) error {
	if format != "" {
		if _, err := storage.ParseFormat(format); err != nil {
			return fmt.Errorf("invalid format %s", format)
		}
	}
	if ifExists != "" && !isValidValue(ifExists, supportedIfExists) {
		return fmt.Errorf("invalid if-exists mode %s, expected one of %s", ifExists, strings.Join(supportedIfExists, ", "))
	}
	return nil
}

func isValidValue(v string, slice []string) bool {
	for _, s := range slice {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

// app holds the global flags and lazily built clients of one invocation
type app struct {
	configPath string
	bucket     string
	klogFlags  *goflag.FlagSet

	cfg *config.Config
}

func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return nil, err
	}
	klog.V(2).InfoS("Loaded config", "path", cfg.Path, "provider", cfg.CloudConfig().Provider)

	// -v on the command line wins over logging.verbosity
	if v := a.klogFlags.Lookup("v"); v != nil && v.Value.String() == "0" && cfg.Logging.Verbosity > 0 {
		a.klogFlags.Set("v", strconv.Itoa(cfg.Logging.Verbosity))
	}
	a.cfg = cfg
	return cfg, nil
}

func (a *app) storageClient(ctx context.Context) (*storage.Client, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	return storage.NewClient(ctx, cfg)
}

func (a *app) warehouseClient(ctx context.Context) (*database.Client, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	return database.NewClient(ctx, cfg)
}

// addKlogFlags registers -v, -vmodule and the other klog flags on fs
func addKlogFlags(fs *pflag.FlagSet) *goflag.FlagSet {
	klogFlags := goflag.NewFlagSet("klog", goflag.ContinueOnError)
	klog.InitFlags(klogFlags)
	fs.AddGoFlagSet(klogFlags)
	return klogFlags
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "clouddatamanager",
		Short:         "Move data between object storage and the data warehouse",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to config file (default $"+config.ConfigEnvVar+", ./config.yaml or ~/config.yaml)")
	root.PersistentFlags().StringVar(&a.bucket, "bucket", "", "Bucket to use instead of storage.default_bucket")
	a.klogFlags = addKlogFlags(root.PersistentFlags())

	root.AddCommand(
		newLsCommand(a),
		newGetCommand(a),
		newPutCommand(a),
		newUploadCommand(a),
		newDownloadCommand(a),
		newRmCommand(a),
		newQueryCommand(a),
		newExecCommand(a),
		newLoadCommand(a),
		newExportCommand(a),
		newDescribeCommand(a),
	)
	return root
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer klog.Flush()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run())
}
