package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/tiagocoutinho/qredis/internal/app"
	"github.com/tiagocoutinho/qredis/internal/connection"
	"github.com/tiagocoutinho/qredis/internal/logger"
	"github.com/tiagocoutinho/qredis/internal/metrics"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const Version = "0.6.0"

// state is shared by the commands of one invocation.
type state struct {
	v      *viper.Viper
	app    *app.App
	config connection.ConnectionConfig
}

// result turns a failed QueryResult into an error
func result(res connection.QueryResult) (interface{}, error) {
	if !res.Success {
		return res.Data, errors.New(res.Message)
	}
	return res.Data, nil
}

func newRootCmd() (*cobra.Command, *state) {
	st := &state{v: viper.New()}

	root := &cobra.Command{
		Use:   "qredis",
		Short: "Redis key browser",
		Long: fmt.Sprintf(`QRedis (v%s)

Browse and edit the keys of a Redis database. Keys are grouped in a tree
by splitting their names on delimiter characters.`, Version),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			initConfig(st.v)
			if err := st.v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			logger.SetLevel(st.v.GetString("log-level"))
			st.config = connectionConfig(st.v)
			st.app = app.NewApp()
			st.app.Startup(cmd.Context())
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if st.v.GetBool("metrics") {
				return metrics.WriteText(cmd.ErrOrStderr())
			}
			return nil
		},
	}
	setupConnectionFlags(root)

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number of QRedis",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "QRedis v%s\n", Version)
		},
	})
	addKeyCommands(root, st)
	addServerCommands(root, st)
	return root, st
}

// Execute runs the command line. This is called by main.main().
func Execute() {
	root, st := newRootCmd()
	ctx := context.Background()
	err := root.ExecuteContext(ctx)
	if st.app != nil {
		st.app.Shutdown(ctx)
	}
	if err != nil {
		os.Exit(1)
	}
}
