package cli

import (
	"strings"

	"github.com/tiagocoutinho/qredis/internal/connection"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to wrap the help text at
	Wrap int = 50
)

// wrapString wraps a string at Wrap characters
func wrapString(text string) string {
	var lines []string
	var line strings.Builder
	for _, word := range strings.Fields(text) {
		if line.Len() > 0 && line.Len()+1+len(word) > Wrap {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteString(" ")
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

// setupConnectionFlags adds the connection flags to the root command
func setupConnectionFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("host", connection.DefaultHost, wrapString("Server host"))
	f.Int("port", connection.DefaultPort, wrapString("Server port"))
	f.String("sock", "", wrapString("Unix socket path, takes precedence over host and port"))
	f.Int("db", 0, wrapString("Database index"))
	f.String("name", connection.DefaultClientName, wrapString("Client name announced to the server"))
	f.String("password", "", wrapString("Server password"))
	f.Int("timeout", connection.DefaultTimeout, wrapString("Timeout in seconds of every command"))
	f.String("key-filter", connection.DefaultKeyFilter, wrapString("Glob pattern of the keys shown in the tree"))
	f.String("key-split", connection.DefaultKeySplit, wrapString("Characters that split keys into tree levels"))
	f.String("log-level", "warn", wrapString("Log level (debug, info, warn, error)"))

	f.Bool("ssh", false, wrapString("Connect through an SSH tunnel"))
	f.String("ssh-host", "", wrapString("SSH server host"))
	f.Int("ssh-port", 22, wrapString("SSH server port"))
	f.String("ssh-user", "", wrapString("SSH user"))
	f.String("ssh-password", "", wrapString("SSH password"))
	f.String("ssh-key", "", wrapString("Path of the SSH private key"))

	f.Bool("metrics", false, wrapString("Print the process metrics after the command"))
}

// initConfig loads .env files and environment overrides (QREDIS_*) into v
func initConfig(v *viper.Viper) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v.SetEnvPrefix("qredis")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// connectionConfig reads the connection settings from v
func connectionConfig(v *viper.Viper) connection.ConnectionConfig {
	return connection.ConnectionConfig{
		Host:       v.GetString("host"),
		Port:       v.GetInt("port"),
		Socket:     v.GetString("sock"),
		Password:   v.GetString("password"),
		RedisDB:    v.GetInt("db"),
		ClientName: v.GetString("name"),
		Timeout:    v.GetInt("timeout"),
		KeyFilter:  v.GetString("key-filter"),
		KeySplit:   v.GetString("key-split"),
		UseSSH:     v.GetBool("ssh"),
		SSH: connection.SSHConfig{
			Host:     v.GetString("ssh-host"),
			Port:     v.GetInt("ssh-port"),
			User:     v.GetString("ssh-user"),
			Password: v.GetString("ssh-password"),
			KeyPath:  v.GetString("ssh-key"),
		},
	}.WithDefaults()
}
