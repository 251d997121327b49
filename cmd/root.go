/*
Package cmd implements the a2a-payments command line: the agent host, the
webhook receiver, a scripted client and the MCP tool server.
*/
package cmd

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/theapemachine/a2a-payments/pkg/config"
)

/*
Embed a mini filesystem into the binary to hold the default config file.
This will be written to the home directory of the user running the service,
which allows a developer to easily override the config file.
*/
//go:embed cfg/*
var embedded embed.FS

var (
	projectName = "a2a-payments"
	cfgFile     string
	envFile     string

	rootCmd = &cobra.Command{
		Use:           projectName,
		Short:         "A credit-metered A2A demo agent",
		Long:          longRoot,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

/*
Execute runs the root command.
*/
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		log.Error("command failed", "error", err)
		return err
	}

	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yml",
		"config file (default is $HOME/."+projectName+"/config.yml)",
	)

	rootCmd.PersistentFlags().StringVar(
		&envFile,
		"env",
		".env",
		"dotenv file to load before reading the environment",
	)
}

/*
initConfig writes the default config file on first run, then layers the
config file, a .env file and the environment on top of the defaults.
*/
func initConfig() {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("failed to load env file", "file", envFile, "error", err)
	}

	config.SetDefaults(viper.GetViper())

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	for key, env := range map[string]string{
		"payments.apiKey":       "PAYMENTS_API_KEY",
		"payments.agentId":      "AGENT_ID",
		"payments.planId":       "PLAN_ID",
		"server.port":           "PORT",
		"server.asyncExecution": "ASYNC_EXECUTION",
	} {
		_ = viper.BindEnv(key, env)
	}

	if err := writeConfig(); err != nil {
		log.Warn("failed to write default config", "error", err)
	}

	viper.SetConfigName(strings.TrimSuffix(cfgFile, filepath.Ext(cfgFile)))
	viper.SetConfigType("yml")
	viper.AddConfigPath(configDir())
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		log.Warn("no config file read, using defaults", "error", err)
	}

	level, err := log.ParseLevel(viper.GetString("log.level"))

	if err != nil {
		log.Warn("invalid log level, keeping info", "level", viper.GetString("log.level"))
		level = log.InfoLevel
	}

	log.SetLevel(level)
}

func configDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "."+projectName)
}

/*
writeConfig copies the embedded default config to the user's config
directory unless a file is already there.
*/
func writeConfig() (err error) {
	var (
		dir = configDir()
		fh  fs.File
		buf bytes.Buffer
	)

	if !CheckFileExists(dir) {
		if err = os.MkdirAll(dir, os.ModePerm); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	fullPath := filepath.Join(dir, cfgFile)

	if CheckFileExists(fullPath) {
		return nil
	}

	if fh, err = embedded.Open("cfg/config.yml"); err != nil {
		return fmt.Errorf("failed to open embedded config file: %w", err)
	}

	defer fh.Close()

	if _, err = io.Copy(&buf, fh); err != nil {
		return fmt.Errorf("failed to read embedded config file: %w", err)
	}

	if err = os.WriteFile(fullPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Info("wrote config file", "path", fullPath)

	return nil
}

func CheckFileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return !errors.Is(err, os.ErrNotExist)
}

/*
loadConfig returns the typed configuration from the global viper instance.
*/
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

var longRoot = `
a2a-payments is an Agent-to-Agent (A2A) protocol agent that charges plan
credits for every task it runs.

It classifies each message into an intent (greeting, calculation, weather,
translation, streaming, push notification or general), answers it with a
canned handler, and burns the credits the handler reports from the caller's
bearer token.
`
