package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/config"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/home"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var initInHome bool

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default config file",
	Long: `Write the default configuration to a file (default: ./config.yaml).

With --home, the file is written to ~/.bankparse/config.yaml instead,
creating the directory if needed.

API keys in the generated file use ${ENV_VAR} syntax and are resolved
from the environment at runtime.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.yaml"
		if initInHome {
			dir, err := home.New("")
			if err != nil {
				return err
			}
			if err := dir.EnsureExists(); err != nil {
				return err
			}
			path = dir.ConfigPath()
		}
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("refusing to overwrite existing file: %s", path)
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Printf("Wrote default config to %s\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&initInHome, "home", false, "Write to ~/.bankparse/config.yaml")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
