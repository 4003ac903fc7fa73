/*
Copyright 2024 Reel Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/getreel/reel"
	"github.com/getreel/reel/config"
	"github.com/getreel/reel/database"
	"github.com/getreel/reel/internal/notification"
)

// CLI wraps the root Cobra command.
type CLI struct {
	cmd *cobra.Command
}

// reelInstance holds the running service and its configuration, shared
// by all subcommands.
type reelInstance struct {
	reel *reel.Reel
	cnf  *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and builds the service instance before
// any subcommand executes.
func preRun(app *reelInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("reel.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newReel, err := setupReel(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.reel = newReel
		app.cnf = cnf

		return nil
	}
}

func setupReel(cfg *config.Configuration) (*reel.Reel, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newReel, err := reel.NewReel(db)
	if err != nil {
		return nil, fmt.Errorf("error creating reel: %v", err)
	}
	return newReel, nil
}

// NewCLI assembles the command tree: server, workers and migrations.
func NewCLI() *CLI {
	var configFile string
	b := &reelInstance{}

	var rootCmd = &cobra.Command{
		Use:   "reel",
		Short: "Video render credits and billing service",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./reel.json", "Configuration file for reel")

	rootCmd.PersistentPreRunE = preRun(b)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(migrateCommands(b))
	rootCmd.AddCommand(backupCommands(b))
	rootCmd.AddCommand(configCommands())

	return &CLI{cmd: rootCmd}
}

func (w CLI) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
