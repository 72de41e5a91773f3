// This program performs administrative tasks for the signchain network.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ardanlabs/signchain/app/tooling/admin/commands"
	"github.com/ardanlabs/signchain/foundation/logger"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("ADMIN")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {
	log.Infow("startup", "version", build)

	return processCommands(os.Args, log)
}

// processCommands handles the execution of the commands specified on
// the command line.
func processCommands(args []string, log *zap.SugaredLogger) error {
	if len(args) < 2 {
		return errors.New(commands.Usage)
	}

	switch args[1] {
	case "keys":
		if err := commands.Keys(args); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
	case "genesis":
		if err := commands.Genesis(args); err != nil {
			return fmt.Errorf("generating genesis: %w", err)
		}
	case "blocks":
		if err := commands.Blocks(args, log); err != nil {
			return fmt.Errorf("dumping blocks: %w", err)
		}
	default:
		return errors.New(commands.Usage)
	}

	return nil
}
