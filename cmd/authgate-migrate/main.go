// Command authgate-migrate applies the embedded identity schema migrations.
//
//	authgate-migrate -driver sqlite -dsn authgate.db -command up
//	authgate-migrate -driver postgres -dsn postgres://... -command version
//
// -driver and -dsn default to DB_DRIVER and DATABASE_URL from the
// environment or .env.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/MrEthical07/authgate/identity"
	"github.com/MrEthical07/authgate/internal/config"
)

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, version")
		driver  = flag.String("driver", "", "Database driver: postgres or sqlite")
		dsn     = flag.String("dsn", "", "Database URL (postgres) or file path (sqlite)")
	)
	flag.Parse()

	if *driver == "" || *dsn == "" {
		cfg, err := config.Load()
		if err != nil {
			log.Fatalf("config error: %v", err)
		}
		if *driver == "" {
			*driver = cfg.DBDriver
		}
		if *dsn == "" {
			*dsn = cfg.DatabaseURL
		}
	}
	if *driver == config.DriverMemory {
		log.Fatal("the memory driver has no schema to migrate")
	}

	switch *command {
	case "up", "down":
		if err := identity.Migrate(*driver, *dsn, *command); err != nil {
			log.Fatalf("migration %s failed: %v", *command, err)
		}
		fmt.Printf("migrations %s: done\n", *command)
	case "version":
		v, dirty, err := identity.MigrationVersion(*driver, *dsn)
		if err != nil {
			log.Fatalf("failed to read version: %v", err)
		}
		if dirty {
			fmt.Printf("database is dirty at version %d\n", v)
			os.Exit(1)
		}
		fmt.Printf("current migration version: %d\n", v)
	default:
		log.Fatalf("unknown command %q (supported: up, down, version)", *command)
	}
}
