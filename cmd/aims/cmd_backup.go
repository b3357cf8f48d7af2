package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/HerbHall/aims/internal/backup"
	"github.com/HerbHall/aims/internal/config"
)

func runBackup(args []string) {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	output := fs.String("output", "", "output file path (default: aims-backup-{timestamp}.tar.gz)")
	configFile := fs.String("config", "", "path to config file; also included in the archive")
	dbPath := fs.String("db", "", "database path (default: database.path from config)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *dbPath == "" {
		v, err := config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
		*dbPath = v.GetString("database.path")
		if *configFile == "" {
			*configFile = v.ConfigFileUsed()
		}
	}

	if *output == "" {
		*output = fmt.Sprintf("aims-backup-%s.tar.gz", time.Now().Format("20060102-150405"))
	}

	ctx := context.Background()
	if err := backup.Backup(ctx, *dbPath, *configFile, *output); err != nil {
		fmt.Fprintf(os.Stderr, "backup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Backup created: %s\n", *output)
}
