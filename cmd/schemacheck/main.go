// Command schemacheck verifies that a live database matches the documented
// schema registry. It opens the SQLite file, inspects every registered table
// through the GORM migrator, and reports missing tables, missing columns,
// and columns present in the database but absent from the registry.
//
// Exit status is non-zero when any drift is found, so the check can gate
// deployments.
//
// Usage:
//
//	schemacheck [-db path/to/app.db]
//
// The -db flag defaults to the DB_PATH environment variable, then "app.db".
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/joho/godotenv"

	"github.com/tbourn/go-line-crm/internal/repo"
	"github.com/tbourn/go-line-crm/internal/schema"
)

func main() {
	_ = godotenv.Load()

	defPath := os.Getenv("DB_PATH")
	if defPath == "" {
		defPath = "app.db"
	}
	dbPath := flag.String("db", defPath, "path to the SQLite database file")
	flag.Parse()

	if _, err := os.Stat(*dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "schemacheck: cannot open %s: %v\n", *dbPath, err)
		os.Exit(2)
	}

	db, err := repo.OpenSQLite(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "schemacheck: open database: %v\n", err)
		os.Exit(2)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	m := db.Migrator()
	drift := 0

	tables := schema.Tables()
	sort.Strings(tables)

	for _, name := range tables {
		def, err := schema.Lookup(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "schemacheck: %v\n", err)
			os.Exit(2)
		}

		if !m.HasTable(name) {
			fmt.Printf("MISSING TABLE  %s\n", name)
			drift++
			continue
		}

		cols, err := m.ColumnTypes(def.Name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "schemacheck: inspect %s: %v\n", name, err)
			os.Exit(2)
		}
		live := make(map[string]bool, len(cols))
		for _, c := range cols {
			live[c.Name()] = true
		}

		for _, want := range def.Columns {
			if !live[want.Name] {
				fmt.Printf("MISSING COLUMN %s.%s (%s)\n", name, want.Name, want.Type)
				drift++
			}
		}
		for liveName := range live {
			if !schema.HasColumn(name, liveName) {
				fmt.Printf("EXTRA COLUMN   %s.%s\n", name, liveName)
				drift++
			}
		}
	}

	if drift > 0 {
		fmt.Printf("schema drift: %d issue(s)\n", drift)
		os.Exit(1)
	}
	fmt.Println("schema ok")
}
