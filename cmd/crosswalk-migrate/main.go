package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/TalApelfeld/AI-Smart-Crosswalk/common/database"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/config"
)

// crosswalk-migrate applies a SQL file (db/schema.sql by default) statement
// by statement.
func main() {
	file := flag.String("file", "db/schema.sql", "SQL file to apply")
	dryRun := flag.Bool("dry-run", false, "print statements without executing")
	flag.Parse()

	sqlContent, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("Failed to read migration file: %v", err)
	}
	statements := splitStatements(string(sqlContent))
	if len(statements) == 0 {
		log.Fatalf("No statements found in %s", *file)
	}

	if *dryRun {
		for i, stmt := range statements {
			fmt.Printf("-- statement %d/%d\n%s;\n\n", i+1, len(statements), stmt)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	ctx := context.Background()
	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("Cannot connect to database: %v", err)
	}
	defer db.Close()

	fmt.Printf("Connected to database: %s\n\n", cfg.Database.Database)
	for i, stmt := range statements {
		fmt.Printf("Executing statement %d/%d...\n", i+1, len(statements))
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			log.Fatalf("Failed to execute statement %d: %v\nStatement: %s", i+1, err, stmt[:min(100, len(stmt))])
		}
	}
	missing, err := database.MissingTables(ctx, db)
	if err != nil {
		log.Fatalf("Failed to verify schema: %v", err)
	}
	if len(missing) > 0 {
		log.Fatalf("Migration finished but tables are missing: %s", strings.Join(missing, ", "))
	}
	fmt.Println("Migration completed successfully")
}

// splitStatements strips "--" comments and splits on ";". Dollar-quoted
// bodies and "--" inside string literals are not supported.
func splitStatements(content string) []string {
	var b strings.Builder
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		line := sc.Text()
		if i := strings.Index(line, "--"); i >= 0 {
			line = line[:i]
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	var out []string
	for _, stmt := range strings.Split(b.String(), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
