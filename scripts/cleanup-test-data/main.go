// cleanup-test-data removes questionnaires with test-like case numbers from a
// PostgreSQL record store, typically after UI or load testing against staging.
//
// Test patterns matched (case-insensitive) against case_number:
// - ^test (starts with "test")
// - test$ (ends with "test")
// - ^uitest (UI test prefix)
// - ^dummy (dummy prefix)
// - ^sample (sample prefix)
// - ^example (example prefix)
//
// Usage: go run ./scripts/cleanup-test-data [-dry-run=false] [-include-submitted]
//
// Database connection: uses the same PG* environment variables as the server.
//
// Flags:
//
//	-dry-run            Show what would be deleted without actually deleting (default: true)
//	-include-submitted  Also delete submitted questionnaires (default: drafts only)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5"

	"github.com/forensic-testing/fts-intake/pkg/config"
	"github.com/forensic-testing/fts-intake/pkg/logging"
	"github.com/forensic-testing/fts-intake/pkg/models"
)

// testCaseNumberPatterns are used with PostgreSQL's ~* (case-insensitive regex) operator.
var testCaseNumberPatterns = []string{
	`^test`,
	`test$`,
	`^uitest`,
	`^dummy`,
	`^sample`,
	`^example`,
}

func main() {
	dryRun := flag.Bool("dry-run", true, "Show what would be deleted without actually deleting")
	includeSubmitted := flag.Bool("include-submitted", false, "Also delete submitted questionnaires")
	flag.Parse()

	var dbCfg config.DatabaseConfig
	if err := cleanenv.ReadEnv(&dbCfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read database configuration: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	conn, err := pgx.Connect(ctx, dbCfg.ConnectionString())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %s\n", logging.SanitizeError(err))
		os.Exit(1)
	}
	defer conn.Close(ctx)

	statuses := []string{models.StatusDraft}
	if *includeSubmitted {
		statuses = append(statuses, models.StatusSubmitted)
	}

	if *dryRun {
		fmt.Println("DRY RUN - no changes will be made")
		fmt.Println("Run with -dry-run=false to actually delete questionnaires")
		fmt.Println()
	}

	total := 0
	for _, pattern := range testCaseNumberPatterns {
		count, err := cleanupTestQuestionnaires(ctx, conn, pattern, statuses, *dryRun)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error cleaning pattern %q: %v\n", pattern, err)
			os.Exit(1)
		}
		total += count
	}

	if *dryRun {
		fmt.Printf("\nTotal questionnaires that would be deleted: %d\n", total)
	} else {
		fmt.Printf("\nTotal questionnaires deleted: %d\n", total)
	}
}

// cleanupTestQuestionnaires deletes questionnaires whose case number matches pattern.
// A row matching several patterns is reported under the first one only when deleting.
func cleanupTestQuestionnaires(ctx context.Context, conn *pgx.Conn, pattern string, statuses []string, dryRun bool) (int, error) {
	if dryRun {
		rows, err := conn.Query(ctx, `
			SELECT case_number, version, status, updated_at
			FROM questionnaires
			WHERE case_number ~* $1
			  AND status = ANY($2)
			ORDER BY case_number, version
		`, pattern, statuses)
		if err != nil {
			return 0, fmt.Errorf("query failed: %w", err)
		}
		defer rows.Close()

		var count int
		for rows.Next() {
			var (
				caseNumber, status string
				version            int
				updatedAt          time.Time
			)
			if err := rows.Scan(&caseNumber, &version, &status, &updatedAt); err != nil {
				return 0, fmt.Errorf("scan failed: %w", err)
			}
			count++
			fmt.Printf("  [%s] %q v%d %s (updated %s)\n", pattern, logging.TruncateString(caseNumber, 40), version, status, updatedAt.Format(time.RFC3339))
		}
		if err := rows.Err(); err != nil {
			return 0, fmt.Errorf("rows iteration failed: %w", err)
		}

		if count == 0 {
			fmt.Printf("  [%s] No matching questionnaires\n", pattern)
		}
		return count, nil
	}

	result, err := conn.Exec(ctx, `
		DELETE FROM questionnaires
		WHERE case_number ~* $1
		  AND status = ANY($2)
	`, pattern, statuses)
	if err != nil {
		return 0, fmt.Errorf("delete failed: %w", err)
	}

	count := int(result.RowsAffected())
	fmt.Printf("Deleted %d questionnaires matching pattern: %s\n", count, pattern)
	return count, nil
}
