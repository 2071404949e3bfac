package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
)

// Drops every application table so the next migrate run starts from
// scratch. Destructive; requires an explicit connection string.
func main() {
	url := os.Getenv("DATABASE_URL")
	if len(os.Args) > 1 {
		url = os.Args[1]
	}
	if url == "" {
		fmt.Fprintln(os.Stderr, "Usage: cleanup <connection-string> (or set DATABASE_URL)")
		os.Exit(1)
	}

	conn, err := pgx.Connect(context.Background(), url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close(context.Background())

	_, err = conn.Exec(context.Background(),
		"DROP TABLE IF EXISTS audit_log, question_upvotes, questions, team_memberships, teams, sessions, users, tenants CASCADE;")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Drop table failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Dropped all application tables successfully.")
}
