// Command admin is an operational tool for inspecting and managing the
// identity and vault tables. Intended for development and support use, not
// for exposure to end users.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zkvault/zkvault/internal/config"
	"github.com/zkvault/zkvault/internal/infra"
	"github.com/zkvault/zkvault/internal/store"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: admin <command> [args]

commands:
  stats                   print identity and vault counts
  users                   list identities, newest first
  delete-user <id>        delete an identity and its vault
  flush --yes             delete all identities and vaults
`)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect postgres: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	switch os.Args[1] {
	case "stats":
		err = printStats(ctx, db)
	case "users":
		err = listUsers(ctx, db)
	case "delete-user":
		if len(os.Args) != 3 {
			usage()
		}
		err = deleteUser(ctx, db, os.Args[2])
	case "flush":
		if len(os.Args) != 3 || os.Args[2] != "--yes" {
			fmt.Fprintln(os.Stderr, "flush deletes ALL data; pass --yes to confirm")
			os.Exit(2)
		}
		err = flush(ctx, db)
	default:
		usage()
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func printStats(ctx context.Context, db *pgxpool.Pool) error {
	var identities, vaults int
	if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM identities`).Scan(&identities); err != nil {
		return err
	}
	if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM vaults`).Scan(&vaults); err != nil {
		return err
	}
	fmt.Printf("identities: %d\nvaults:     %d\n", identities, vaults)
	return nil
}

func listUsers(ctx context.Context, db *pgxpool.Pool) error {
	rows, err := db.Query(ctx, `SELECT id, auth_type, COALESCE(username, wallet_address, ''), token_version, created_at
        FROM identities ORDER BY created_at DESC`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id, authType, name string
		var tokenVersion int
		var createdAt time.Time
		if err := rows.Scan(&id, &authType, &name, &tokenVersion, &createdAt); err != nil {
			return err
		}
		fmt.Printf("%s  %-8s  %-40s  ver=%d  %s\n", id, authType, name, tokenVersion, createdAt.Format(time.RFC3339))
	}
	return rows.Err()
}

func deleteUser(ctx context.Context, db *pgxpool.Pool, id string) error {
	st := store.NewPostgresStore(db)
	err := st.WithinTx(ctx, func(tx store.Store) error {
		user, err := tx.Identities().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.Vaults().DeleteByOwner(ctx, user.ID); err != nil {
			return err
		}
		return tx.Identities().Delete(ctx, user.ID)
	})
	if err != nil {
		return err
	}
	fmt.Printf("deleted identity %s\n", id)
	return nil
}

func flush(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, `DELETE FROM vaults`); err != nil {
		return err
	}
	if _, err := db.Exec(ctx, `DELETE FROM identities`); err != nil {
		return err
	}
	fmt.Println("all identities and vaults deleted")
	return nil
}
