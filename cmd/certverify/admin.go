package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	certsvc "certverify-backend/internal/application/certificates"
	"certverify-backend/internal/application/fingerprint"
	"certverify-backend/internal/auth"
	"certverify-backend/internal/infrastructure/database"
	"certverify-backend/internal/infrastructure/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func openDB() (*gorm.DB, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("database url is not configured for env %q", cfg.Env)
	}
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	closeFn := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return db, closeFn, nil
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(_ *cobra.Command, _ []string) error {
			db, closeFn, err := openDB()
			if err != nil {
				return err
			}
			defer closeFn()
			if err := database.AutoMigrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info().Msg("schema migrated")
			return nil
		},
	}
}

func registerIssuerCommand() *cobra.Command {
	var name, code string
	cmd := &cobra.Command{
		Use:   "register-issuer",
		Short: "Create an issuer and print its API key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, closeFn, err := openDB()
			if err != nil {
				return err
			}
			defer closeFn()
			svc := &auth.Service{Principals: store.NewGormStore(db)}
			issuer, key, err := svc.RegisterIssuer(cmd.Context(), name, code)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"issuer_id": issuer.ID, "name": issuer.Name, "api_key": key})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "issuer display name")
	cmd.Flags().StringVar(&code, "code", "", "short issuer code")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func registerVerifierCommand() *cobra.Command {
	var name, org string
	cmd := &cobra.Command{
		Use:   "register-verifier",
		Short: "Create a verifier and print its API key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, closeFn, err := openDB()
			if err != nil {
				return err
			}
			defer closeFn()
			svc := &auth.Service{Principals: store.NewGormStore(db)}
			verifier, key, err := svc.RegisterVerifier(cmd.Context(), name, org)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"verifier_id": verifier.ID, "name": verifier.Name, "api_key": key})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "verifier display name")
	cmd.Flags().StringVar(&org, "organization", "", "verifier organization")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func ingestCommand() *cobra.Command {
	var issuerID, file string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load a CSV of certificates for an issuer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := uuid.Parse(issuerID)
			if err != nil {
				return fmt.Errorf("invalid issuer id %q: %w", issuerID, err)
			}
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()

			db, closeFn, err := openDB()
			if err != nil {
				return err
			}
			defer closeFn()
			repo := store.NewGormStore(db)
			summary, err := ingestCSV(cmd.Context(), &certsvc.Service{Certificates: repo, Principals: repo}, id, f)
			if err != nil {
				return err
			}
			log.Info().Str("issuer_id", id.String()).Int("successful", summary.Successful).Int("errors", summary.Errors).Msg("csv ingested")
			return printJSON(cmd, summary)
		},
	}
	cmd.Flags().StringVar(&issuerID, "issuer-id", "", "issuer id")
	cmd.Flags().StringVarP(&file, "file", "f", "", "CSV file path")
	_ = cmd.MarkFlagRequired("issuer-id")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func ingestCSV(ctx context.Context, svc *certsvc.Service, issuerID uuid.UUID, r io.Reader) (certsvc.BulkSummary, error) {
	issuer, err := svc.Principals.FindIssuerByID(ctx, issuerID)
	if err != nil {
		return certsvc.BulkSummary{}, fmt.Errorf("load issuer: %w", err)
	}
	inputs, err := certsvc.ParseCSV(r)
	if err != nil {
		return certsvc.BulkSummary{}, err
	}
	return svc.CreateMany(ctx, issuer, inputs, certsvc.SourceCLI), nil
}

func fingerprintCommand() *cobra.Command {
	var r fingerprint.Record
	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Compute the fingerprint of a certificate record",
		RunE: func(cmd *cobra.Command, _ []string) error {
			canonical := fingerprint.Canonicalize(r)
			return printJSON(cmd, map[string]any{
				"canonical":        canonical,
				"fingerprint_hash": fingerprint.Fingerprint(canonical),
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&r.StudentName, "student-name", "", "student name")
	f.StringVar(&r.RollNumber, "roll-number", "", "roll number")
	f.StringVar(&r.Course, "course", "", "course")
	f.StringVar(&r.GraduationYear, "graduation-year", "", "graduation year")
	f.StringVar(&r.Marks, "marks", "", "marks or grade")
	f.StringVar(&r.CertificateNumber, "certificate-number", "", "certificate number")
	f.StringVar(&r.IssueDate, "issue-date", "", "issue date (YYYY-MM-DD)")
	f.StringVar(&r.IssuerID, "issuer-id", "", "issuer id")
	f.StringVar(&r.IssuerName, "issuer-name", "", "issuer name")
	f.StringVar(&r.IssuerCode, "issuer-code", "", "issuer code")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
