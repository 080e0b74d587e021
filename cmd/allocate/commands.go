package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/spf13/cobra"

	allocapp "netgen-allocation/internal/allocation/application"
	allocation "netgen-allocation/internal/allocation/domain"
	"netgen-allocation/internal/allocation/infrastructure/filesource"
	"netgen-allocation/internal/allocation/infrastructure/memory"
	"netgen-allocation/internal/allocation/infrastructure/objectstore"
	"netgen-allocation/internal/auth"
)

func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "allocate",
		Short:         "Allocate plant level net generation and fuel to generators",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.AddCommand(newRunCmd(), newValidateCmd(), newTokenCmd())
	return root
}

type runOptions struct {
	input     string
	out       string
	year      int
	plants    []int
	tolerance float64
	workers   int
	jobDate   string
	verbose   bool
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one allocation over CSV or XLSX input tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAllocation(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "directory of CSV tables or an XLSX workbook")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "var/reports/allocation", "report output directory")
	cmd.Flags().IntVar(&opts.year, "year", 0, "report year")
	cmd.Flags().IntSliceVar(&opts.plants, "plants", nil, "plant ids to allocate (default all)")
	cmd.Flags().Float64Var(&opts.tolerance, "tolerance", 1e-6, "fraction sum tolerance")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "parallel plant workers (0 uses GOMAXPROCS)")
	cmd.Flags().StringVar(&opts.jobDate, "job-date", "", "job date as YYYY-MM-DD (default today)")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log run events to stderr")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("year")
	return cmd
}

func runAllocation(ctx context.Context, out io.Writer, opts runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	scope := allocation.Scope{Year: opts.year, PlantIDs: opts.plants}
	if err := scope.Validate(); err != nil {
		return err
	}
	jobDate := time.Now().UTC()
	if opts.jobDate != "" {
		parsed, err := time.Parse("2006-01-02", opts.jobDate)
		if err != nil {
			return fmt.Errorf("invalid job date %q: %w", opts.jobDate, err)
		}
		jobDate = parsed
	}
	source, err := filesource.Open(opts.input)
	if err != nil {
		return err
	}
	archive, err := objectstore.NewLocalStore(opts.out)
	if err != nil {
		return err
	}
	var logger *log.Logger
	if opts.verbose {
		logger = log.New(log.Writer(), "", log.LstdFlags)
	}
	cfg := allocapp.Config{
		Defaults:    allocapp.Thresholds{DriftGroups: 1, UnderdeterminedGroups: 1, MissingAssociations: 1},
		Tolerance:   opts.tolerance,
		Workers:     opts.workers,
		StorageRoot: opts.out,
	}
	runner, err := allocapp.NewRunner(memory.NewRepository(), source, archive, cfg, nil, nil, logger)
	if err != nil {
		return err
	}
	report, err := runner.Run(ctx, allocapp.RunRequest{Scope: scope, JobDate: jobDate})
	if err != nil {
		return err
	}
	summary, err := allocapp.DecodeSummary(report.Summary)
	if err != nil {
		return err
	}
	return writeJSON(out, map[string]any{
		"report_id":          report.ID,
		"location":           report.Location,
		"recommended_action": report.RecommendedAction,
		"summary":            summary,
	})
}

func newValidateCmd() *cobra.Command {
	var input string
	var year int
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check input tables against the input schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			source, err := filesource.Open(input)
			if err != nil {
				return err
			}
			in, err := source.Load(ctx, allocation.Scope{Year: year})
			if err != nil {
				return err
			}
			if err := allocation.Validate(in); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]int{
				allocation.TableGenerators:       len(in.Generators),
				allocation.TableGeneration:       len(in.GeneratorReports),
				allocation.TableGenerationFuel:   len(in.FuelAggregates),
				allocation.TableBoilerFuel:       len(in.BoilerFuel),
				allocation.TableBoilerGenerators: len(in.BoilerGenerators),
			})
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "directory of CSV tables or an XLSX workbook")
	cmd.Flags().IntVar(&year, "year", 0, "limit validation to one report year (0 for all)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var subject, role, secret string
	var plants []int
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("secret required (--secret or AUTH_JWT_SECRET)")
			}
			normalized, ok := auth.NormalizeRole(role)
			if !ok {
				return fmt.Errorf("unknown role %q", role)
			}
			token, err := auth.IssueJWT([]byte(secret), subject, normalized, plants, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "cli", "token subject")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleViewer), "viewer or admin")
	cmd.Flags().StringVar(&secret, "secret", getenv("AUTH_JWT_SECRET"), "HMAC signing secret")
	cmd.Flags().IntSliceVar(&plants, "plants", nil, "restrict the token to these plant ids")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func writeJSON(out io.Writer, value any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
