package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/fixr105/Seven-Render-sub002/internal/app"
	"github.com/fixr105/Seven-Render-sub002/internal/rbac"
	"github.com/fixr105/Seven-Render-sub002/internal/store"
	"github.com/fixr105/Seven-Render-sub002/internal/workflow"
)

func migrateCmd(e *env) *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply (or revert with --down) the record store schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := e.open(ctx); err != nil {
				return err
			}
			run, verb := store.ApplyMigrations, "applied"
			if down {
				run, verb = store.RevertMigrations, "reverted"
			}
			names, err := run(ctx, e.db, e.cfg.MigrationsDir)
			if err != nil {
				return fmt.Errorf("migrations failed: %w", err)
			}
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to do")
			}
			for _, name := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "revert every applied migration")
	return cmd
}

func balanceCmd(e *env, who *actorFlags) *cobra.Command {
	var entries bool
	cmd := &cobra.Command{
		Use:   "balance <client-id>",
		Short: "Show a client's commission balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := who.actor()
			if err != nil {
				return err
			}
			svc, err := e.service(cmd.Context())
			if err != nil {
				return err
			}
			if entries {
				list, err := svc.LedgerEntries(cmd.Context(), actor, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), list)
			}
			balance, err := svc.ClientBalance(cmd.Context(), actor, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), balance)
		},
	}
	cmd.Flags().BoolVar(&entries, "entries", false, "list the entries instead of the summary")
	return cmd
}

func threadsCmd(e *env, who *actorFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "threads <file-id>",
		Short: "Reconstruct the query threads of a loan file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := who.actor()
			if err != nil {
				return err
			}
			svc, err := e.service(cmd.Context())
			if err != nil {
				return err
			}
			threads, err := svc.GetQueriesForFile(cmd.Context(), actor, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), threads)
		},
	}
}

func scopeCmd(e *env, who *actorFlags) *cobra.Command {
	return &cobra.Command{
		Use:       "scope <loan_files|ledger_entries|audit_log_rows|clients>",
		Short:     "List the rows of a table the actor can see",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(rbac.LoanFiles), string(rbac.LedgerEntries), string(rbac.AuditLogRows), string(rbac.Clients)},
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := who.actor()
			if err != nil {
				return err
			}
			svc, err := e.service(cmd.Context())
			if err != nil {
				return err
			}
			list := map[rbac.TableKind]func() (any, error){
				rbac.LoanFiles:     func() (any, error) { return svc.ListLoanFiles(cmd.Context(), actor) },
				rbac.LedgerEntries: func() (any, error) { return svc.ListLedger(cmd.Context(), actor) },
				rbac.AuditLogRows:  func() (any, error) { return svc.ListAuditLog(cmd.Context(), actor) },
				rbac.Clients:       func() (any, error) { return svc.ListClients(cmd.Context(), actor) },
			}[rbac.TableKind(args[0])]
			if list == nil {
				return fmt.Errorf("unknown table kind %q", args[0])
			}
			rows, err := list()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rows)
		},
	}
}

func statusCmd(e *env, who *actorFlags) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "status <file-id> <status>",
		Short: "Move a loan file to a new status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := who.actor()
			if err != nil {
				return err
			}
			svc, err := e.service(cmd.Context())
			if err != nil {
				return err
			}
			file, err := svc.ChangeStatus(cmd.Context(), actor, app.StatusChange{FileID: args[0], To: args[1], Note: note})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), file)
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "text added to the audit entry")
	return cmd
}

func disburseCmd(e *env, who *actorFlags) *cobra.Command {
	var amount, rate string
	cmd := &cobra.Command{
		Use:   "disburse <file-id>",
		Short: "Mark an approved file disbursed and book its commission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := who.actor()
			if err != nil {
				return err
			}
			input := app.Disbursement{FileID: args[0]}
			if input.Amount, err = decimal.NewFromString(amount); err != nil {
				return fmt.Errorf("invalid --amount: %w", err)
			}
			if rate != "" {
				parsed, err := decimal.NewFromString(rate)
				if err != nil {
					return fmt.Errorf("invalid --rate: %w", err)
				}
				input.Rate = &parsed
			}
			svc, err := e.service(cmd.Context())
			if err != nil {
				return err
			}
			result, err := svc.RecordDisbursement(cmd.Context(), actor, input)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "disbursed amount")
	cmd.Flags().StringVar(&rate, "rate", "", "commission rate in percent (default: the client's rate)")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func transitionsCmd() *cobra.Command {
	var from, role string
	cmd := &cobra.Command{
		Use:   "transitions",
		Short: "Print the status transition table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var fromStatus workflow.Status
			if from != "" {
				parsed, ok := workflow.ParseStatus(from)
				if !ok {
					return fmt.Errorf("unknown status %q", from)
				}
				fromStatus = parsed
			}
			filterRole := rbac.Normalize(role)
			if role != "" && filterRole == "" {
				return fmt.Errorf("unknown role %q", role)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FROM\tTO\tROLES")
			for _, t := range workflow.Transitions() {
				if fromStatus != "" && t.From != fromStatus {
					continue
				}
				if filterRole != "" && !hasRole(t.Roles, filterRole) {
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%v\n", t.From.Label(), t.To.Label(), t.Roles)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "only moves out of this status")
	cmd.Flags().StringVar(&role, "role", "", "only moves this role may make")
	return cmd
}

func hasRole(roles []rbac.Role, role rbac.Role) bool {
	for _, candidate := range roles {
		if candidate == role {
			return true
		}
	}
	return false
}
