package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/worklane/worklane/modules/core/domain/entities/tenant"
	corepersistence "github.com/worklane/worklane/modules/core/infrastructure/persistence"
	"github.com/worklane/worklane/pkg/composables"
	"github.com/worklane/worklane/pkg/configuration"
)

func newTenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Administer tenants",
	}
	cmd.AddCommand(newTenantCreateCmd(), newTenantListCmd())
	return cmd
}

func newTenantCreateCmd() *cobra.Command {
	var name string
	var domain string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant and print its id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTenantRepo(cmd.Context(), func(ctx context.Context, repo tenant.Repository) error {
				created, err := repo.Create(ctx, tenant.New(name, tenant.WithDomain(domain)))
				if err != nil {
					return err
				}
				fmt.Println(created.ID())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Tenant name (required)")
	cmd.Flags().StringVar(&domain, "domain", "", "Tenant domain")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newTenantListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTenantRepo(cmd.Context(), func(ctx context.Context, repo tenant.Repository) error {
				tenants, err := repo.List(ctx)
				if err != nil {
					return err
				}
				for _, t := range tenants {
					fmt.Printf("%s\t%s\t%s\tactive=%t\n", t.ID(), t.Name(), t.Domain(), t.IsActive())
				}
				return nil
			})
		},
	}
}

// withTenantRepo runs fn with a pool-backed context. tenants is not a
// tenant-scoped table; no RLS pinning applies.
func withTenantRepo(ctx context.Context, fn func(context.Context, tenant.Repository) error) error {
	conf := configuration.Use()
	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(composables.WithPool(ctx, pool), corepersistence.NewTenantRepository())
}
