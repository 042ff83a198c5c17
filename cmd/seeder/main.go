// cmd/seeder/main.go
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/unclebandit/mailcampaign/internal/config"
	"github.com/unclebandit/mailcampaign/internal/db"
	"github.com/unclebandit/mailcampaign/internal/model"
	"github.com/unclebandit/mailcampaign/internal/repository"
)

type seedFile struct {
	Profiles []seedProfile `yaml:"profiles"`
}

type seedProfile struct {
	Owner     string `yaml:"owner"`
	Name      string `yaml:"name"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	FromEmail string `yaml:"from_email"`
	UseTLS    bool   `yaml:"use_tls"`
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:          "seeder",
		Short:        "Load sender profiles from a YAML file into the database",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}
			defer f.Close()

			conn, dialect, err := db.Open(cmd.Context(), cfg.Database.Driver, cfg.Database.DSN())
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := db.EnsureSchema(cmd.Context(), conn); err != nil {
				return err
			}

			n, err := seed(cmd.Context(), repository.NewProfileRepository(conn, dialect), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d sender profiles from %s\n", n, file)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "seed/profiles.yaml", "YAML file with sender profiles")
	return cmd
}

func seed(ctx context.Context, repo repository.ProfileRepositoryInterface, r io.Reader) (int, error) {
	var sf seedFile
	if err := yaml.NewDecoder(r).Decode(&sf); err != nil {
		return 0, fmt.Errorf("failed to parse seed file: %w", err)
	}

	for i, sp := range sf.Profiles {
		if sp.Owner == "" || sp.Name == "" {
			return i, fmt.Errorf("profile %d: owner and name are required", i+1)
		}
		p := &model.Profile{
			Owner: sp.Owner,
			Name:  sp.Name,
			Sender: model.SenderIdentity{
				Host:      sp.Host,
				Port:      sp.Port,
				Username:  sp.Username,
				Password:  sp.Password,
				FromEmail: sp.FromEmail,
				UseTLS:    sp.UseTLS,
			},
		}
		if err := p.Sender.Validate(); err != nil {
			return i, fmt.Errorf("profile %s/%s: %w", sp.Owner, sp.Name, err)
		}
		if err := repo.Save(ctx, p); err != nil {
			return i, err
		}
	}
	return len(sf.Profiles), nil
}
