package migrate

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/timing-service-go/log"
	"github.com/mpapenbr/timing-service-go/pkg/cmd/common"
	"github.com/mpapenbr/timing-service-go/pkg/config"
	dbmigrate "github.com/mpapenbr/timing-service-go/pkg/db/migrate"
	"github.com/mpapenbr/timing-service-go/pkg/utils"
)

var showVersion bool

func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "performs the migration of the replay archive database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startMigration(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&showVersion,
		"version-only",
		false,
		"only print the current schema version")
	return cmd
}

func startMigration(ctx context.Context) error {
	if _, err := common.SetupLogger(); err != nil {
		return err
	}
	if config.DB == "" {
		return errors.New("no database configured (--db)")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	postgresAddr := utils.ExtractFromDBURL(config.DB)
	if err := utils.WaitForTCP(ctx, postgresAddr, config.ParseWaitForServices()); err != nil {
		log.Error("database not ready", log.ErrorField(err))
		return err
	}

	if !showVersion {
		log.Info("Migrating database")
		if err := dbmigrate.MigrateDb(config.DB); err != nil {
			log.Error("migration failed", log.ErrorField(err))
			return err
		}
	}
	version, dirty, err := dbmigrate.Version(config.DB)
	if err != nil {
		return err
	}
	log.Info("Schema version", log.Uint("version", version), log.Bool("dirty", dirty))
	return nil
}
