package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/ironsheep/craft-text-demo/internal/store"
)

var migrateCMD = &cobra.Command{
	Use:       "migrate up|down",
	Short:     "Create or drop the extracted_data table",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		if rt.settings.DatabaseURL == "" {
			return errors.New("migrate needs CRAFT_DEMO_DATABASE_URL")
		}

		st, err := store.Open(cmd.Context(), rt.settings.DatabaseURL,
			store.WithDatabaseSchema(rt.settings.DatabaseSchema),
			store.WithTablePrefix(rt.settings.TablePrefix),
		)
		if err != nil {
			return err
		}
		defer st.Close()

		log := rt.log.WithField("table", st.Table())
		if args[0] == "down" {
			if err := st.UnInstall(cmd.Context()); err != nil {
				return err
			}
			log.Info("Table dropped")
			return nil
		}
		if err := st.Install(cmd.Context()); err != nil {
			return err
		}
		log.Info("Table ready")
		return nil
	},
}
