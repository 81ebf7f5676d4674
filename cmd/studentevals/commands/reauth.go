package commands

import (
	"studentevals-backend/internal/scrapers/setreports"

	"github.com/spf13/cobra"
)

var reauthCmd = &cobra.Command{
	Use:   "reauth",
	Short: "Fetches fresh cookies from the cookie service and writes them to the cookies file.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := newApp(ctx)
		defer a.Close()

		session := a.session()
		if session == nil {
			fatal("cannot reauthenticate", setreports.ErrNoCookieService)
		}
		err := session.Refresh(ctx)
		if err != nil {
			fatal("failed to reauthenticate", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(reauthCmd)
}
