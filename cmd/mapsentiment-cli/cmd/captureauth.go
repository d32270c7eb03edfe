package cmd

import (
	"bufio"
	"fmt"
	"log"
	"os"

	"mapsentiment-backend/lib/browser"

	"github.com/chromedp/chromedp"
	"github.com/spf13/cobra"
)

var (
	captureOut string
	captureUrl string
)

func init() {
	captureAuthCmd.Flags().StringVar(&captureOut, "out", "cookies.json", "Where to write the captured session state.")
	captureAuthCmd.Flags().StringVar(&captureUrl, "url", "https://accounts.google.com/ServiceLogin?continue=https://www.google.com/maps", "Sign-in page to open.")
	rootCmd.AddCommand(captureAuthCmd)
}

var captureAuthCmd = &cobra.Command{
	Use:   "capture-auth",
	Short: "Opens a visible browser so you can sign in, then saves the session cookies.",
	Run: func(cmd *cobra.Command, args []string) {
		opts := append(
			chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", false),
		)
		allocCtx, cancelAlloc := chromedp.NewExecAllocator(cmd.Context(), opts...)
		defer cancelAlloc()
		ctx, cancel := chromedp.NewContext(allocCtx)
		defer cancel()

		err := chromedp.Run(ctx, chromedp.Navigate(captureUrl))
		if err != nil {
			log.Fatal(err)
		}

		fmt.Println("Sign in using the browser window, then press Enter here to capture the session.")
		bufio.NewReader(os.Stdin).ReadString('\n')

		state, err := browser.ExportAuthState(ctx)
		if err != nil {
			log.Fatal(err)
		}
		err = browser.SaveAuthState(captureOut, state)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("saved %d cookies to %s\n", len(state), captureOut)
	},
}
