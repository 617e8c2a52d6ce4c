// Command authsession is a demo CLI for the session SDK: it drives the
// interactive login, anonymous login, promotion, refresh and logout
// operations against an OpenID Connect provider.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
