// Command arapctl carries operator tasks: schema migrations, installment
// previews and manual job triggers.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "arapctl: %v\n", err)
		os.Exit(1)
	}
}
