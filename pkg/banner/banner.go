// Package banner prints the startup banner shown once the catalog, account
// fleet and HTTP front-end have been wired up.
package banner

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

const art = `
 _       _     ____    _____
| |_ ___| | __/ ___|  |___ /
| __/ _ \ |/ /\___ \    |_ \
| ||  __/   <  ___) |  ___) |
 \__\___|_|\_\|____/  |____/
`

// Print writes the banner plus the effective listen address, state dir and
// number of accounts loaded from disk.
func Print(listen, stateDir, version string, accounts int) {
	fmt.Print(art)
	fmt.Println("== tek-s3 ======================================================")
	fmt.Printf("Listen:    %s\n", listen)
	fmt.Printf("State dir: %s\n", stateDir)
	if version != "" {
		fmt.Printf("Version:   %s\n", version)
	}
	fmt.Printf("Accounts:  %s loaded\n", humanize.Comma(int64(accounts)))
	fmt.Println("\n== Endpoints ===================================================")
	fmt.Println("GET  /manifest          - JSON catalog of apps, depots, depot keys")
	fmt.Println("GET  /manifest-bin      - compact binary catalog")
	fmt.Println("GET  /mrc?app_id=&depot_id=&manifest_id= - manifest request code")
	fmt.Println("WS   /signin            - interactive account sign-in")
	fmt.Println()
}
