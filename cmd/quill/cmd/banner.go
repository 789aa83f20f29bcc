package cmd

import (
	"fmt"
)

const banner = `
   ____        _ _ _
  / __ \      (_) | |
 | |  | |_   _ _| | |
 | |  | | | | | | | |
 | |__| | |_| | | | |
  \___\_\\__,_|_|_|_|
`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Encrypted Journaling Service - Version %s\x1b[0m\n\n", Version)
}
